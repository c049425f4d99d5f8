// Package adapter defines the interface to the remote cart service.
// The cart controller depends only on CartStore so tests can substitute Mock
// and production can plug in the HTTP client from storeapi.
package adapter

import (
	"context"

	"storefront-cart/internal/model"
)

// CartStore abstracts the authoritative remote cart.
//
// Identity on the wire is the server line-item ID. Callers that only know a
// product ID must list the cart and look the item up first.
type CartStore interface {
	// ListItems returns every line item currently in the remote cart.
	// The returned slice is authoritative and replaces any local view.
	ListItems(ctx context.Context) ([]model.LineItem, error)

	// UpdateQuantity sets the quantity of an existing line item.
	UpdateQuantity(ctx context.Context, itemID, quantity int) error

	// RemoveItem deletes a line item from the remote cart.
	RemoveItem(ctx context.Context, itemID int) error

	// AddItem inserts a product into the remote cart.
	// Servers may merge with an existing line for the same product.
	AddItem(ctx context.Context, productID, quantity int) error
}

// ProductLookup resolves catalog entries for optimistic inserts.
type ProductLookup interface {
	Product(ctx context.Context, productID int) (*model.Product, error)
}
