// Package model defines the cart data structures shared by the controller,
// the cart API client, the local mirror and the HTTP surface.
package model

import (
	"strconv"
	"time"
)

// === Cart Types ===

// Product is a catalog entry as returned by the cart API (nested in line items)
// or the product endpoint.
type Product struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Price    int64  `json:"price"` // Minor units
	ImageURL string `json:"image_url,omitempty"`
}

// LineItem is a single product+quantity entry in a cart.
//
// Key addresses the item client-side before the server line-item ID is known.
// Title, UnitPrice and ImageURL are display fields snapshotted at add-time.
// Quantity is always >= 1; removal is a separate operation.
type LineItem struct {
	Key       string `json:"key"`
	ID        int    `json:"id,omitempty"` // Server line-item ID, 0 until synced
	ProductID int    `json:"product_id"`
	Title     string `json:"title"`
	UnitPrice int64  `json:"unit_price"` // Minor units
	ImageURL  string `json:"image_url,omitempty"`
	Quantity  int    `json:"quantity"`
}

// LineTotal returns quantity × unit price in minor units.
func (li LineItem) LineTotal() int64 {
	return int64(li.Quantity) * li.UnitPrice
}

// ItemKey derives the client-side key for a product.
// The key is the product ID concatenated with the product title so it is
// stable across reconciliations, which may reassign server line-item IDs.
func ItemKey(productID int, title string) string {
	return strconv.Itoa(productID) + "-" + title
}

// NewLineItem builds a line item from a product, snapshotting display fields.
func NewLineItem(p Product, quantity int) LineItem {
	return LineItem{
		Key:       ItemKey(p.ID, p.Title),
		ProductID: p.ID,
		Title:     p.Title,
		UnitPrice: p.Price,
		ImageURL:  p.ImageURL,
		Quantity:  quantity,
	}
}

// CartSnapshot is the cart state mirrored to local persistent storage.
// Not authoritative: overwritten wholesale on every reconciliation.
type CartSnapshot struct {
	Owner   string     `json:"owner"` // User ID, or GuestOwner before login
	Items   []LineItem `json:"items"`
	Totals  Totals     `json:"totals"`
	SavedAt time.Time  `json:"saved_at"`
}

// GuestOwner is the mirror owner key used while no user is signed in.
const GuestOwner = "guest"
