package adapter

import (
	"context"

	"storefront-cart/internal/model"
)

// Mock implements CartStore for testing.
// Each method can be configured via function fields.
type Mock struct {
	ListItemsFunc      func(ctx context.Context) ([]model.LineItem, error)
	UpdateQuantityFunc func(ctx context.Context, itemID, quantity int) error
	RemoveItemFunc     func(ctx context.Context, itemID int) error
	AddItemFunc        func(ctx context.Context, productID, quantity int) error
}

// ListItems calls the configured ListItemsFunc or returns an empty cart.
func (m *Mock) ListItems(ctx context.Context) ([]model.LineItem, error) {
	if m.ListItemsFunc != nil {
		return m.ListItemsFunc(ctx)
	}
	return []model.LineItem{}, nil
}

// UpdateQuantity calls the configured UpdateQuantityFunc or returns an error.
func (m *Mock) UpdateQuantity(ctx context.Context, itemID, quantity int) error {
	if m.UpdateQuantityFunc != nil {
		return m.UpdateQuantityFunc(ctx, itemID, quantity)
	}
	return model.NewNotFoundError("line item")
}

// RemoveItem calls the configured RemoveItemFunc or returns an error.
func (m *Mock) RemoveItem(ctx context.Context, itemID int) error {
	if m.RemoveItemFunc != nil {
		return m.RemoveItemFunc(ctx, itemID)
	}
	return model.NewNotFoundError("line item")
}

// AddItem calls the configured AddItemFunc or returns an error.
func (m *Mock) AddItem(ctx context.Context, productID, quantity int) error {
	if m.AddItemFunc != nil {
		return m.AddItemFunc(ctx, productID, quantity)
	}
	return model.NewInternalError(nil)
}

// MockCatalog implements ProductLookup for testing.
type MockCatalog struct {
	ProductFunc func(ctx context.Context, productID int) (*model.Product, error)
}

// Product calls the configured ProductFunc or returns not found.
func (m *MockCatalog) Product(ctx context.Context, productID int) (*model.Product, error) {
	if m.ProductFunc != nil {
		return m.ProductFunc(ctx, productID)
	}
	return nil, model.NewNotFoundError("product")
}

// Verify mocks implement their interfaces at compile time.
var (
	_ CartStore     = (*Mock)(nil)
	_ ProductLookup = (*MockCatalog)(nil)
)
