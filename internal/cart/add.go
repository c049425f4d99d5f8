package cart

import (
	"context"
	"fmt"
	"log/slog"

	"storefront-cart/internal/model"
)

// AddItem adds quantity of productID to the cart and returns the item key.
//
// The item is shown immediately: an existing line has its displayed quantity
// raised, a new product is inserted from the catalog when one is configured.
// The cart is reconciled after the write whatever the outcome, and the key
// returned is the one the reconciled cart uses.
func (c *Controller) AddItem(ctx context.Context, productID, quantity int) (string, error) {
	if quantity < 1 {
		return "", model.NewValidationError("quantity", "must be at least 1")
	}

	// Catalog lookup happens before taking the lock; it may hit the network
	product := c.lookupProduct(ctx, productID)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	key := c.optimisticAddLocked(productID, quantity, product)
	c.beginLocked(key)
	view := c.viewLocked()
	c.mu.Unlock()

	c.emit(Event{Kind: EventStateChanged, View: view})
	defer c.finish(key)
	defer c.dropInsert(key)

	err := c.store.AddItem(ctx, productID, quantity)
	if err != nil {
		err = fmt.Errorf("adding product %d: %w", productID, err)
		c.logger.Error("cart add failed",
			slog.Int("product_id", productID),
			slog.Int("quantity", quantity),
			slog.String("error", err.Error()),
		)
		c.notify(model.NewErrorMessage("add_failed", "We couldn't add the item to your cart.", key))
	} else {
		c.notify(model.NewSuccessMessage("item_added", "Item added to your cart.", key))
	}

	c.reconcileAfterWrite(ctx)

	// The store may title the item differently than the optimistic guess
	if item, ok := c.LookupProduct(productID); ok {
		return item.Key, err
	}
	return key, err
}

func (c *Controller) lookupProduct(ctx context.Context, productID int) *model.Product {
	if c.catalog == nil {
		return nil
	}
	p, err := c.catalog.Product(ctx, productID)
	if err != nil {
		c.logger.Warn("catalog lookup failed, adding without preview",
			slog.Int("product_id", productID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return p
}

// optimisticAddLocked updates the overlay for an add and returns the key the
// operation is tracked under. Must hold c.mu.
func (c *Controller) optimisticAddLocked(productID, quantity int, product *model.Product) string {
	view := c.viewLocked()
	for _, item := range view.Items {
		if item.ProductID == productID {
			c.overlay[item.Key] = item.Quantity + quantity
			// A debounced write would otherwise overwrite the add on the server
			if p, ok := c.pending[item.Key]; ok {
				p.quantity += quantity
				c.pending[item.Key] = p
			}
			return item.Key
		}
	}

	if product == nil {
		// No display data; the item appears after reconciliation
		return model.ItemKey(productID, "")
	}

	li := model.NewLineItem(*product, quantity)
	c.added[li.Key] = li
	return li.Key
}

func (c *Controller) dropInsert(key string) {
	c.mu.Lock()
	delete(c.added, key)
	c.mu.Unlock()
}

// LookupProduct returns the displayed item for productID, if any.
func (c *Controller) LookupProduct(productID int) (ViewItem, bool) {
	view := c.View()
	for _, item := range view.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return ViewItem{}, false
}
