package cart

import (
	"context"
	"fmt"
	"log/slog"

	"storefront-cart/internal/model"
	"storefront-cart/internal/reconcile"
)

// RemoveItem deletes the line item for productID from the remote cart.
// A pending debounced write for key is cancelled first so no stale quantity
// is sent after the removal. The cart is reconciled whatever the outcome.
// An item already gone from the store is not an error.
func (c *Controller) RemoveItem(ctx context.Context, key string, productID int) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.sched.Cancel(key)
	delete(c.pending, key)
	delete(c.overlay, key)
	delete(c.added, key)
	c.beginLocked(key)
	view := c.viewLocked()
	c.mu.Unlock()

	c.emit(Event{Kind: EventStateChanged, View: view})
	defer c.finish(key)

	removed, err := c.deleteProduct(ctx, productID)
	switch {
	case err != nil:
		c.logger.Error("cart item removal failed",
			slog.String("item_key", key),
			slog.Int("product_id", productID),
			slog.String("error", err.Error()),
		)
		c.notify(model.NewErrorMessage("remove_failed",
			"We couldn't remove the item. Showing your latest cart.", key))
	case removed:
		c.notify(model.NewSuccessMessage("item_removed", "Item removed from your cart.", key))
	}

	c.reconcileAfterWrite(ctx)
	return err
}

// deleteProduct resolves productID and deletes its line item.
// Reports false with no error when the product is not in the cart.
func (c *Controller) deleteProduct(ctx context.Context, productID int) (bool, error) {
	items, err := c.store.ListItems(ctx)
	if err != nil {
		return false, fmt.Errorf("listing cart: %w", err)
	}

	item, ok := reconcile.FindByProduct(items, productID)
	if !ok {
		c.logger.Debug("product not in cart, nothing to remove", slog.Int("product_id", productID))
		return false, nil
	}

	if err := c.store.RemoveItem(ctx, item.ID); err != nil {
		return false, fmt.Errorf("deleting line item %d: %w", item.ID, err)
	}
	return true, nil
}
