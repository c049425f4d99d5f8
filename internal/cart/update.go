package cart

import (
	"context"
	"fmt"
	"log/slog"

	"storefront-cart/internal/model"
	"storefront-cart/internal/reconcile"
)

// ScheduleUpdate sets the displayed quantity for key immediately and arms a
// debounced write. Calls within the debounce window replace each other, so a
// burst of changes produces one write carrying the last quantity.
// Quantities below 1 are ignored; use RemoveItem to delete.
func (c *Controller) ScheduleUpdate(key string, productID, quantity int) {
	if quantity < 1 {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.overlay[key] = quantity
	c.pending[key] = pendingUpdate{productID: productID, quantity: quantity}
	c.sched.Schedule(key, func() { c.commitUpdate(key) })
	view := c.viewLocked()
	c.mu.Unlock()

	c.logger.Debug("cart update scheduled",
		slog.String("item_key", key),
		slog.Int("product_id", productID),
		slog.Int("quantity", quantity),
	)
	c.emit(Event{Kind: EventStateChanged, View: view})
}

// commitUpdate is the timer callback: it writes the latest requested quantity
// and reconciles regardless of the outcome.
func (c *Controller) commitUpdate(key string) {
	c.mu.Lock()
	p, ok := c.pending[key]
	if c.closed || !ok {
		// Removed, closed, or already taken by a racing callback
		c.mu.Unlock()
		return
	}
	delete(c.pending, key)
	c.beginLocked(key)
	view := c.viewLocked()
	c.mu.Unlock()

	c.emit(Event{Kind: EventStateChanged, View: view})
	defer c.finish(key)

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := c.writeQuantity(ctx, p.productID, p.quantity); err != nil {
		c.logger.Error("cart quantity update failed",
			slog.String("item_key", key),
			slog.Int("product_id", p.productID),
			slog.Int("quantity", p.quantity),
			slog.String("error", err.Error()),
		)
		c.notify(model.NewErrorMessage("update_failed",
			"We couldn't update the quantity. Showing your latest cart.", key))
	}

	c.reconcileAfterWrite(ctx)
}

// writeQuantity resolves productID to a server line item and patches it.
// A product no longer in the cart is not an error.
func (c *Controller) writeQuantity(ctx context.Context, productID, quantity int) error {
	items, err := c.store.ListItems(ctx)
	if err != nil {
		return fmt.Errorf("listing cart: %w", err)
	}

	item, ok := reconcile.FindByProduct(items, productID)
	if !ok {
		c.logger.Debug("product no longer in cart, skipping update", slog.Int("product_id", productID))
		return nil
	}

	if err := c.store.UpdateQuantity(ctx, item.ID, quantity); err != nil {
		return fmt.Errorf("updating line item %d: %w", item.ID, err)
	}
	return nil
}
