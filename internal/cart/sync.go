package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"storefront-cart/internal/model"
	"storefront-cart/internal/reconcile"
)

// Reconcile fetches the remote cart and replaces local state with it.
// On failure local state is kept as-is.
func (c *Controller) Reconcile(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.inflight.Add(1)
	c.mu.Unlock()
	defer c.inflight.Done()

	return c.reconcile(ctx)
}

// reconcile is Reconcile without closed/in-flight bookkeeping, for callers
// that already registered themselves.
//
// Responses are applied in completion order. Each one is a complete cart, so
// the last fetch to finish wins.
func (c *Controller) reconcile(ctx context.Context) error {
	items, err := c.store.ListItems(ctx)
	if err != nil {
		c.logger.Warn("cart reconciliation failed, keeping local state",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("reconciling cart: %w", err)
	}

	now := c.clock.Now()

	c.mu.Lock()
	before := c.viewLocked()
	c.state = Reconciled(c.owner, items, c.pricing, now)
	after := c.viewLocked()
	snap := model.CartSnapshot{
		Owner:   c.state.Owner,
		Items:   c.state.Items,
		Totals:  c.state.Totals,
		SavedAt: now,
	}
	c.mu.Unlock()

	diff := reconcile.DiffLineItems(before.LineItems(), items)
	if !diff.IsEmpty() {
		c.logger.Debug("cart reconciled with corrections",
			slog.Int("added", len(diff.ToAdd)),
			slog.Int("removed", len(diff.ToRemove)),
			slog.Int("updated", len(diff.ToUpdate)),
		)
	}

	c.saveMirror(ctx, snap)
	c.emit(Event{Kind: EventStateChanged, View: after, Corrections: diff})
	return nil
}

// reconcileAfterWrite reconciles on a context detached from the write's, so
// a write that timed out or whose caller went away is still followed by a
// fetch. Values such as the request id carry over.
func (c *Controller) reconcileAfterWrite(ctx context.Context) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()
	c.reconcile(rctx)
}

func (c *Controller) saveMirror(ctx context.Context, snap model.CartSnapshot) {
	if c.mirror == nil {
		return
	}
	if err := c.mirror.Save(ctx, snap); err != nil {
		c.logger.Warn("saving cart mirror failed",
			slog.String("owner", snap.Owner),
			slog.String("error", err.Error()),
		)
	}
}

// SyncOnUserChange reconciles once per sign-in transition.
//
// userID "" means signed out: tracking is reset so the next sign-in, even by
// the same user, syncs again. Repeating the current user is a no-op. Reports
// whether a reconciliation was attempted.
//
// Signing out keeps the displayed cart; only the mirror owner reverts to the
// guest.
func (c *Controller) SyncOnUserChange(ctx context.Context, userID string) (bool, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, ErrClosed
	}

	if userID == "" {
		wasSignedIn := c.lastUser != ""
		c.lastUser = ""
		c.owner = model.GuestOwner
		c.mu.Unlock()
		if wasSignedIn {
			c.logger.Info("user signed out, cart sync reset")
		}
		return false, nil
	}

	if userID == c.lastUser {
		c.mu.Unlock()
		return false, nil
	}
	c.lastUser = userID
	c.owner = userID
	c.inflight.Add(1)
	c.mu.Unlock()
	defer c.inflight.Done()

	c.logger.Info("user signed in, syncing cart", slog.String("user_id", userID))
	return true, c.reconcile(ctx)
}

// CurrentUser returns the user the cart was last synced for, or "".
func (c *Controller) CurrentUser() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUser
}

// Restore seeds the view from the local mirror for the current owner.
// It only applies before the first successful reconciliation; a mirror is
// never preferred over the remote cart. Reports whether state was restored.
func (c *Controller) Restore(ctx context.Context) (bool, error) {
	if c.mirror == nil {
		return false, nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, ErrClosed
	}
	owner := c.owner
	c.mu.Unlock()

	snap, err := c.mirror.Load(ctx, owner)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading cart mirror: %w", err)
	}

	c.mu.Lock()
	if !c.state.SyncedAt.IsZero() || c.owner != owner {
		c.mu.Unlock()
		return false, nil
	}
	c.state = Reconciled(owner, snap.Items, c.pricing, snap.SavedAt)
	view := c.viewLocked()
	c.mu.Unlock()

	c.logger.Debug("cart restored from mirror",
		slog.String("owner", owner),
		slog.Int("items", len(snap.Items)),
	)
	c.emit(Event{Kind: EventStateChanged, View: view})
	return true, nil
}
