package cart

import (
	"slices"
	"time"

	"storefront-cart/internal/model"
)

// State is the last cart confirmed by the remote store.
// It is replaced wholesale on every reconciliation, never patched.
type State struct {
	Owner    string           `json:"owner"`
	Items    []model.LineItem `json:"items"`
	Totals   model.Totals     `json:"totals"`
	SyncedAt time.Time        `json:"synced_at"`
}

// Reconciled builds the state for an authoritative item list.
// Totals depend only on items and pricing.
func Reconciled(owner string, items []model.LineItem, pricing model.Pricing, at time.Time) State {
	copied := make([]model.LineItem, len(items))
	copy(copied, items)
	return State{
		Owner:    owner,
		Items:    copied,
		Totals:   pricing.Totals(copied),
		SyncedAt: at,
	}
}

func (s State) clone() State {
	s.Items = slices.Clone(s.Items)
	return s
}

// Overlay is the optimistic layer drawn over State.
type Overlay struct {
	Quantities map[string]int   // Requested quantities by item key
	Added      []model.LineItem // Inserts not yet confirmed by the store
	Pending    map[string]bool  // Keys with a debounced write armed
	Updating   map[string]bool  // Keys with an operation in flight
}

// ViewItem is a line item as displayed.
type ViewItem struct {
	model.LineItem
	ConfirmedQuantity int  `json:"confirmed_quantity"` // 0 until the store has the item
	Pending           bool `json:"pending"`
	Updating          bool `json:"updating"`
}

// View is the cart as displayed: State with the overlay applied and totals
// recomputed over the displayed quantities.
type View struct {
	Owner    string       `json:"owner"`
	Items    []ViewItem   `json:"items"`
	Totals   model.Totals `json:"totals"`
	SyncedAt time.Time    `json:"synced_at"`
}

// LineItems returns the displayed items without view flags.
func (v View) LineItems() []model.LineItem {
	items := make([]model.LineItem, 0, len(v.Items))
	for _, item := range v.Items {
		items = append(items, item.LineItem)
	}
	return items
}

// ViewOf applies o to s. Neither argument is modified.
// Optimistic inserts for products the store already holds are skipped.
func ViewOf(s State, o Overlay, pricing model.Pricing) View {
	items := make([]ViewItem, 0, len(s.Items)+len(o.Added))
	known := make(map[int]bool, len(s.Items))

	for _, li := range s.Items {
		known[li.ProductID] = true
		items = append(items, overlayItem(li, li.Quantity, o))
	}
	for _, li := range o.Added {
		if known[li.ProductID] {
			continue
		}
		items = append(items, overlayItem(li, 0, o))
	}

	view := View{
		Owner:    s.Owner,
		Items:    items,
		SyncedAt: s.SyncedAt,
	}
	view.Totals = pricing.Totals(view.LineItems())
	return view
}

func overlayItem(li model.LineItem, confirmed int, o Overlay) ViewItem {
	if q, ok := o.Quantities[li.Key]; ok {
		li.Quantity = q
	}
	return ViewItem{
		LineItem:          li,
		ConfirmedQuantity: confirmed,
		Pending:           o.Pending[li.Key],
		Updating:          o.Updating[li.Key],
	}
}
