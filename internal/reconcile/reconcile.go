// Package reconcile compares cart views.
//
// The remote cart is authoritative: after every write the controller fetches
// it and replaces local state wholesale. DiffLineItems reports what that
// replacement changed relative to what was on screen, so callers can tell the
// user when the server disagreed with an optimistic update.
package reconcile

import (
	"cmp"
	"slices"

	"storefront-cart/internal/model"
)

// LineItemDiff describes how the authoritative cart differs from the view
// that was displayed before reconciliation.
type LineItemDiff struct {
	ToAdd    []model.LineItem // In authoritative but not displayed
	ToRemove []model.LineItem // Displayed but gone from authoritative
	ToUpdate []ItemToUpdate   // In both with different quantities
}

// ItemToUpdate is a quantity correction for an item present in both views.
type ItemToUpdate struct {
	Key         string
	ProductID   int
	ItemID      int // Server line-item ID
	OldQuantity int // Displayed quantity
	NewQuantity int // Authoritative quantity
}

// IsEmpty returns true if the views agree.
func (d *LineItemDiff) IsEmpty() bool {
	return len(d.ToAdd) == 0 && len(d.ToRemove) == 0 && len(d.ToUpdate) == 0
}

// DiffLineItems computes the delta between the displayed and authoritative
// line items. Matching is by ProductID since server line-item IDs may be
// reassigned. Results are ordered by ProductID.
func DiffLineItems(displayed, authoritative []model.LineItem) *LineItemDiff {
	diff := &LineItemDiff{}

	shown := make(map[int]model.LineItem, len(displayed))
	for _, item := range displayed {
		shown[item.ProductID] = item
	}
	actual := make(map[int]model.LineItem, len(authoritative))
	for _, item := range authoritative {
		actual[item.ProductID] = item
	}

	for id, got := range actual {
		prev, exists := shown[id]
		if !exists {
			diff.ToAdd = append(diff.ToAdd, got)
			continue
		}
		if prev.Quantity != got.Quantity {
			diff.ToUpdate = append(diff.ToUpdate, ItemToUpdate{
				Key:         got.Key,
				ProductID:   id,
				ItemID:      got.ID,
				OldQuantity: prev.Quantity,
				NewQuantity: got.Quantity,
			})
		}
	}

	for id, prev := range shown {
		if _, exists := actual[id]; !exists {
			diff.ToRemove = append(diff.ToRemove, prev)
		}
	}

	byProduct := func(a, b model.LineItem) int { return cmp.Compare(a.ProductID, b.ProductID) }
	slices.SortFunc(diff.ToAdd, byProduct)
	slices.SortFunc(diff.ToRemove, byProduct)
	slices.SortFunc(diff.ToUpdate, func(a, b ItemToUpdate) int { return cmp.Compare(a.ProductID, b.ProductID) })

	return diff
}

// FindByProduct scans items for the line item holding productID.
// The cart API has no lookup by product, so this is how a product ID is
// resolved to a server line-item ID.
func FindByProduct(items []model.LineItem, productID int) (model.LineItem, bool) {
	for _, item := range items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return model.LineItem{}, false
}
