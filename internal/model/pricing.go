package model

import (
	"github.com/shopspring/decimal"
)

// Totals summarizes a cart in minor units.
type Totals struct {
	ItemCount int   `json:"item_count"` // Sum of quantities
	Subtotal  int64 `json:"subtotal"`
	Tax       int64 `json:"tax"`
	Shipping  int64 `json:"shipping"`
	Total     int64 `json:"total"`
}

// Pricing holds the merchant rules used to derive totals from line items.
type Pricing struct {
	TaxRate               decimal.Decimal // e.g. 0.12 for 12%
	ShippingFee           int64           // Flat fee in minor units
	FreeShippingThreshold int64           // Subtotal at or above which shipping is waived; 0 disables
}

// Totals computes cart totals from items.
// Pure: the result depends only on items and the pricing rules, never on
// previously computed totals.
func (p Pricing) Totals(items []LineItem) Totals {
	var t Totals
	for _, item := range items {
		t.ItemCount += item.Quantity
		t.Subtotal += item.LineTotal()
	}

	if t.Subtotal > 0 && !p.TaxRate.IsZero() {
		t.Tax = decimal.NewFromInt(t.Subtotal).Mul(p.TaxRate).Round(0).IntPart()
	}

	// Empty carts never pay shipping
	if t.ItemCount > 0 {
		t.Shipping = p.ShippingFee
		if p.FreeShippingThreshold > 0 && t.Subtotal >= p.FreeShippingThreshold {
			t.Shipping = 0
		}
	}

	t.Total = t.Subtotal + t.Tax + t.Shipping
	return t
}
