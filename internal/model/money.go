package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseCents converts decimal string amounts (major units) to minor units.
// The cart API serializes prices as "99.00" or 99 depending on the endpoint.
// Rounds half away from zero; invalid input yields 0.
// Examples: "99.00" → 9900, "1234.56" → 123456, "" → 0
func ParseCents(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return DecimalToCents(d)
}

// DecimalToCents converts a major-unit decimal amount to minor units.
func DecimalToCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

// FormatCents renders minor units as a major-unit string with two decimals.
// Examples: 9900 → "99.00", 5 → "0.05", -150 → "-1.50"
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
