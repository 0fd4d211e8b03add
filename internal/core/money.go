// Package core provides money parsing and handling utilities.
//
// Amounts are decimal values; float64 never touches stored money.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts user input into a non-negative decimal.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and a
// leading currency symbol. Zero is allowed; negatives are not.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,34") -> 12.34, nil
//	ParseAmount("$4.50") -> 4.5, nil
//	ParseAmount("-1")    -> 0, ValidationError
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "$€£")
	if s == "" {
		return decimal.Zero, invalid("amount", "must not be empty")
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	if strings.HasPrefix(s, "+") {
		return decimal.Zero, invalid("amount", "must be a plain number")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, invalid("amount", "not a number")
	}
	if err := ValidateAmount("amount", d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// ValidateAmount rejects negative values.
func ValidateAmount(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return invalid(field, "must not be negative")
	}
	return nil
}

// FormatAmount renders an amount with two decimals for display.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
