package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	// DateLayout is the persisted and API representation of a calendar date.
	DateLayout = "2006-01-02"
	// ExportDateLayout is the month/day/year form used in CSV exports.
	ExportDateLayout = "1/2/2006"

	maxDescriptionLen = 200
)

var defaultCategories = []string{
	"Food & Dining",
	"Transportation",
	"Shopping",
	"Entertainment",
	"Bills & Utilities",
	"Healthcare",
	"Other",
}

type (
	// Date is a calendar date. The wrapped time is always midnight UTC.
	Date struct {
		time.Time
	}

	Expense struct {
		ID          string          `json:"id"`
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
		Category    string          `json:"category"`
		Date        Date            `json:"date"`
		UserID      string          `json:"userId"`
	}

	// Budgets maps a category name to its spending ceiling.
	Budgets map[string]decimal.Decimal

	Session struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
)

// DefaultCategories returns a fresh copy of the built-in category list.
func DefaultCategories() []string {
	return slices.Clone(defaultCategories)
}

// NewDate creates a new Date from year, month, day
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate accepts YYYY-MM-DD and, for data written by older clients,
// RFC 3339 timestamps (the UTC calendar date is kept).
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Date{}, invalid("date", fmt.Sprintf("unrecognised date %q", s))
	}
	return DateOf(t.UTC()), nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// InMonth reports whether d falls in the same calendar month and year as ref.
func (d Date) InMonth(ref time.Time) bool {
	return d.Year() == ref.Year() && d.Month() == ref.Month()
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Validate checks a record before it is written, against the known category
// set. A nil category list skips the membership check.
func (e Expense) Validate(categories []string) error {
	if err := e.CheckStored(); err != nil {
		return err
	}
	if strings.TrimSpace(e.UserID) == "" {
		return invalid("userId", "must not be empty")
	}
	if strings.TrimSpace(e.Description) == "" {
		return invalid("description", "must not be empty")
	}
	if utf8.RuneCountInString(e.Description) > maxDescriptionLen {
		return invalid("description", fmt.Sprintf("too long (max %d characters)", maxDescriptionLen))
	}
	return ValidateCategory(categories, e.Category)
}

// CheckStored holds the invariants every persisted record keeps: an id, a
// non-negative amount and a date. Records loaded from storage are only held
// to these.
func (e Expense) CheckStored() error {
	if strings.TrimSpace(e.ID) == "" {
		return invalid("id", "must not be empty")
	}
	if err := ValidateAmount("amount", e.Amount); err != nil {
		return err
	}
	if e.Date.IsZero() {
		return invalid("date", "must not be empty")
	}
	return nil
}

// ValidateCategory rejects names outside the known set.
func ValidateCategory(categories []string, name string) error {
	if strings.TrimSpace(name) == "" {
		return invalid("category", "must not be empty")
	}
	if categories != nil && !slices.Contains(categories, name) {
		return invalid("category", fmt.Sprintf("unknown category %q", name))
	}
	return nil
}

// UnmarshalJSON accepts budget values as strings or numbers. Empty strings and
// nulls mean "no budget" and are dropped. Any unparseable value fails the
// whole mapping; use DecodeBudgets to keep the readable entries.
func (b *Budgets) UnmarshalJSON(data []byte) error {
	out, bad, err := DecodeBudgets(data)
	if err != nil {
		return err
	}
	for name, berr := range bad {
		return fmt.Errorf("budget %q: %w", name, berr)
	}
	*b = out
	return nil
}

// DecodeBudgets parses a stored budget mapping entry by entry. Entries whose
// value cannot be read are returned in bad instead of failing the mapping.
func DecodeBudgets(data []byte) (out Budgets, bad map[string]error, err error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, err
	}
	out = make(Budgets, len(raw))
	for name, v := range raw {
		if bytes.Equal(v, []byte("null")) || bytes.Equal(v, []byte(`""`)) {
			continue
		}
		var amount decimal.Decimal
		if err := amount.UnmarshalJSON(v); err != nil {
			if bad == nil {
				bad = make(map[string]error)
			}
			bad[name] = err
			continue
		}
		out[name] = amount
	}
	return out, bad, nil
}

func (b Budgets) Validate(categories []string) error {
	for name, amount := range b {
		if err := ValidateCategory(categories, name); err != nil {
			return err
		}
		if err := ValidateAmount("budget", amount); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns an independent copy; nil becomes an empty mapping.
func (b Budgets) Clone() Budgets {
	out := make(Budgets, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Lookup returns the ceiling for category, if one is set.
func (b Budgets) Lookup(category string) (decimal.Decimal, bool) {
	v, ok := b[category]
	return v, ok
}
