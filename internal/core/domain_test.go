package core

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want Date
		ok   bool
	}{
		{"2024-01-15", NewDate(2024, time.January, 15), true},
		{" 2024-12-31 ", NewDate(2024, time.December, 31), true},
		{"2024-01-15T23:30:00.000Z", NewDate(2024, time.January, 15), true},
		{"2024-01-15T23:30:00-05:00", NewDate(2024, time.January, 16), true}, // UTC date kept
		{"15/01/2024", Date{}, false},
		{"", Date{}, false},
	}
	for _, tc := range cases {
		got, err := ParseDate(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(tc.want.Time) {
				t.Fatalf("%q expected %v, got %v (err=%v)", tc.in, tc.want, got, err)
			}
			continue
		}
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("%q expected validation error, got %v", tc.in, err)
		}
	}
}

func TestDateJSON(t *testing.T) {
	b, err := json.Marshal(NewDate(2024, time.January, 5))
	if err != nil || string(b) != `"2024-01-05"` {
		t.Fatalf("unexpected marshal: %s err=%v", b, err)
	}

	var d Date
	if err := json.Unmarshal([]byte(`"2023-06-30T10:00:00.000Z"`), &d); err != nil {
		t.Fatalf("unmarshal legacy timestamp: %v", err)
	}
	if d.String() != "2023-06-30" {
		t.Fatalf("expected 2023-06-30, got %s", d)
	}
	if err := json.Unmarshal([]byte(`null`), &d); err != nil || !d.IsZero() {
		t.Fatalf("null should give zero date, got %v err=%v", d, err)
	}
}

func TestDateInMonth(t *testing.T) {
	d := NewDate(2024, time.March, 31)
	if !d.InMonth(time.Date(2024, time.March, 1, 12, 0, 0, 0, time.Local)) {
		t.Fatal("expected same month")
	}
	if d.InMonth(time.Date(2023, time.March, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatal("different year must not match")
	}
}

func TestExpenseValidate(t *testing.T) {
	cats := DefaultCategories()
	good := Expense{
		ID:          "e1",
		UserID:      "u1",
		Date:        NewDate(2025, 1, 1),
		Description: "ok",
		Amount:      decimal.RequireFromString("1.00"),
		Category:    "Shopping",
	}
	if err := good.Validate(cats); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	zero := good
	zero.Amount = decimal.Zero
	if err := zero.Validate(cats); err != nil {
		t.Fatalf("zero amount should be allowed, got %v", err)
	}

	mutate := func(f func(*Expense)) Expense {
		e := good
		f(&e)
		return e
	}
	bads := map[string]Expense{
		"zero date":        mutate(func(e *Expense) { e.Date = Date{} }),
		"empty desc":       mutate(func(e *Expense) { e.Description = "  " }),
		"long desc":        mutate(func(e *Expense) { e.Description = strings.Repeat("x", 201) }),
		"negative amount":  mutate(func(e *Expense) { e.Amount = decimal.NewFromInt(-1) }),
		"empty category":   mutate(func(e *Expense) { e.Category = "" }),
		"unknown category": mutate(func(e *Expense) { e.Category = "Crypto" }),
		"missing user":     mutate(func(e *Expense) { e.UserID = "" }),
		"missing id":       mutate(func(e *Expense) { e.ID = "" }),
	}
	for name, e := range bads {
		err := e.Validate(cats)
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}

	// nil category list accepts any non-empty name
	free := mutate(func(e *Expense) { e.Category = "Crypto" })
	if err := free.Validate(nil); err != nil {
		t.Fatalf("free-text category rejected: %v", err)
	}

	// the cap counts characters, not bytes
	accented := mutate(func(e *Expense) { e.Description = strings.Repeat("é", 120) })
	if err := accented.Validate(cats); err != nil {
		t.Fatalf("120 characters rejected: %v", err)
	}
}

func TestExpenseCheckStored(t *testing.T) {
	stored := Expense{
		ID:          "e1",
		Date:        NewDate(2024, 1, 15),
		Description: strings.Repeat("é", 300),
		Amount:      decimal.RequireFromString("4.50"),
		Category:    "Groceries",
	}
	if err := stored.CheckStored(); err != nil {
		t.Fatalf("stored record rejected: %v", err)
	}

	cases := map[string]func(*Expense){
		"missing id":      func(e *Expense) { e.ID = "" },
		"negative amount": func(e *Expense) { e.Amount = decimal.NewFromInt(-1) },
		"zero date":       func(e *Expense) { e.Date = Date{} },
	}
	for name, f := range cases {
		e := stored
		f(&e)
		if err := e.CheckStored(); !errors.Is(err, ErrValidation) {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestDecodeBudgetsKeepsReadableEntries(t *testing.T) {
	b, bad, err := DecodeBudgets([]byte(`{"Shopping":"abc","Healthcare":"50","Other":""}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(bad) != 1 || bad["Shopping"] == nil {
		t.Fatalf("expected Shopping reported as bad, got %v", bad)
	}
	if v, ok := b.Lookup("Healthcare"); !ok || !v.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("unexpected healthcare budget %v", v)
	}
	if len(b) != 1 {
		t.Fatalf("expected 1 budget, got %v", b)
	}

	if _, _, err := DecodeBudgets([]byte(`[1,2]`)); err == nil {
		t.Fatal("expected error for a non-object")
	}
}

func TestBudgetsUnmarshal(t *testing.T) {
	var b Budgets
	err := json.Unmarshal([]byte(`{"Food & Dining":"4.00","Shopping":120,"Healthcare":"","Other":null}`), &b)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(b) != 2 {
		t.Fatalf("expected 2 budgets, got %v", b)
	}
	if v, ok := b.Lookup("Food & Dining"); !ok || !v.Equal(decimal.RequireFromString("4")) {
		t.Fatalf("unexpected food budget %v", v)
	}
	if v, ok := b.Lookup("Shopping"); !ok || !v.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("unexpected shopping budget %v", v)
	}
	if _, ok := b.Lookup("Healthcare"); ok {
		t.Fatal("empty string must mean no budget")
	}

	if err := json.Unmarshal([]byte(`{"Shopping":"abc"}`), &b); err == nil {
		t.Fatal("expected error for non-numeric budget")
	}
}

func TestBudgetsValidate(t *testing.T) {
	cats := DefaultCategories()
	if err := (Budgets{"Shopping": decimal.NewFromInt(10)}).Validate(cats); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Budgets{"Nope": decimal.NewFromInt(10)}).Validate(cats); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected unknown category error, got %v", err)
	}
	if err := (Budgets{"Shopping": decimal.NewFromInt(-10)}).Validate(cats); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected negative budget error, got %v", err)
	}
}
