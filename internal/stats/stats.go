// Package stats derives dashboard numbers from a user's expense records.
//
// Everything here is a pure function of its inputs and is recomputed on every
// call; nothing is cached.
package stats

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/core"
)

const (
	// DefaultTrendMonths is the length of the dashboard trend series.
	DefaultTrendMonths = 6
	// DefaultRecent is how many records the dashboard lists.
	DefaultRecent = 10
)

var hundred = decimal.NewFromInt(100)

// TotalOf sums every amount. The result does not depend on record order.
func TotalOf(records []core.Expense) decimal.Decimal {
	total := decimal.Zero
	for _, e := range records {
		total = total.Add(e.Amount)
	}
	return total
}

// MonthTotal sums records in the same calendar month and year as ref.
func MonthTotal(records []core.Expense, ref time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, e := range records {
		if e.Date.InMonth(ref) {
			total = total.Add(e.Amount)
		}
	}
	return total
}

func categoryTotal(records []core.Expense, category string) decimal.Decimal {
	total := decimal.Zero
	for _, e := range records {
		if e.Category == category {
			total = total.Add(e.Amount)
		}
	}
	return total
}

// CategoryTotals returns one entry per category with a positive sum, in the
// order categories are given.
func CategoryTotals(records []core.Expense, categories []string) []core.CategoryAmount {
	out := make([]core.CategoryAmount, 0, len(categories))
	for _, c := range categories {
		if sum := categoryTotal(records, c); sum.IsPositive() {
			out = append(out, core.CategoryAmount{Name: c, Amount: sum})
		}
	}
	return out
}

// TrailingMonths returns exactly n monthly sums ending with asOf's month,
// oldest first. Months are stepped from the first of the month so that a
// 31st never skips a shorter month.
func TrailingMonths(records []core.Expense, n int, asOf time.Time) []core.MonthAmount {
	if n <= 0 {
		return []core.MonthAmount{}
	}
	first := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, time.UTC)

	out := make([]core.MonthAmount, n)
	for i := 0; i < n; i++ {
		m := first.AddDate(0, -i, 0)
		out[n-1-i] = core.MonthAmount{
			Label:  m.Month().String()[:3],
			Year:   m.Year(),
			Month:  m.Month(),
			Amount: MonthTotal(records, m),
		}
	}
	return out
}

// IsOverBudget reports whether category has a budget and its all-time total
// strictly exceeds it.
func IsOverBudget(records []core.Expense, budgets core.Budgets, category string) bool {
	ceiling, ok := budgets.Lookup(category)
	if !ok {
		return false
	}
	return categoryTotal(records, category).GreaterThan(ceiling)
}

// CategoryShares expresses each category total as a percentage of the overall
// total, rounded to one decimal.
func CategoryShares(records []core.Expense, categories []string) []core.CategoryShare {
	total := TotalOf(records)
	totals := CategoryTotals(records, categories)
	out := make([]core.CategoryShare, 0, len(totals))
	if !total.IsPositive() {
		return out
	}
	for _, ct := range totals {
		out = append(out, core.CategoryShare{
			Name:    ct.Name,
			Amount:  ct.Amount,
			Percent: ct.Amount.Mul(hundred).DivRound(total, 1),
		})
	}
	return out
}

// BudgetStatuses lists every budgeted category, in category order.
func BudgetStatuses(records []core.Expense, budgets core.Budgets, categories []string) []core.BudgetStatus {
	out := make([]core.BudgetStatus, 0, len(budgets))
	for _, c := range categories {
		ceiling, ok := budgets.Lookup(c)
		if !ok {
			continue
		}
		spent := categoryTotal(records, c)
		out = append(out, core.BudgetStatus{
			Category:  c,
			Spent:     spent,
			Budget:    ceiling,
			Remaining: ceiling.Sub(spent),
			Over:      spent.GreaterThan(ceiling),
		})
	}
	return out
}

// Recent returns up to n records, newest date first. Records sharing a date
// keep their stored order.
func Recent(records []core.Expense, n int) []core.Expense {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b core.Expense) int {
		return b.Date.Compare(a.Date.Time)
	})
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	if sorted == nil {
		sorted = []core.Expense{}
	}
	return sorted
}

// Summarize computes the full dashboard for one user. months <= 0 uses
// DefaultTrendMonths.
func Summarize(records []core.Expense, budgets core.Budgets, categories []string, asOf time.Time, months int) core.Summary {
	if months <= 0 {
		months = DefaultTrendMonths
	}
	return core.Summary{
		AsOf:       core.DateOf(asOf),
		Count:      len(records),
		Total:      TotalOf(records),
		ThisMonth:  MonthTotal(records, asOf),
		ByCategory: CategoryTotals(records, categories),
		Shares:     CategoryShares(records, categories),
		Trend:      TrailingMonths(records, months, asOf),
		Budgets:    BudgetStatuses(records, budgets, categories),
		Recent:     Recent(records, DefaultRecent),
	}
}
