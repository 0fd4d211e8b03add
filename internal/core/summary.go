package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"value"`
}

// CategoryShare is a category's slice of the overall total, in percent.
type CategoryShare struct {
	Name    string          `json:"name"`
	Amount  decimal.Decimal `json:"value"`
	Percent decimal.Decimal `json:"percent"`
}

// MonthAmount is one point of a monthly trend series.
type MonthAmount struct {
	Label  string          `json:"month"`
	Year   int             `json:"year"`
	Month  time.Month      `json:"monthNumber"`
	Amount decimal.Decimal `json:"amount"`
}

// BudgetStatus compares a category's all-time spend with its ceiling.
type BudgetStatus struct {
	Category  string          `json:"category"`
	Spent     decimal.Decimal `json:"spent"`
	Budget    decimal.Decimal `json:"budget"`
	Remaining decimal.Decimal `json:"remaining"`
	Over      bool            `json:"over"`
}

// Summary is everything a dashboard shows for one user.
type Summary struct {
	AsOf       Date             `json:"asOf"`
	Count      int              `json:"count"`
	Total      decimal.Decimal  `json:"total"`
	ThisMonth  decimal.Decimal  `json:"thisMonth"`
	ByCategory []CategoryAmount `json:"byCategory"`
	Shares     []CategoryShare  `json:"shares"`
	Trend      []MonthAmount    `json:"trend"`
	Budgets    []BudgetStatus   `json:"budgets"`
	Recent     []Expense        `json:"recent"`
}
