package core

import "time"

const (
	StatusUnder   BudgetStatus = "under"
	StatusWarning BudgetStatus = "warning"
	StatusOver    BudgetStatus = "over"
)

const (
	// WarningThreshold and OverThreshold are percentages of a budget amount.
	WarningThreshold = 80.0
	OverThreshold    = 100.0
)

type BudgetStatus string

// BudgetProgress is derived from a budget and the transactions inside its window.
// It is never persisted.
type BudgetProgress struct {
	Budget     Budget       `json:"budget"`
	Spent      Money        `json:"spent"`
	Remaining  Money        `json:"remaining"`
	Percentage float64      `json:"percentage"`
	Status     BudgetStatus `json:"status"`
	DaysLeft   int          `json:"days_left"`
}

// StatusFor maps a consumption percentage to a budget status.
func StatusFor(percentage float64) BudgetStatus {
	switch {
	case percentage >= OverThreshold:
		return StatusOver
	case percentage >= WarningThreshold:
		return StatusWarning
	default:
		return StatusUnder
	}
}

// Percentage returns spent/amount*100. A non-positive amount yields 100 when
// anything was spent and 0 otherwise.
func Percentage(spent, amount Money) float64 {
	if amount.Cents <= 0 {
		if spent.Cents > 0 {
			return 100
		}
		return 0
	}
	return float64(spent.Cents) / float64(amount.Cents) * 100
}

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string `json:"name"`
	Amount Money  `json:"amount"`
}

// MonthStats is a compact income/expense summary for a specific year+month.
type MonthStats struct {
	Year             int              `json:"year"`
	Month            time.Month       `json:"month"`
	TotalIncome      Money            `json:"total_income"`
	TotalExpenses    Money            `json:"total_expenses"`
	Balance          Money            `json:"balance"`
	TransactionCount int              `json:"transaction_count"`
	ByCategory       []CategoryTotals `json:"by_category"`
}

// CategoryTotals holds the income and expense sums of one category.
type CategoryTotals struct {
	Category string `json:"category"`
	Income   Money  `json:"income"`
	Expenses Money  `json:"expenses"`
}
