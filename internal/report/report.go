// Package report builds period financial reports from transactions and
// budget progress, with CSV and spreadsheet export and scheduled generation.
package report

import (
	"errors"
	"time"

	"finanzas/internal/core"
)

const (
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
	Yearly  Period = "yearly"
)

const (
	InsightSpendingIncrease InsightType = "spending_increase"
	InsightBudgetExceeded   InsightType = "budget_exceeded"
	InsightSavingsGoal      InsightType = "savings_goal"
	InsightCategory         InsightType = "category_insight"
)

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type (
	Period      string
	InsightType string
	Severity    string
)

var (
	ErrInvalidPeriod = errors.New("invalid report period")
	ErrInvalidRange  = errors.New("report end must not be before start")
)

func (p Period) Valid() bool {
	return p == Weekly || p == Monthly || p == Yearly
}

// Request selects the transactions a report covers. With FamilyID set the
// family's transactions are reported instead of the user's own.
type Request struct {
	Period   Period
	Start    time.Time
	End      time.Time
	UserID   string
	FamilyID string
}

func (r Request) Validate() error {
	if r.UserID == "" {
		return core.ErrEmptyUser
	}
	if !r.Period.Valid() {
		return ErrInvalidPeriod
	}
	if r.Start.IsZero() || r.End.IsZero() {
		return core.ErrZeroDate
	}
	if r.End.Before(r.Start) {
		return ErrInvalidRange
	}
	return nil
}

type Summary struct {
	TotalIncome        core.Money `json:"total_income"`
	TotalExpenses      core.Money `json:"total_expenses"`
	NetSavings         core.Money `json:"net_savings"`
	TransactionCount   int        `json:"transaction_count"`
	AverageTransaction core.Money `json:"average_transaction"`
}

type CategoryBreakdown struct {
	Category         string     `json:"category"`
	Income           core.Money `json:"income"`
	Expenses         core.Money `json:"expenses"`
	Net              core.Money `json:"net"`
	TransactionCount int        `json:"transaction_count"`
}

type DailyAmount struct {
	Date   string     `json:"date"` // YYYY-MM-DD
	Amount core.Money `json:"amount"`
}

type CategoryShare struct {
	Category   string  `json:"category"`
	Percentage float64 `json:"percentage"`
}

type Trends struct {
	DailySpending     []DailyAmount   `json:"daily_spending"`
	CategoryBreakdown []CategoryShare `json:"category_breakdown"`
}

// BudgetSnapshot is the state of one budget when the report was built.
type BudgetSnapshot struct {
	Category   string            `json:"category"`
	Budgeted   core.Money        `json:"budgeted"`
	Spent      core.Money        `json:"spent"`
	Remaining  core.Money        `json:"remaining"`
	Percentage float64           `json:"percentage"`
	Status     core.BudgetStatus `json:"status"`
}

type Insight struct {
	Type     InsightType    `json:"type"`
	Message  string         `json:"message"`
	Severity Severity       `json:"severity"`
	Data     map[string]any `json:"data,omitempty"`
}

type Report struct {
	Period      Period              `json:"period"`
	Start       time.Time           `json:"start_date"`
	End         time.Time           `json:"end_date"`
	UserID      string              `json:"user_id"`
	FamilyID    string              `json:"family_id,omitempty"`
	Summary     Summary             `json:"summary"`
	Categories  []CategoryBreakdown `json:"categories"`
	Trends      Trends              `json:"trends"`
	Budgets     []BudgetSnapshot    `json:"budgets"`
	Insights    []Insight           `json:"insights"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// Insight returns the first insight of the given type.
func (r Report) Insight(t InsightType) (Insight, bool) {
	for _, in := range r.Insights {
		if in.Type == t {
			return in, true
		}
	}
	return Insight{}, false
}
