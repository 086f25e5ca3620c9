package report

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"finanzas/internal/core"
)

const dayLayout = "2006-01-02"

func summarize(txs []core.Transaction) Summary {
	var s Summary
	for _, t := range txs {
		switch t.Type {
		case core.Income:
			s.TotalIncome = s.TotalIncome.Add(t.Amount)
		case core.Expense:
			s.TotalExpenses = s.TotalExpenses.Add(t.Amount)
		}
	}
	s.NetSavings = s.TotalIncome.Sub(s.TotalExpenses)
	s.TransactionCount = len(txs)
	if s.TransactionCount > 0 {
		total := s.TotalIncome.Add(s.TotalExpenses).Decimal()
		s.AverageTransaction = core.MoneyFromDecimal(total.Div(decimal.NewFromInt(int64(s.TransactionCount))))
	}
	return s
}

// breakdown groups transactions by category in order of first appearance.
// Anything that is not income counts as an expense.
func breakdown(txs []core.Transaction) []CategoryBreakdown {
	out := make([]CategoryBreakdown, 0)
	index := make(map[string]int)
	for _, t := range txs {
		name := t.CategoryOrDefault()
		i, ok := index[name]
		if !ok {
			i = len(out)
			index[name] = i
			out = append(out, CategoryBreakdown{Category: name})
		}
		c := &out[i]
		if t.Type == core.Income {
			c.Income = c.Income.Add(t.Amount)
		} else {
			c.Expenses = c.Expenses.Add(t.Amount)
		}
		c.TransactionCount++
	}
	for i := range out {
		out[i].Net = out[i].Income.Sub(out[i].Expenses)
	}
	return out
}

func trends(txs []core.Transaction) Trends {
	var (
		total   core.Money
		daily   = make(map[string]core.Money)
		byCat   = make(map[string]core.Money)
		catSeen []string
	)
	for _, t := range txs {
		if t.Type != core.Expense {
			continue
		}
		day := t.Date.UTC().Format(dayLayout)
		daily[day] = daily[day].Add(t.Amount)
		name := t.CategoryOrDefault()
		if _, ok := byCat[name]; !ok {
			catSeen = append(catSeen, name)
		}
		byCat[name] = byCat[name].Add(t.Amount)
		total = total.Add(t.Amount)
	}

	tr := Trends{
		DailySpending:     make([]DailyAmount, 0, len(daily)),
		CategoryBreakdown: make([]CategoryShare, 0, len(catSeen)),
	}
	for day, amt := range daily {
		tr.DailySpending = append(tr.DailySpending, DailyAmount{Date: day, Amount: amt})
	}
	slices.SortFunc(tr.DailySpending, func(a, b DailyAmount) int { return strings.Compare(a.Date, b.Date) })

	for _, name := range catSeen {
		share := CategoryShare{Category: name}
		if total.Cents > 0 {
			share.Percentage = float64(byCat[name].Cents) / float64(total.Cents) * 100
		}
		tr.CategoryBreakdown = append(tr.CategoryBreakdown, share)
	}
	slices.SortStableFunc(tr.CategoryBreakdown, func(a, b CategoryShare) int {
		return cmp.Compare(b.Percentage, a.Percentage)
	})
	return tr
}

func snapshot(p core.BudgetProgress) BudgetSnapshot {
	return BudgetSnapshot{
		Category:   p.Budget.Category,
		Budgeted:   p.Budget.Amount,
		Spent:      p.Spent,
		Remaining:  p.Remaining,
		Percentage: p.Percentage,
		Status:     p.Status,
	}
}

// insights derives the qualitative notes of a report. previous is nil when
// the previous period could not be read.
func insights(sum Summary, cats []CategoryBreakdown, budgets []BudgetSnapshot, previous *core.Money) []Insight {
	out := make([]Insight, 0)

	// More than 20% above the previous period.
	if previous != nil && previous.Cents > 0 && sum.TotalExpenses.Cents*5 > previous.Cents*6 {
		increase := float64(sum.TotalExpenses.Cents-previous.Cents) / float64(previous.Cents) * 100
		out = append(out, Insight{
			Type:     InsightSpendingIncrease,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("Your spending increased by %.0f%% compared to the previous period", increase),
			Data: map[string]any{
				"increase": increase,
				"previous": *previous,
				"current":  sum.TotalExpenses,
			},
		})
	}

	var exceeded []BudgetSnapshot
	for _, b := range budgets {
		if b.Status == core.StatusOver {
			exceeded = append(exceeded, b)
		}
	}
	if len(exceeded) > 0 {
		names := make([]string, len(exceeded))
		for i, b := range exceeded {
			names[i] = b.Category
		}
		out = append(out, Insight{
			Type:     InsightBudgetExceeded,
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("You have exceeded %d budget(s): %s", len(exceeded), strings.Join(names, ", ")),
			Data:     map[string]any{"exceeded_budgets": exceeded},
		})
	}

	if sum.NetSavings.Cents > 0 {
		out = append(out, Insight{
			Type:     InsightSavingsGoal,
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("Great! You saved %s this period", sum.NetSavings),
			Data:     map[string]any{"savings": sum.NetSavings},
		})
	}

	if top, ok := topExpenseCategory(cats); ok {
		out = append(out, Insight{
			Type:     InsightCategory,
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("%s is your top spending category with %s", top.Category, top.Expenses),
			Data:     map[string]any{"category": top},
		})
	}
	return out
}

// topExpenseCategory picks the highest expense total. Ties go to the category
// that appeared first.
func topExpenseCategory(cats []CategoryBreakdown) (CategoryBreakdown, bool) {
	var (
		top   CategoryBreakdown
		found bool
	)
	for _, c := range cats {
		if c.Expenses.Cents <= 0 {
			continue
		}
		if !found || c.Expenses.Cents > top.Expenses.Cents {
			top, found = c, true
		}
	}
	return top, found
}
