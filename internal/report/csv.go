package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Rows lays the report out as a sheet: a title line, the summary, the
// category table and the budget table, separated by blank rows.
func Rows(r Report) [][]string {
	rows := [][]string{
		{"Financial report", string(r.Period), r.Start.Format(time.RFC3339) + " - " + r.End.Format(time.RFC3339)},
		{},
		{"SUMMARY"},
		{"Total income", r.Summary.TotalIncome.String()},
		{"Total expenses", r.Summary.TotalExpenses.String()},
		{"Net savings", r.Summary.NetSavings.String()},
		{"Transaction count", strconv.Itoa(r.Summary.TransactionCount)},
		{"Average transaction", r.Summary.AverageTransaction.String()},
		{},
		{"CATEGORIES", "Income", "Expenses", "Net", "Transactions"},
	}
	for _, c := range r.Categories {
		rows = append(rows, []string{c.Category, c.Income.String(), c.Expenses.String(), c.Net.String(), strconv.Itoa(c.TransactionCount)})
	}
	rows = append(rows, []string{}, []string{"BUDGETS", "Budgeted", "Spent", "Remaining", "Percentage", "Status"})
	for _, b := range r.Budgets {
		rows = append(rows, []string{
			b.Category,
			b.Budgeted.String(),
			b.Spent.String(),
			b.Remaining.String(),
			strconv.FormatFloat(b.Percentage, 'f', 2, 64),
			string(b.Status),
		})
	}
	return rows
}

// WriteCSV writes Rows(r) as CSV. Category names containing commas or
// quotes are escaped.
func WriteCSV(w io.Writer, r Report) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(Rows(r)); err != nil {
		return fmt.Errorf("write report csv: %w", err)
	}
	return nil
}
