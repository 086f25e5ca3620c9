package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"finanzas/internal/cache"
	"finanzas/internal/core"
	"finanzas/internal/dataapi"
)

const statsTTL = 5 * time.Minute

// StatsService computes monthly income and expense statistics.
type StatsService struct {
	txs   dataapi.TransactionReader
	cache *cache.Store
}

func NewStatsService(txs dataapi.TransactionReader, c *cache.Store) *StatsService {
	return &StatsService{txs: txs, cache: c}
}

func statsKey(userID string, year int, month time.Month) string {
	return StatsKeyPrefix + userID + "_" + strconv.Itoa(year) + "_" + strconv.Itoa(int(month))
}

// Month returns the user's totals for one calendar month (UTC), with
// per-category sums in order of first appearance.
func (s *StatsService) Month(ctx context.Context, userID string, year int, month time.Month) (core.MonthStats, error) {
	if userID == "" {
		return core.MonthStats{}, core.ErrEmptyUser
	}
	if month < time.January || month > time.December {
		return core.MonthStats{}, fmt.Errorf("invalid month %d", month)
	}
	return cache.GetOrSet(ctx, s.cache, statsKey(userID, year, month), statsTTL, func(ctx context.Context) (core.MonthStats, error) {
		start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
		txs, err := s.txs.ListTransactions(ctx, dataapi.TransactionFilter{UserID: userID, From: start, To: end})
		if err != nil {
			return core.MonthStats{}, fmt.Errorf("list transactions: %w", err)
		}
		return monthStats(year, month, txs), nil
	})
}

func monthStats(year int, month time.Month, txs []core.Transaction) core.MonthStats {
	st := core.MonthStats{Year: year, Month: month, TransactionCount: len(txs), ByCategory: []core.CategoryTotals{}}
	index := make(map[string]int)
	for _, t := range txs {
		name := t.CategoryOrDefault()
		i, ok := index[name]
		if !ok {
			i = len(st.ByCategory)
			index[name] = i
			st.ByCategory = append(st.ByCategory, core.CategoryTotals{Category: name})
		}
		if t.Type == core.Income {
			st.TotalIncome = st.TotalIncome.Add(t.Amount)
			st.ByCategory[i].Income = st.ByCategory[i].Income.Add(t.Amount)
		} else {
			st.TotalExpenses = st.TotalExpenses.Add(t.Amount)
			st.ByCategory[i].Expenses = st.ByCategory[i].Expenses.Add(t.Amount)
		}
	}
	st.Balance = st.TotalIncome.Sub(st.TotalExpenses)
	return st
}
