package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"finanzas/internal/budget"
	"finanzas/internal/cache"
	"finanzas/internal/core"
	"finanzas/internal/dataapi"
	"finanzas/internal/dataapi/memory"
)

var (
	testNow    = time.Date(2025, 4, 2, 12, 0, 0, 0, time.UTC)
	marchStart = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	marchEnd   = time.Date(2025, 3, 31, 23, 59, 59, 0, time.UTC)
)

func clock() time.Time { return testNow }

func units(n int64) core.Money { return core.Money{Cents: n * 100} }

func tx(id string, typ core.TransactionType, amount int64, category string, date time.Time) core.Transaction {
	return core.Transaction{ID: id, UserID: "u1", Type: typ, Amount: units(amount), Category: category, Date: date}
}

func march(day int) time.Time { return time.Date(2025, 3, day, 10, 0, 0, 0, time.UTC) }

func marchRequest() Request {
	return Request{Period: Monthly, Start: marchStart, End: marchEnd, UserID: "u1"}
}

// failingPrevious fails reads that end before the reported period.
type failingPrevious struct {
	dataapi.TransactionReader
	before time.Time
}

func (f failingPrevious) ListTransactions(ctx context.Context, flt dataapi.TransactionFilter) ([]core.Transaction, error) {
	if flt.To.Before(f.before) {
		return nil, dataapi.ErrUnavailable
	}
	return f.TransactionReader.ListTransactions(ctx, flt)
}

type stubBudgets struct {
	budgets     []core.Budget
	listErr     error
	progress    map[string]core.BudgetProgress
	progressErr map[string]error
}

func (s stubBudgets) UserBudgets(context.Context, string, string) ([]core.Budget, error) {
	return s.budgets, s.listErr
}

func (s stubBudgets) Progress(_ context.Context, id, _ string) (core.BudgetProgress, error) {
	if err := s.progressErr[id]; err != nil {
		return core.BudgetProgress{}, err
	}
	return s.progress[id], nil
}

func newGenerator(t *testing.T, txs dataapi.TransactionReader, budgets BudgetSource) (*Generator, *cache.Store) {
	t.Helper()
	store := cache.NewStore(cache.Options{Now: clock})
	g, err := NewGenerator(Options{Transactions: txs, Budgets: budgets, Cache: store, Now: clock})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	return g, store
}

func TestGenerate_SummaryAndBreakdown(t *testing.T) {
	backend := memory.NewWithClock(clock)
	backend.Seed([]core.Transaction{
		tx("t1", core.Income, 1000, "salary", march(1)),
		tx("t2", core.Expense, 300, "food", march(3)),
		tx("t3", core.Expense, 200, "", march(3)),
		tx("t4", core.Expense, 500, "food", march(10)),
		tx("t5", core.Expense, 500, "rent", march(5)),
	}, nil)
	g, _ := newGenerator(t, backend, stubBudgets{})

	r, err := g.Generate(context.Background(), marchRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	s := r.Summary
	if s.TotalIncome != units(1000) || s.TotalExpenses != units(1500) || s.NetSavings != units(-500) {
		t.Fatalf("unexpected summary: %+v", s)
	}
	// (1000 + 1500) / 5
	if s.TransactionCount != 5 || s.AverageTransaction != units(500) {
		t.Fatalf("count/average = %d/%s", s.TransactionCount, s.AverageTransaction)
	}

	wantCats := []string{"salary", "food", core.UncategorizedLabel, "rent"}
	if len(r.Categories) != len(wantCats) {
		t.Fatalf("unexpected categories: %+v", r.Categories)
	}
	for i, c := range r.Categories {
		if c.Category != wantCats[i] {
			t.Errorf("category %d = %s, want %s", i, c.Category, wantCats[i])
		}
	}
	if food := r.Categories[1]; food.Expenses != units(800) || food.Net != units(-800) || food.TransactionCount != 2 {
		t.Errorf("unexpected food breakdown: %+v", food)
	}

	days := r.Trends.DailySpending
	if len(days) != 3 || days[0].Date != "2025-03-03" || days[0].Amount != units(500) || days[2].Date != "2025-03-10" {
		t.Fatalf("unexpected daily spending: %+v", days)
	}
	shares := r.Trends.CategoryBreakdown
	if len(shares) != 3 || shares[0].Category != "food" || shares[2].Category != core.UncategorizedLabel {
		t.Fatalf("unexpected category shares: %+v", shares)
	}
	for i := 1; i < len(shares); i++ {
		if shares[i].Percentage > shares[i-1].Percentage {
			t.Fatalf("shares must be descending: %+v", shares)
		}
	}

	if _, ok := r.Insight(InsightSavingsGoal); ok {
		t.Error("no savings insight expected with negative net")
	}
	top, ok := r.Insight(InsightCategory)
	if !ok || !strings.HasPrefix(top.Message, "food ") {
		t.Errorf("expected food as top category, got %+v", top)
	}
}

func TestGenerate_SpendingIncreaseThreshold(t *testing.T) {
	prev := time.Date(2025, 2, 15, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		name     string
		previous int64
		want     bool
	}{
		{"well below", 1000, true},
		{"just below threshold", 1249, true},
		{"exactly at threshold", 1250, false},
		{"higher", 2000, false},
		{"no previous spending", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			backend := memory.NewWithClock(clock)
			txs := []core.Transaction{
				tx("t1", core.Income, 1000, "salary", march(1)),
				tx("t2", core.Expense, 1500, "rent", march(2)),
			}
			if tc.previous > 0 {
				txs = append(txs, tx("p1", core.Expense, tc.previous, "rent", prev))
			}
			backend.Seed(txs, nil)
			g, _ := newGenerator(t, backend, stubBudgets{})

			r, err := g.Generate(context.Background(), marchRequest())
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			if r.Summary.NetSavings != units(-500) {
				t.Fatalf("net = %s, want -500.00", r.Summary.NetSavings)
			}
			in, ok := r.Insight(InsightSpendingIncrease)
			if ok != tc.want {
				t.Fatalf("spending_increase present = %v, want %v", ok, tc.want)
			}
			if ok && in.Severity != SeverityWarning {
				t.Fatalf("severity = %s", in.Severity)
			}
		})
	}
}

func TestGenerate_PreviousPeriodFailureIsSilent(t *testing.T) {
	backend := memory.NewWithClock(clock)
	backend.Seed([]core.Transaction{tx("t1", core.Expense, 100, "food", march(2))}, nil)
	g, _ := newGenerator(t, failingPrevious{TransactionReader: backend, before: marchStart}, stubBudgets{})

	r, err := g.Generate(context.Background(), marchRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, ok := r.Insight(InsightSpendingIncrease); ok {
		t.Fatal("no comparison insight expected")
	}
	if r.Summary.TotalExpenses != units(100) {
		t.Fatalf("unexpected summary %+v", r.Summary)
	}
}

func TestGenerate_PrimaryFailuresPropagate(t *testing.T) {
	backend := memory.NewWithClock(clock)
	backend.SetUnavailable(true)
	g, store := newGenerator(t, backend, stubBudgets{})
	if _, err := g.Generate(context.Background(), marchRequest()); !errors.Is(err, dataapi.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if store.Has(CacheKey(marchRequest())) {
		t.Fatal("failed reports must not be cached")
	}

	listErr := errors.New("budgets down")
	g, _ = newGenerator(t, memory.NewWithClock(clock), stubBudgets{listErr: listErr})
	if _, err := g.Generate(context.Background(), marchRequest()); !errors.Is(err, listErr) {
		t.Fatalf("expected budget list error, got %v", err)
	}
}

func TestGenerate_BudgetSnapshots(t *testing.T) {
	food := core.Budget{ID: "b1", Category: "food", Amount: units(100)}
	rent := core.Budget{ID: "b2", Category: "rent", Amount: units(1000)}
	fun := core.Budget{ID: "b3", Category: "fun", Amount: units(50)}
	src := stubBudgets{
		budgets: []core.Budget{food, rent, fun},
		progress: map[string]core.BudgetProgress{
			"b1": {Budget: food, Spent: units(150), Remaining: units(-50), Percentage: 150, Status: core.StatusOver},
			"b2": {Budget: rent, Spent: units(500), Remaining: units(500), Percentage: 50, Status: core.StatusUnder},
		},
		progressErr: map[string]error{"b3": errors.New("boom")},
	}
	backend := memory.NewWithClock(clock)
	backend.Seed([]core.Transaction{tx("t1", core.Income, 100, "salary", march(1))}, nil)
	g, _ := newGenerator(t, backend, src)

	r, err := g.Generate(context.Background(), marchRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(r.Budgets) != 2 {
		t.Fatalf("expected the failing budget to be skipped, got %+v", r.Budgets)
	}
	in, ok := r.Insight(InsightBudgetExceeded)
	if !ok || in.Severity != SeverityCritical || !strings.Contains(in.Message, "1 budget(s): food") {
		t.Fatalf("unexpected budget insight %+v", in)
	}
	if in, ok := r.Insight(InsightSavingsGoal); !ok || !strings.Contains(in.Message, "100.00") {
		t.Fatalf("expected savings insight, got %+v", in)
	}
	if _, ok := r.Insight(InsightCategory); ok {
		t.Fatal("no category insight without expenses")
	}
}

func TestGenerate_WithBudgetManager(t *testing.T) {
	backend := memory.NewWithClock(clock)
	backend.Seed([]core.Transaction{
		tx("t1", core.Expense, 900, "food", march(4)),
	}, []core.Budget{{
		ID: "b1", UserID: "u1", Category: "food", Amount: units(800),
		Period: core.Monthly, StartDate: marchStart, Active: true,
	}})
	store := cache.NewStore(cache.Options{Now: clock})
	bm, err := budget.NewManager(budget.Options{Budgets: backend, Transactions: backend, Cache: store, Now: clock})
	if err != nil {
		t.Fatalf("budget.NewManager: %v", err)
	}
	g, err := NewGenerator(Options{Transactions: backend, Budgets: bm, Cache: store, Now: clock})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	r, err := g.Generate(context.Background(), marchRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(r.Budgets) != 1 || r.Budgets[0].Status != core.StatusOver || r.Budgets[0].Remaining != units(-100) {
		t.Fatalf("unexpected snapshots %+v", r.Budgets)
	}
	if !store.Has("budget_progress_b1_u1") || !store.Has(CacheKey(marchRequest())) {
		t.Fatalf("expected budget and report entries cached, keys=%v", store.Keys())
	}
}

func TestGenerate_Cached(t *testing.T) {
	backend := memory.NewWithClock(clock)
	backend.Seed([]core.Transaction{tx("t1", core.Expense, 100, "food", march(2))}, nil)
	g, _ := newGenerator(t, backend, stubBudgets{})
	ctx := context.Background()

	first, err := g.Generate(ctx, marchRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	backend.Seed([]core.Transaction{tx("t2", core.Expense, 900, "food", march(3))}, nil)
	second, err := g.Generate(ctx, marchRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if second.Summary.TotalExpenses != first.Summary.TotalExpenses {
		t.Fatal("expected cached report within ttl")
	}
}

func TestGenerate_InvalidRequest(t *testing.T) {
	g, _ := newGenerator(t, memory.NewWithClock(clock), stubBudgets{})
	cases := []struct {
		name string
		req  Request
		want error
	}{
		{"no user", Request{Period: Monthly, Start: marchStart, End: marchEnd}, core.ErrEmptyUser},
		{"bad period", Request{Period: "daily", Start: marchStart, End: marchEnd, UserID: "u1"}, ErrInvalidPeriod},
		{"reversed", Request{Period: Monthly, Start: marchEnd, End: marchStart, UserID: "u1"}, ErrInvalidRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := g.Generate(context.Background(), tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestConvenienceRanges(t *testing.T) {
	g, _ := newGenerator(t, memory.NewWithClock(clock), stubBudgets{})
	ctx := context.Background()

	cases := []struct {
		period Period
		start  time.Time
	}{
		{Weekly, testNow.AddDate(0, 0, -7)},
		{Monthly, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)},
		{Yearly, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		r, err := g.ForPeriod(ctx, tc.period, "u1", "")
		if err != nil {
			t.Fatalf("%s: %v", tc.period, err)
		}
		if !r.Start.Equal(tc.start) || !r.End.Equal(testNow) || r.Period != tc.period {
			t.Errorf("%s: range %v - %v", tc.period, r.Start, r.End)
		}
	}
	if _, err := g.ForPeriod(ctx, "daily", "u1", ""); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestTopExpenseCategoryTie(t *testing.T) {
	cats := []CategoryBreakdown{
		{Category: "travel", Expenses: units(100)},
		{Category: "books", Expenses: units(100)},
		{Category: "salary", Income: units(900)},
	}
	top, ok := topExpenseCategory(cats)
	if !ok || top.Category != "travel" {
		t.Fatalf("expected the first category on tie, got %+v", top)
	}
}
