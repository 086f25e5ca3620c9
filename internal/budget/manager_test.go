package budget

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"finanzas/internal/cache"
	"finanzas/internal/core"
	"finanzas/internal/dataapi"
	"finanzas/internal/dataapi/memory"
)

var testNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return testNow }

func money(units int64) core.Money { return core.Money{Cents: units * 100} }

func expense(id, user, category string, units int64, day int) core.Transaction {
	return core.Transaction{
		ID:       id,
		UserID:   user,
		Type:     core.Expense,
		Amount:   money(units),
		Category: category,
		Date:     time.Date(2025, 3, day, 10, 0, 0, 0, time.UTC),
	}
}

func foodBudget(id string, units int64) core.Budget {
	return core.Budget{
		ID:        id,
		UserID:    "u1",
		Category:  "food",
		Amount:    money(units),
		Period:    core.Monthly,
		StartDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Active:    true,
	}
}

func newTestManager(t *testing.T, backend *memory.Store) (*Manager, *cache.Store) {
	t.Helper()
	store := cache.NewStore(cache.Options{Now: clock})
	m, err := NewManager(Options{Budgets: backend, Transactions: backend, Cache: store, Now: clock})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m, store
}

func TestProgress(t *testing.T) {
	backend := memory.NewWithClock(clock)
	backend.Seed([]core.Transaction{
		expense("t1", "u1", "food", 500, 2),
		expense("t2", "u1", "food", 350, 10),
		expense("t3", "u1", "rent", 900, 3),
		expense("t4", "u2", "food", 100, 3),
		{ID: "t5", UserID: "u1", Type: core.Income, Amount: money(50), Category: "food", Date: testNow},
	}, []core.Budget{foodBudget("b1", 1000)})
	m, _ := newTestManager(t, backend)

	p, err := m.Progress(context.Background(), "b1", "u1")
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if p.Spent != money(850) || p.Remaining != money(150) {
		t.Fatalf("spent/remaining = %s/%s", p.Spent, p.Remaining)
	}
	if p.Percentage < 84.99 || p.Percentage > 85.01 || p.Status != core.StatusWarning {
		t.Fatalf("percentage/status = %v/%s", p.Percentage, p.Status)
	}
	// Window ends 2025-04-01 00:00, now is 2025-03-15 12:00: 16.5 days round up.
	if p.DaysLeft != 17 {
		t.Fatalf("daysLeft = %d, want 17", p.DaysLeft)
	}
}

func TestProgress_Cached(t *testing.T) {
	backend := memory.NewWithClock(clock)
	backend.Seed([]core.Transaction{expense("t1", "u1", "food", 100, 2)}, []core.Budget{foodBudget("b1", 1000)})
	m, store := newTestManager(t, backend)
	ctx := context.Background()

	if _, err := m.Progress(ctx, "b1", "u1"); err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if !store.Has("budget_progress_b1_u1") {
		t.Fatal("expected progress to be cached")
	}

	// Served from cache even though the backend is down.
	backend.SetUnavailable(true)
	p, err := m.Progress(ctx, "b1", "u1")
	if err != nil || p.Spent != money(100) {
		t.Fatalf("expected cached progress, got %+v %v", p, err)
	}
}

func TestProgress_FamilyBudgetPerMember(t *testing.T) {
	fb := foodBudget("fb", 1000)
	fb.FamilyID = "fam1"
	alice := expense("t1", "alice", "food", 900, 4)
	bob := expense("t2", "bob", "food", 100, 6)
	backend := memory.NewWithClock(clock)
	backend.Seed([]core.Transaction{alice, bob}, []core.Budget{fb})
	m, _ := newTestManager(t, backend)
	ctx := context.Background()

	as, err := m.Summary(ctx, "alice", "fam1")
	if err != nil {
		t.Fatalf("Summary(alice): %v", err)
	}
	bs, err := m.Summary(ctx, "bob", "fam1")
	if err != nil {
		t.Fatalf("Summary(bob): %v", err)
	}
	if as.TotalSpent != money(900) || bs.TotalSpent != money(100) {
		t.Fatalf("summary spent alice/bob = %s/%s, want 900.00/100.00", as.TotalSpent, bs.TotalSpent)
	}

	p, err := m.Progress(ctx, "fb", "bob")
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if p.Spent != money(100) || p.Remaining != money(900) {
		t.Fatalf("bob progress spent/remaining = %s/%s", p.Spent, p.Remaining)
	}
}

func TestProgress_MissingBudget(t *testing.T) {
	m, store := newTestManager(t, memory.NewWithClock(clock))
	_, err := m.Progress(context.Background(), "nope", "u1")
	if !errors.Is(err, dataapi.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if store.Has("budget_progress_nope_u1") {
		t.Fatal("failures must not be cached")
	}
}

func TestProgress_NegativeDaysLeft(t *testing.T) {
	b := foodBudget("old", 100)
	b.StartDate = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	backend := memory.NewWithClock(clock)
	backend.Seed(nil, []core.Budget{b})
	m, _ := newTestManager(t, backend)

	p, err := m.Progress(context.Background(), "old", "u1")
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if p.DaysLeft >= 0 {
		t.Fatalf("expected negative daysLeft, got %d", p.DaysLeft)
	}
}

func TestCheckExceeded(t *testing.T) {
	backend := memory.NewWithClock(clock)
	backend.Seed([]core.Transaction{expense("t1", "u1", "food", 600, 5)}, []core.Budget{foodBudget("b1", 1000)})
	m, _ := newTestManager(t, backend)
	ctx := context.Background()

	cases := []struct {
		name      string
		category  string
		amount    int64
		exceeded  bool
		hasBudget bool
	}{
		{"over", "food", 500, true, true},
		{"exactly at limit", "food", 400, false, true},
		{"under", "food", 10, false, true},
		{"no budget", "travel", 5000, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := m.CheckExceeded(ctx, "u1", tc.category, money(tc.amount))
			if err != nil {
				t.Fatalf("CheckExceeded: %v", err)
			}
			if got.Exceeded != tc.exceeded {
				t.Errorf("exceeded = %v, want %v", got.Exceeded, tc.exceeded)
			}
			if (got.Budget != nil) != tc.hasBudget {
				t.Fatalf("budget presence = %v, want %v", got.Budget != nil, tc.hasBudget)
			}
			if tc.hasBudget && (got.Remaining != money(400) || got.CurrentSpent != money(600)) {
				t.Errorf("remaining/spent = %s/%s, want 400.00/600.00", got.Remaining, got.CurrentSpent)
			}
		})
	}
}

func TestAlerts(t *testing.T) {
	rent := foodBudget("b2", 1000)
	rent.Category = "rent"
	fun := foodBudget("b3", 1000)
	fun.Category = "fun"
	backend := memory.NewWithClock(clock)
	backend.Seed([]core.Transaction{
		expense("t1", "u1", "food", 850, 5),
		expense("t2", "u1", "rent", 1250, 1),
		expense("t3", "u1", "fun", 100, 1),
	}, []core.Budget{foodBudget("b1", 1000), rent, fun})
	m, _ := newTestManager(t, backend)

	alerts, err := m.Alerts(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Alerts: %v", err)
	}
	byBudget := make(map[string]Alert)
	for _, a := range alerts {
		byBudget[a.BudgetID] = a
	}
	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %+v", alerts)
	}
	if a := byBudget["b1"]; a.Type != AlertWarning || a.ID != "warning_b1" || !strings.Contains(a.Message, "85%") {
		t.Errorf("unexpected food alert: %+v", a)
	}
	if a := byBudget["b2"]; a.Type != AlertCritical || a.Threshold != 100 || !strings.Contains(a.Message, "25%") {
		t.Errorf("unexpected rent alert: %+v", a)
	}
	if _, ok := byBudget["b3"]; ok {
		t.Error("budget under 80% must not alert")
	}
}

func TestMutationsInvalidateBudgetKeys(t *testing.T) {
	backend := memory.NewWithClock(clock)
	m, store := newTestManager(t, backend)
	ctx := context.Background()

	store.Set("budget_progress_x", 1, time.Minute)
	store.Set("budget_user_u1_personal", 2, time.Minute)
	store.Set("report_u1_monthly_2025-03-01", 3, time.Minute)

	b := foodBudget("", 1000)
	b.Active = false
	created, err := m.Create(ctx, b)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !created.Active || created.ID == "" {
		t.Fatalf("expected an active budget with id, got %+v", created)
	}
	if store.Has("budget_progress_x") || store.Has("budget_user_u1_personal") {
		t.Fatal("budget keys must be cleared after create")
	}
	if !store.Has("report_u1_monthly_2025-03-01") {
		t.Fatal("unrelated keys must survive")
	}

	if _, err := m.UserBudgets(ctx, "u1", ""); err != nil {
		t.Fatalf("UserBudgets: %v", err)
	}
	if _, err := m.Deactivate(ctx, created.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	list, err := m.UserBudgets(ctx, "u1", "")
	if err != nil {
		t.Fatalf("UserBudgets: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("deactivated budget must not be listed, got %+v", list)
	}

	if err := m.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := m.Delete(ctx, created.ID); !errors.Is(err, dataapi.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestCreate_Invalid(t *testing.T) {
	m, _ := newTestManager(t, memory.NewWithClock(clock))
	b := foodBudget("", 0)
	if _, err := m.Create(context.Background(), b); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestSummary(t *testing.T) {
	food2 := foodBudget("b2", 500)
	rent := foodBudget("b3", 2000)
	rent.Category = "rent"
	backend := memory.NewWithClock(clock)
	backend.Seed([]core.Transaction{
		expense("t1", "u1", "food", 300, 5),
		expense("t2", "u1", "rent", 1000, 1),
	}, []core.Budget{foodBudget("b1", 1000), food2, rent})
	m, _ := newTestManager(t, backend)

	s, err := m.Summary(context.Background(), "u1", "")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if s.TotalBudgets != 3 || s.TotalBudgeted != money(3500) {
		t.Fatalf("unexpected totals: %+v", s)
	}
	// Each food budget sees the same 300 of food spending.
	if s.TotalSpent != money(1600) || s.TotalRemaining != money(1900) {
		t.Fatalf("spent/remaining = %s/%s", s.TotalSpent, s.TotalRemaining)
	}
	if len(s.Categories) != 2 {
		t.Fatalf("expected 2 categories, got %+v", s.Categories)
	}
	cats := make(map[string]CategorySummary)
	for _, c := range s.Categories {
		cats[c.Category] = c
	}
	if f := cats["food"]; f.Budgeted != money(1500) || f.Spent != money(600) || f.Percentage != 40 {
		t.Errorf("unexpected food summary: %+v", f)
	}
	if r := cats["rent"]; r.Remaining != money(1000) || r.Percentage != 50 {
		t.Errorf("unexpected rent summary: %+v", r)
	}
}

func TestSummary_Empty(t *testing.T) {
	m, _ := newTestManager(t, memory.NewWithClock(clock))
	s, err := m.Summary(context.Background(), "u1", "")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if s.TotalBudgets != 0 || s.AverageUsage != 0 || len(s.Categories) != 0 {
		t.Fatalf("expected empty summary, got %+v", s)
	}
}

func TestPrewarm(t *testing.T) {
	backend := memory.NewWithClock(clock)
	backend.Seed(nil, []core.Budget{foodBudget("b1", 100)})
	m, store := newTestManager(t, backend)

	if n := m.Prewarm(context.Background(), []string{"u1", "u2", "u1"}); n != 2 {
		t.Fatalf("expected 2 warmed lists, got %d", n)
	}
	before := store.Stats().Hits
	list, err := m.UserBudgets(context.Background(), "u1", "")
	if err != nil || len(list) != 1 {
		t.Fatalf("UserBudgets: %+v %v", list, err)
	}
	if store.Stats().Hits != before+1 {
		t.Fatal("expected the prewarmed list to be served from cache")
	}
}
