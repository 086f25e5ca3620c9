package report

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"finanzas/internal/core"
	"finanzas/internal/dataapi/memory"
)

func TestNextWeekly(t *testing.T) {
	loc := time.UTC
	cases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"wednesday", time.Date(2025, 3, 12, 15, 0, 0, 0, loc), time.Date(2025, 3, 16, 9, 0, 0, 0, loc)},
		{"sunday before nine", time.Date(2025, 3, 16, 8, 0, 0, 0, loc), time.Date(2025, 3, 16, 9, 0, 0, 0, loc)},
		{"sunday at nine", time.Date(2025, 3, 16, 9, 0, 0, 0, loc), time.Date(2025, 3, 23, 9, 0, 0, 0, loc)},
		{"saturday night", time.Date(2025, 3, 15, 23, 0, 0, 0, loc), time.Date(2025, 3, 16, 9, 0, 0, 0, loc)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NextWeekly(tc.now); !got.Equal(tc.want) {
				t.Fatalf("NextWeekly(%v) = %v, want %v", tc.now, got, tc.want)
			}
		})
	}
}

func TestNextMonthly(t *testing.T) {
	loc := time.UTC
	cases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"mid month", time.Date(2025, 3, 12, 15, 0, 0, 0, loc), time.Date(2025, 4, 1, 9, 0, 0, 0, loc)},
		{"first before nine", time.Date(2025, 3, 1, 7, 0, 0, 0, loc), time.Date(2025, 3, 1, 9, 0, 0, 0, loc)},
		{"first after nine", time.Date(2025, 3, 1, 10, 0, 0, 0, loc), time.Date(2025, 4, 1, 9, 0, 0, 0, loc)},
		{"december", time.Date(2025, 12, 20, 0, 0, 0, 0, loc), time.Date(2026, 1, 1, 9, 0, 0, 0, loc)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NextMonthly(tc.now); !got.Equal(tc.want) {
				t.Fatalf("NextMonthly(%v) = %v, want %v", tc.now, got, tc.want)
			}
		})
	}
}

type recordingExporter struct {
	mu      sync.Mutex
	reports []Report
	fail    map[string]bool
}

func (e *recordingExporter) Export(_ context.Context, r Report) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail[r.UserID] {
		return "", errors.New("export failed")
	}
	e.reports = append(e.reports, r)
	return "Reports!A1", nil
}

func TestSchedulerRun(t *testing.T) {
	backend := memory.NewWithClock(clock)
	backend.Seed([]core.Transaction{tx("t1", core.Expense, 50, "food", testNow.Add(-time.Hour))}, nil)
	g, _ := newGenerator(t, backend, stubBudgets{})
	exp := &recordingExporter{fail: map[string]bool{"u3": true}}

	s, err := NewScheduler(SchedulerOptions{
		Generator: g,
		Targets:   []Target{{UserID: "u1"}, {UserID: ""}, {UserID: "u3"}},
		Exporter:  exp,
		Now:       clock,
	})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	// The empty user fails generation, u3 fails export.
	if ok := s.Run(context.Background(), Weekly); ok != 1 {
		t.Fatalf("expected 1 successful target, got %d", ok)
	}
	if len(exp.reports) != 1 || exp.reports[0].Period != Weekly || exp.reports[0].Summary.TotalExpenses != units(50) {
		t.Fatalf("unexpected exported reports %+v", exp.reports)
	}
}

func TestSchedulerStartStop(t *testing.T) {
	g, _ := newGenerator(t, memory.NewWithClock(clock), stubBudgets{})
	s, err := NewScheduler(SchedulerOptions{Generator: g, Now: clock})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(ctx); err == nil {
		t.Fatal("second Start must fail")
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestNewScheduler_RequiresGenerator(t *testing.T) {
	if _, err := NewScheduler(SchedulerOptions{}); err == nil {
		t.Fatal("expected error without generator")
	}
}
