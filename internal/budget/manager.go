// Package budget derives budget progress, alerts and summaries from the
// budgets and expense transactions held by the data API.
//
// Reads go through the shared cache store. Every mutation clears all keys
// containing KeyPrefix so the next read recomputes from current data.
package budget

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"finanzas/internal/cache"
	"finanzas/internal/core"
	"finanzas/internal/dataapi"
	"finanzas/internal/log"
)

const (
	// KeyPrefix is shared by every cache key this package writes.
	KeyPrefix = "budget_"

	ProgressTTL    = 2 * time.Minute
	UserBudgetsTTL = 5 * time.Minute
)

const (
	AlertWarning  AlertType = "warning"
	AlertCritical AlertType = "critical"
)

type AlertType string

// Alert is a derived notice about a budget crossing a consumption threshold.
type Alert struct {
	ID        string    `json:"id"`
	BudgetID  string    `json:"budget_id"`
	Type      AlertType `json:"type"`
	Threshold float64   `json:"threshold"`
	Message   string    `json:"message"`
	Active    bool      `json:"is_active"`
}

// ExceededCheck is the answer to "would this expense exceed the budget".
// Budget is nil when the user has no active budget for the category.
type ExceededCheck struct {
	Exceeded     bool         `json:"exceeded"`
	Budget       *core.Budget `json:"budget,omitempty"`
	CurrentSpent core.Money   `json:"current_spent"`
	Remaining    core.Money   `json:"remaining"`
}

// CategorySummary aggregates the budgets of one category.
type CategorySummary struct {
	Category   string     `json:"category"`
	Budgeted   core.Money `json:"budgeted"`
	Spent      core.Money `json:"spent"`
	Remaining  core.Money `json:"remaining"`
	Percentage float64    `json:"percentage"`
}

// Summary totals a user's budgets.
type Summary struct {
	TotalBudgets   int               `json:"total_budgets"`
	TotalBudgeted  core.Money        `json:"total_budgeted"`
	TotalSpent     core.Money        `json:"total_spent"`
	TotalRemaining core.Money        `json:"total_remaining"`
	AverageUsage   float64           `json:"average_usage"`
	Categories     []CategorySummary `json:"categories"`
}

type Options struct {
	Budgets      dataapi.BudgetStore
	Transactions dataapi.TransactionReader
	Cache        *cache.Store
	Now          func() time.Time
	Logger       *log.Logger
}

// Manager computes budget aggregates. It is safe for concurrent use.
type Manager struct {
	budgets dataapi.BudgetStore
	txs     dataapi.TransactionReader
	cache   *cache.Store
	now     func() time.Time
	logger  *log.Logger
}

func NewManager(opts Options) (*Manager, error) {
	if opts.Budgets == nil || opts.Transactions == nil {
		return nil, errors.New("budget: budget store and transaction reader are required")
	}
	if opts.Cache == nil {
		return nil, errors.New("budget: cache store is required")
	}
	m := &Manager{
		budgets: opts.Budgets,
		txs:     opts.Transactions,
		cache:   opts.Cache,
		now:     opts.Now,
		logger:  opts.Logger,
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.logger == nil {
		m.logger = log.Nop()
	}
	m.logger = m.logger.WithComponent(log.ComponentBudget)
	return m, nil
}

// progressKey includes the user because progress counts only that user's
// expenses, and family budgets are shared between members.
func progressKey(budgetID, userID string) string {
	return KeyPrefix + "progress_" + budgetID + "_" + userID
}

func userBudgetsKey(userID, familyID string) string {
	scope := familyID
	if scope == "" {
		scope = "personal"
	}
	return KeyPrefix + "user_" + userID + "_" + scope
}

// Create stores a new active budget.
func (m *Manager) Create(ctx context.Context, b core.Budget) (core.Budget, error) {
	b.Active = true
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	created, err := m.budgets.InsertBudget(ctx, b)
	if err != nil {
		return core.Budget{}, fmt.Errorf("create budget: %w", err)
	}
	m.invalidate()
	m.logger.InfoContext(ctx, "Budget created",
		log.FieldOperation, log.OpCreate,
		log.FieldBudgetID, created.ID,
		log.FieldCategory, created.Category,
		log.FieldAmountCents, created.Amount.Cents,
		log.FieldPeriod, string(created.Period))
	m.logger.Track(ctx, "budget_created", log.FieldBudgetID, created.ID, log.FieldCategory, created.Category)
	return created, nil
}

// Update applies a patch to an existing budget.
func (m *Manager) Update(ctx context.Context, id string, p core.BudgetPatch) (core.Budget, error) {
	updated, err := m.budgets.UpdateBudget(ctx, id, p)
	if err != nil {
		return core.Budget{}, fmt.Errorf("update budget %s: %w", id, err)
	}
	m.invalidate()
	m.logger.InfoContext(ctx, "Budget updated", log.FieldOperation, log.OpUpdate, log.FieldBudgetID, id)
	return updated, nil
}

// Deactivate hides a budget from listings without deleting it.
func (m *Manager) Deactivate(ctx context.Context, id string) (core.Budget, error) {
	inactive := false
	return m.Update(ctx, id, core.BudgetPatch{Active: &inactive})
}

func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.budgets.DeleteBudget(ctx, id); err != nil {
		return fmt.Errorf("delete budget %s: %w", id, err)
	}
	m.invalidate()
	m.logger.InfoContext(ctx, "Budget deleted", log.FieldOperation, log.OpDelete, log.FieldBudgetID, id)
	m.logger.Track(ctx, "budget_deleted", log.FieldBudgetID, id)
	return nil
}

func (m *Manager) invalidate() {
	n := m.cache.ClearByPattern(KeyPrefix)
	m.logger.Debug("Budget cache cleared", log.FieldPattern, KeyPrefix, "removed", n)
}

// UserBudgets lists the active budgets of a user, or of a family when familyID
// is set.
func (m *Manager) UserBudgets(ctx context.Context, userID, familyID string) ([]core.Budget, error) {
	return cache.GetOrSet(ctx, m.cache, userBudgetsKey(userID, familyID), UserBudgetsTTL,
		func(ctx context.Context) ([]core.Budget, error) {
			budgets, err := m.budgets.ListBudgets(ctx, dataapi.BudgetFilter{
				UserID:     userID,
				FamilyID:   familyID,
				ActiveOnly: true,
			})
			if err != nil {
				return nil, fmt.Errorf("list budgets: %w", err)
			}
			return budgets, nil
		})
}

// Prewarm loads the personal budget lists of userIDs into the cache and
// returns how many were cached.
func (m *Manager) Prewarm(ctx context.Context, userIDs []string) int {
	owners := make(map[string]string, len(userIDs))
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		key := userBudgetsKey(id, "")
		if _, dup := owners[key]; dup {
			continue
		}
		owners[key] = id
		keys = append(keys, key)
	}
	return cache.Prewarm(ctx, m.cache, keys, UserBudgetsTTL, func(ctx context.Context, key string) (any, error) {
		return m.budgets.ListBudgets(ctx, dataapi.BudgetFilter{UserID: owners[key], ActiveOnly: true})
	})
}

// Progress computes how much of a budget the user has spent inside its window.
func (m *Manager) Progress(ctx context.Context, budgetID, userID string) (core.BudgetProgress, error) {
	return cache.GetOrSet(ctx, m.cache, progressKey(budgetID, userID), ProgressTTL,
		func(ctx context.Context) (core.BudgetProgress, error) {
			b, err := m.budgets.GetBudget(ctx, budgetID)
			if err != nil {
				return core.BudgetProgress{}, fmt.Errorf("get budget %s: %w", budgetID, err)
			}
			return m.progress(ctx, b, userID)
		})
}

func (m *Manager) progress(ctx context.Context, b core.Budget, userID string) (core.BudgetProgress, error) {
	start, end := b.Window()
	txs, err := m.txs.ListTransactions(ctx, dataapi.TransactionFilter{
		UserID:   userID,
		Type:     core.Expense,
		Category: b.Category,
		From:     start,
		To:       end,
	})
	if err != nil {
		return core.BudgetProgress{}, fmt.Errorf("list expenses for budget %s: %w", b.ID, err)
	}

	var spent core.Money
	for _, t := range txs {
		spent = spent.Add(t.Amount)
	}
	pct := core.Percentage(spent, b.Amount)
	return core.BudgetProgress{
		Budget:     b,
		Spent:      spent,
		Remaining:  b.Amount.Sub(spent),
		Percentage: pct,
		Status:     core.StatusFor(pct),
		DaysLeft:   daysLeft(end, m.now()),
	}, nil
}

// daysLeft rounds up partial days. It is negative once the window has ended.
func daysLeft(end, now time.Time) int {
	return int(math.Ceil(end.Sub(now).Hours() / 24))
}

// CheckExceeded reports whether spending amount more in category would push
// the user's budget past its limit.
func (m *Manager) CheckExceeded(ctx context.Context, userID, category string, amount core.Money) (ExceededCheck, error) {
	budgets, err := m.UserBudgets(ctx, userID, "")
	if err != nil {
		return ExceededCheck{}, err
	}
	var match *core.Budget
	for i := range budgets {
		if budgets[i].Category == category {
			match = &budgets[i]
			break
		}
	}
	if match == nil {
		return ExceededCheck{}, nil
	}

	p, err := m.Progress(ctx, match.ID, userID)
	if err != nil {
		return ExceededCheck{}, err
	}
	b := *match
	return ExceededCheck{
		Exceeded:     p.Spent.Add(amount).Cents > b.Amount.Cents,
		Budget:       &b,
		CurrentSpent: p.Spent,
		Remaining:    b.Amount.Sub(p.Spent),
	}, nil
}

// Alerts returns warning and critical alerts for the user's personal budgets.
// A budget whose progress cannot be computed is skipped.
func (m *Manager) Alerts(ctx context.Context, userID string) ([]Alert, error) {
	budgets, err := m.UserBudgets(ctx, userID, "")
	if err != nil {
		return nil, err
	}
	alerts := make([]Alert, 0)
	for _, b := range budgets {
		p, err := m.Progress(ctx, b.ID, userID)
		if err != nil {
			m.logger.WarnContext(ctx, "Skipping budget alert",
				log.FieldBudgetID, b.ID, log.FieldUserID, userID, log.FieldError, err)
			continue
		}
		if a, ok := alertFor(b, p.Percentage); ok {
			alerts = append(alerts, a)
		}
	}
	return alerts, nil
}

func alertFor(b core.Budget, pct float64) (Alert, bool) {
	switch {
	case pct >= core.OverThreshold:
		return Alert{
			ID:        "critical_" + b.ID,
			BudgetID:  b.ID,
			Type:      AlertCritical,
			Threshold: core.OverThreshold,
			Message:   fmt.Sprintf("You have exceeded your %s budget by %.0f%%!", b.Category, math.Round(pct-100)),
			Active:    true,
		}, true
	case pct >= core.WarningThreshold:
		return Alert{
			ID:        "warning_" + b.ID,
			BudgetID:  b.ID,
			Type:      AlertWarning,
			Threshold: core.WarningThreshold,
			Message:   fmt.Sprintf("You have spent %.0f%% of your %s budget", math.Round(pct), b.Category),
			Active:    true,
		}, true
	}
	return Alert{}, false
}

// Summary totals the user's budgets per category, in the order categories
// first appear. Budgets whose progress fails are left out of the totals.
func (m *Manager) Summary(ctx context.Context, userID, familyID string) (Summary, error) {
	budgets, err := m.UserBudgets(ctx, userID, familyID)
	if err != nil {
		return Summary{}, err
	}

	var (
		sum   = Summary{TotalBudgets: len(budgets)}
		order []string
		byCat = make(map[string]*CategorySummary)
	)
	for _, b := range budgets {
		p, err := m.Progress(ctx, b.ID, userID)
		if err != nil {
			m.logger.WarnContext(ctx, "Skipping budget in summary",
				log.FieldBudgetID, b.ID, log.FieldUserID, userID, log.FieldError, err)
			continue
		}
		cs, ok := byCat[b.Category]
		if !ok {
			cs = &CategorySummary{Category: b.Category}
			byCat[b.Category] = cs
			order = append(order, b.Category)
		}
		cs.Budgeted = cs.Budgeted.Add(b.Amount)
		cs.Spent = cs.Spent.Add(p.Spent)
		sum.TotalBudgeted = sum.TotalBudgeted.Add(b.Amount)
		sum.TotalSpent = sum.TotalSpent.Add(p.Spent)
	}

	sum.TotalRemaining = sum.TotalBudgeted.Sub(sum.TotalSpent)
	if sum.TotalBudgeted.Cents > 0 {
		sum.AverageUsage = float64(sum.TotalSpent.Cents) / float64(sum.TotalBudgeted.Cents) * 100
	}
	sum.Categories = make([]CategorySummary, 0, len(order))
	for _, c := range order {
		cs := byCat[c]
		cs.Remaining = cs.Budgeted.Sub(cs.Spent)
		if cs.Budgeted.Cents > 0 {
			cs.Percentage = float64(cs.Spent.Cents) / float64(cs.Budgeted.Cents) * 100
		}
		sum.Categories = append(sum.Categories, *cs)
	}
	return sum, nil
}
