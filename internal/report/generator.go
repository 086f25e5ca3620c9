package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"finanzas/internal/cache"
	"finanzas/internal/core"
	"finanzas/internal/dataapi"
	"finanzas/internal/log"
)

const (
	// KeyPrefix is shared by every cache key this package writes.
	KeyPrefix = "report_"
	CacheTTL  = 30 * time.Minute
)

// BudgetSource supplies the active budgets of a report's owner and their
// progress.
type BudgetSource interface {
	UserBudgets(ctx context.Context, userID, familyID string) ([]core.Budget, error)
	Progress(ctx context.Context, budgetID, userID string) (core.BudgetProgress, error)
}

type Options struct {
	Transactions dataapi.TransactionReader
	Budgets      BudgetSource
	Cache        *cache.Store
	Now          func() time.Time
	Logger       *log.Logger
}

// Generator builds and caches financial reports.
type Generator struct {
	txs     dataapi.TransactionReader
	budgets BudgetSource
	cache   *cache.Store
	now     func() time.Time
	logger  *log.Logger
}

func NewGenerator(opts Options) (*Generator, error) {
	if opts.Transactions == nil || opts.Budgets == nil {
		return nil, errors.New("report: transaction reader and budget source are required")
	}
	if opts.Cache == nil {
		return nil, errors.New("report: cache store is required")
	}
	g := &Generator{
		txs:     opts.Transactions,
		budgets: opts.Budgets,
		cache:   opts.Cache,
		now:     opts.Now,
		logger:  opts.Logger,
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.logger == nil {
		g.logger = log.Nop()
	}
	g.logger = g.logger.WithComponent(log.ComponentReport)
	return g, nil
}

// CacheKey returns the key a report for req is cached under.
func CacheKey(req Request) string {
	key := KeyPrefix + req.UserID + "_" + string(req.Period) + "_" + req.Start.UTC().Format(time.RFC3339)
	if req.FamilyID != "" {
		key += "_" + req.FamilyID
	}
	return key
}

// Generate returns the report for req, from cache when a fresh one exists.
// Transaction and budget reads run concurrently and either failing fails the
// report. The previous-period comparison is best effort.
func (g *Generator) Generate(ctx context.Context, req Request) (Report, error) {
	if err := req.Validate(); err != nil {
		return Report{}, err
	}
	return cache.GetOrSet(ctx, g.cache, CacheKey(req), CacheTTL, func(ctx context.Context) (Report, error) {
		return g.build(ctx, req)
	})
}

func (g *Generator) build(ctx context.Context, req Request) (Report, error) {
	var (
		txs      []core.Transaction
		budgets  []BudgetSnapshot
		previous *core.Money
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		txs, err = g.txs.ListTransactions(egCtx, dataapi.TransactionFilter{
			UserID:   req.UserID,
			FamilyID: req.FamilyID,
			From:     req.Start,
			To:       req.End,
		})
		if err != nil {
			return fmt.Errorf("list transactions: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		var err error
		budgets, err = g.budgetSnapshots(egCtx, req)
		return err
	})
	eg.Go(func() error {
		previous = g.previousExpenses(egCtx, req)
		return nil
	})
	if err := eg.Wait(); err != nil {
		return Report{}, err
	}

	sum := summarize(txs)
	cats := breakdown(txs)
	r := Report{
		Period:      req.Period,
		Start:       req.Start,
		End:         req.End,
		UserID:      req.UserID,
		FamilyID:    req.FamilyID,
		Summary:     sum,
		Categories:  cats,
		Trends:      trends(txs),
		Budgets:     budgets,
		Insights:    insights(sum, cats, budgets, previous),
		GeneratedAt: g.now(),
	}
	g.logger.InfoContext(ctx, "Report generated",
		log.FieldOperation, log.OpGenerate,
		log.FieldUserID, req.UserID,
		log.FieldPeriod, string(req.Period),
		"transaction_count", sum.TransactionCount,
		"insights_count", len(r.Insights))
	return r, nil
}

// budgetSnapshots fails only when the budget list cannot be read. A budget
// whose progress fails is left out.
func (g *Generator) budgetSnapshots(ctx context.Context, req Request) ([]BudgetSnapshot, error) {
	list, err := g.budgets.UserBudgets(ctx, req.UserID, req.FamilyID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	out := make([]BudgetSnapshot, 0, len(list))
	for _, b := range list {
		p, err := g.budgets.Progress(ctx, b.ID, req.UserID)
		if err != nil {
			g.logger.WarnContext(ctx, "Skipping budget snapshot",
				log.FieldBudgetID, b.ID, log.FieldUserID, req.UserID, log.FieldError, err)
			continue
		}
		out = append(out, snapshot(p))
	}
	return out, nil
}

// previousExpenses sums expenses over the equal-length period ending just
// before req.Start. It returns nil when the read fails.
func (g *Generator) previousExpenses(ctx context.Context, req Request) *core.Money {
	length := req.End.Sub(req.Start)
	prevEnd := req.Start.Add(-time.Millisecond)
	prevStart := prevEnd.Add(-length)

	txs, err := g.txs.ListTransactions(ctx, dataapi.TransactionFilter{
		UserID:   req.UserID,
		FamilyID: req.FamilyID,
		Type:     core.Expense,
		From:     prevStart,
		To:       prevEnd,
	})
	if err != nil {
		g.logger.DebugContext(ctx, "Previous period unavailable", log.FieldUserID, req.UserID, log.FieldError, err)
		return nil
	}
	var total core.Money
	for _, t := range txs {
		total = total.Add(t.Amount)
	}
	return &total
}

// Weekly reports on the seven days up to now.
func (g *Generator) Weekly(ctx context.Context, userID, familyID string) (Report, error) {
	end := g.now()
	return g.Generate(ctx, Request{Period: Weekly, Start: end.AddDate(0, 0, -7), End: end, UserID: userID, FamilyID: familyID})
}

// Monthly reports from the first of the current month up to now.
func (g *Generator) Monthly(ctx context.Context, userID, familyID string) (Report, error) {
	end := g.now()
	start := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, end.Location())
	return g.Generate(ctx, Request{Period: Monthly, Start: start, End: end, UserID: userID, FamilyID: familyID})
}

// Yearly reports from January 1st of the current year up to now.
func (g *Generator) Yearly(ctx context.Context, userID, familyID string) (Report, error) {
	end := g.now()
	start := time.Date(end.Year(), time.January, 1, 0, 0, 0, 0, end.Location())
	return g.Generate(ctx, Request{Period: Yearly, Start: start, End: end, UserID: userID, FamilyID: familyID})
}

// ForPeriod dispatches to Weekly, Monthly or Yearly.
func (g *Generator) ForPeriod(ctx context.Context, p Period, userID, familyID string) (Report, error) {
	switch p {
	case Weekly:
		return g.Weekly(ctx, userID, familyID)
	case Monthly:
		return g.Monthly(ctx, userID, familyID)
	case Yearly:
		return g.Yearly(ctx, userID, familyID)
	default:
		return Report{}, ErrInvalidPeriod
	}
}
