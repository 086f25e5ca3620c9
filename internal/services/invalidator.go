package services

import (
	"context"

	"finanzas/internal/amqp"
	"finanzas/internal/budget"
	"finanzas/internal/cache"
	"finanzas/internal/log"
	"finanzas/internal/offline"
	"finanzas/internal/report"
)

const (
	StatsKeyPrefix        = "stats_"
	TransactionsKeyPrefix = "transactions_"
	FamilyKeyPrefix       = "family_"
)

// DataPatterns are the cache key fragments derived from transaction, budget
// and family data.
var DataPatterns = []string{budget.KeyPrefix, report.KeyPrefix, StatsKeyPrefix, TransactionsKeyPrefix, FamilyKeyPrefix}

// Publisher announces invalidations to other instances.
type Publisher interface {
	PublishInvalidation(ctx context.Context, patterns ...string) error
}

// Invalidator drops derived cache entries after a write, locally and, when a
// publisher is configured, on every other instance.
type Invalidator struct {
	cache     cache.Invalidator
	publisher Publisher
	logger    *log.Logger
}

// NewInvalidator builds an invalidator. publisher may be nil.
func NewInvalidator(c cache.Invalidator, publisher Publisher, logger *log.Logger) *Invalidator {
	if logger == nil {
		logger = log.Nop()
	}
	return &Invalidator{cache: c, publisher: publisher, logger: logger.WithComponent(log.ComponentCache)}
}

// DataChanged clears every derived entry. A publish failure is logged; the
// local clear has already happened.
func (i *Invalidator) DataChanged(ctx context.Context) {
	removed := i.clear(DataPatterns)
	i.logger.DebugContext(ctx, "Derived cache cleared", "removed", removed)

	if i.publisher == nil {
		return
	}
	if err := i.publisher.PublishInvalidation(ctx, DataPatterns...); err != nil {
		i.logger.WarnContext(ctx, "Failed to publish cache invalidation", log.FieldError, err)
	}
}

// AfterApply matches offline.Options.AfterApply.
func (i *Invalidator) AfterApply(ctx context.Context, a offline.Action) {
	i.logger.DebugContext(ctx, "Replayed action changed data",
		log.FieldActionID, a.ID, log.FieldActionKind, string(a.Kind()))
	i.DataChanged(ctx)
}

// ApplyRemote handles an invalidation received from another instance.
func (i *Invalidator) ApplyRemote(msg *amqp.InvalidationMessage) error {
	removed := i.clear(msg.Patterns)
	i.logger.Debug("Remote invalidation applied", "origin", msg.Origin, "removed", removed)
	return nil
}

func (i *Invalidator) clear(patterns []string) int {
	n := 0
	for _, p := range patterns {
		if p == "" {
			continue
		}
		n += i.cache.ClearByPattern(p)
	}
	return n
}
