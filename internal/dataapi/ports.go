// Package dataapi defines the outbound ports to the hosted relational data API.
//
// Row-level authorization is enforced by the implementation's backend; callers
// only pass the user and family identifiers the filters need.
package dataapi

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"finanzas/internal/core"
)

var (
	// ErrNotFound is returned when a row addressed by id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an insert collides with an existing id.
	ErrConflict = errors.New("conflict")
	// ErrUnavailable is returned when the data API cannot be reached.
	ErrUnavailable = errors.New("data api unavailable")
)

type (
	// TransactionFilter selects transactions. Zero-valued fields do not filter.
	// With FamilyID set the family's transactions are returned regardless of user.
	TransactionFilter struct {
		UserID     string
		FamilyID   string
		Type       core.TransactionType
		Category   string
		From       time.Time // inclusive
		To         time.Time // inclusive
		Descending bool      // order by date
		Limit      int
		Offset     int
	}

	// BudgetFilter selects budgets. Without FamilyID only the user's personal
	// budgets match.
	BudgetFilter struct {
		UserID     string
		FamilyID   string
		Category   string
		ActiveOnly bool
	}
)

// Ports for outbound adapters.
type (
	TransactionReader interface {
		ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error)
	}

	TransactionWriter interface {
		InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		UpdateTransaction(ctx context.Context, id string, p core.TransactionPatch) error
		DeleteTransaction(ctx context.Context, id string) error
	}

	// TransactionBatchWriter inserts several transactions at once. Either all
	// rows are stored or none are.
	TransactionBatchWriter interface {
		InsertTransactions(ctx context.Context, ts []core.Transaction) ([]core.Transaction, error)
	}

	BudgetStore interface {
		GetBudget(ctx context.Context, id string) (core.Budget, error)
		ListBudgets(ctx context.Context, f BudgetFilter) ([]core.Budget, error)
		InsertBudget(ctx context.Context, b core.Budget) (core.Budget, error)
		UpdateBudget(ctx context.Context, id string, p core.BudgetPatch) (core.Budget, error)
		DeleteBudget(ctx context.Context, id string) error
	}

	FamilyWriter interface {
		InsertFamily(ctx context.Context, f core.Family) (core.Family, error)
		InsertFamilyMember(ctx context.Context, m core.FamilyMember) (core.FamilyMember, error)
	}

	FamilyReader interface {
		GetFamily(ctx context.Context, id string) (core.Family, error)
		// ListFamilyMembers returns members in join order.
		ListFamilyMembers(ctx context.Context, familyID string) ([]core.FamilyMember, error)
	}

	FamilyStore interface {
		FamilyReader
		FamilyWriter
	}

	Pinger interface {
		Ping(ctx context.Context) error
	}

	// Backend is the full surface every data API implementation provides.
	Backend interface {
		TransactionReader
		TransactionWriter
		TransactionBatchWriter
		BudgetStore
		FamilyStore
		Pinger
	}
)

// Match reports whether t passes the filter predicates. Ordering and
// pagination are not considered.
func (f TransactionFilter) Match(t core.Transaction) bool {
	if f.FamilyID != "" {
		if t.FamilyID != f.FamilyID {
			return false
		}
	} else if f.UserID != "" && t.UserID != f.UserID {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if !f.From.IsZero() && t.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && t.Date.After(f.To) {
		return false
	}
	return true
}

// Match reports whether b passes the filter predicates.
func (f BudgetFilter) Match(b core.Budget) bool {
	if f.FamilyID != "" {
		if b.FamilyID != f.FamilyID {
			return false
		}
	} else if b.UserID != f.UserID || b.FamilyID != "" {
		return false
	}
	if f.Category != "" && b.Category != f.Category {
		return false
	}
	if f.ActiveOnly && !b.Active {
		return false
	}
	return true
}

// PrepareTransaction fills the id and creation time of a new transaction.
// Caller-supplied ids are kept so replays of the same insert collide instead
// of duplicating the row.
func PrepareTransaction(t core.Transaction, now time.Time) core.Transaction {
	if strings.TrimSpace(t.ID) == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	return t
}

// PrepareBudget fills the id and timestamps of a new budget.
func PrepareBudget(b core.Budget, now time.Time) core.Budget {
	if strings.TrimSpace(b.ID) == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	return b
}

// PrepareFamily fills the id, invite code and creation time of a new family.
func PrepareFamily(f core.Family, now time.Time) core.Family {
	if strings.TrimSpace(f.ID) == "" {
		f.ID = uuid.NewString()
	}
	if f.InviteCode == "" {
		f.InviteCode = strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	return f
}

// PrepareMember fills the id, role and join time of a new family member.
func PrepareMember(m core.FamilyMember, now time.Time) core.FamilyMember {
	if strings.TrimSpace(m.ID) == "" {
		m.ID = uuid.NewString()
	}
	if m.Role == "" {
		m.Role = core.RoleMember
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = now
	}
	return m
}

// Paginate applies offset and limit to an already ordered slice.
func Paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
