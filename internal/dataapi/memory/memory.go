// Package memory is an in-process data API used for tests and the demo backend.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"finanzas/internal/core"
	"finanzas/internal/dataapi"
)

type Store struct {
	mu           sync.Mutex
	now          func() time.Time
	unavailable  bool
	transactions []core.Transaction
	budgets      []core.Budget
	families     []core.Family
	members      []core.FamilyMember
}

var _ dataapi.Backend = (*Store)(nil)

func New() *Store {
	return &Store{now: time.Now}
}

// NewWithClock returns a store stamping rows with the given clock.
func NewWithClock(now func() time.Time) *Store {
	return &Store{now: now}
}

// SetUnavailable makes every call fail with dataapi.ErrUnavailable until reset.
func (s *Store) SetUnavailable(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = v
}

// Seed inserts rows as-is, bypassing validation.
func (s *Store) Seed(txs []core.Transaction, budgets []core.Budget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions = append(s.transactions, txs...)
	s.budgets = append(s.budgets, budgets...)
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.check()
}

func (s *Store) ListTransactions(_ context.Context, f dataapi.TransactionFilter) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	var out []core.Transaction
	for _, t := range s.transactions {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if f.Descending {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].Date.Before(out[j].Date)
	})
	return dataapi.Paginate(out, f.Offset, f.Limit), nil
}

func (s *Store) InsertTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return core.Transaction{}, err
	}
	t = dataapi.PrepareTransaction(t, s.now())
	if s.transactionIndex(t.ID) >= 0 {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", t.ID, dataapi.ErrConflict)
	}
	s.transactions = append(s.transactions, t)
	return t, nil
}

// InsertTransactions validates every row before storing any of them.
func (s *Store) InsertTransactions(_ context.Context, ts []core.Transaction) ([]core.Transaction, error) {
	for i, t := range ts {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]core.Transaction, 0, len(ts))
	seen := make(map[string]bool, len(ts))
	for _, t := range ts {
		t = dataapi.PrepareTransaction(t, now)
		if seen[t.ID] || s.transactionIndex(t.ID) >= 0 {
			return nil, fmt.Errorf("transaction %s: %w", t.ID, dataapi.ErrConflict)
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	s.transactions = append(s.transactions, out...)
	return out, nil
}

func (s *Store) UpdateTransaction(_ context.Context, id string, p core.TransactionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	i := s.transactionIndex(id)
	if i < 0 {
		return fmt.Errorf("transaction %s: %w", id, dataapi.ErrNotFound)
	}
	updated := p.Apply(s.transactions[i])
	if err := updated.Validate(); err != nil {
		return err
	}
	s.transactions[i] = updated
	return nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	i := s.transactionIndex(id)
	if i < 0 {
		return fmt.Errorf("transaction %s: %w", id, dataapi.ErrNotFound)
	}
	s.transactions = append(s.transactions[:i], s.transactions[i+1:]...)
	return nil
}

func (s *Store) GetBudget(_ context.Context, id string) (core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return core.Budget{}, err
	}
	i := s.budgetIndex(id)
	if i < 0 {
		return core.Budget{}, fmt.Errorf("budget %s: %w", id, dataapi.ErrNotFound)
	}
	return s.budgets[i], nil
}

// ListBudgets returns matching budgets, newest first.
func (s *Store) ListBudgets(_ context.Context, f dataapi.BudgetFilter) ([]core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	var out []core.Budget
	for _, b := range s.budgets {
		if f.Match(b) {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) InsertBudget(_ context.Context, b core.Budget) (core.Budget, error) {
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return core.Budget{}, err
	}
	b = dataapi.PrepareBudget(b, s.now())
	if s.budgetIndex(b.ID) >= 0 {
		return core.Budget{}, fmt.Errorf("budget %s: %w", b.ID, dataapi.ErrConflict)
	}
	s.budgets = append(s.budgets, b)
	return b, nil
}

func (s *Store) UpdateBudget(_ context.Context, id string, p core.BudgetPatch) (core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return core.Budget{}, err
	}
	i := s.budgetIndex(id)
	if i < 0 {
		return core.Budget{}, fmt.Errorf("budget %s: %w", id, dataapi.ErrNotFound)
	}
	updated := p.Apply(s.budgets[i])
	if err := updated.Validate(); err != nil {
		return core.Budget{}, err
	}
	updated.UpdatedAt = s.now()
	s.budgets[i] = updated
	return updated, nil
}

func (s *Store) DeleteBudget(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	i := s.budgetIndex(id)
	if i < 0 {
		return fmt.Errorf("budget %s: %w", id, dataapi.ErrNotFound)
	}
	s.budgets = append(s.budgets[:i], s.budgets[i+1:]...)
	return nil
}

func (s *Store) InsertFamily(_ context.Context, f core.Family) (core.Family, error) {
	if err := f.Validate(); err != nil {
		return core.Family{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return core.Family{}, err
	}
	f = dataapi.PrepareFamily(f, s.now())
	for _, existing := range s.families {
		if existing.ID == f.ID {
			return core.Family{}, fmt.Errorf("family %s: %w", f.ID, dataapi.ErrConflict)
		}
	}
	s.families = append(s.families, f)
	return f, nil
}

// InsertFamilyMember adds a member. A user can join a family only once.
func (s *Store) InsertFamilyMember(_ context.Context, m core.FamilyMember) (core.FamilyMember, error) {
	m = dataapi.PrepareMember(m, time.Time{})
	if err := m.Validate(); err != nil {
		return core.FamilyMember{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return core.FamilyMember{}, err
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = s.now()
	}
	for _, existing := range s.members {
		if existing.ID == m.ID || (existing.FamilyID == m.FamilyID && existing.UserID == m.UserID) {
			return core.FamilyMember{}, fmt.Errorf("member %s of family %s: %w", m.UserID, m.FamilyID, dataapi.ErrConflict)
		}
	}
	s.members = append(s.members, m)
	return m, nil
}

func (s *Store) GetFamily(_ context.Context, id string) (core.Family, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return core.Family{}, err
	}
	for _, f := range s.families {
		if f.ID == id {
			return f, nil
		}
	}
	return core.Family{}, fmt.Errorf("family %s: %w", id, dataapi.ErrNotFound)
}

func (s *Store) ListFamilyMembers(_ context.Context, familyID string) ([]core.FamilyMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	var out []core.FamilyMember
	for _, m := range s.members {
		if m.FamilyID == familyID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

// Families returns a copy of the stored families.
func (s *Store) Families() []core.Family {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Family(nil), s.families...)
}

// Members returns a copy of the stored family members.
func (s *Store) Members() []core.FamilyMember {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.FamilyMember(nil), s.members...)
}

func (s *Store) check() error {
	if s.unavailable {
		return dataapi.ErrUnavailable
	}
	return nil
}

func (s *Store) transactionIndex(id string) int {
	for i, t := range s.transactions {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) budgetIndex(id string) int {
	for i, b := range s.budgets {
		if b.ID == id {
			return i
		}
	}
	return -1
}
