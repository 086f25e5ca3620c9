package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"finanzas/internal/cache"
	"finanzas/internal/core"
	"finanzas/internal/dataapi"
	"finanzas/internal/log"
	"finanzas/internal/offline"
)

const pageTTL = 2 * time.Minute

// Enqueuer records a mutation for later replay.
type Enqueuer interface {
	Enqueue(ctx context.Context, p offline.Payload) (string, error)
}

// Result describes where a write went. Queued writes reach the data API on
// the next drain.
type Result struct {
	Queued   bool   `json:"queued"`
	ActionID string `json:"action_id,omitempty"`
}

type TransactionDeps struct {
	Data         dataapi.Backend
	Queue        Enqueuer
	Connectivity offline.Connectivity
	Invalidator  *Invalidator
	Cache        *cache.Store
	Now          func() time.Time
	Logger       *log.Logger
}

// TransactionService writes transactions directly while the data API is
// reachable and queues them otherwise.
type TransactionService struct {
	data   dataapi.Backend
	queue  Enqueuer
	conn   offline.Connectivity
	inval  *Invalidator
	cache  *cache.Store
	now    func() time.Time
	logger *log.Logger
}

func NewTransactionService(d TransactionDeps) *TransactionService {
	s := &TransactionService{
		data:   d.Data,
		queue:  d.Queue,
		conn:   d.Connectivity,
		inval:  d.Invalidator,
		cache:  d.Cache,
		now:    d.Now,
		logger: d.Logger,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = log.Nop()
	}
	s.logger = s.logger.WithComponent(log.ComponentBackend)
	return s
}

func (s *TransactionService) online() bool {
	return s.conn == nil || s.conn.Online()
}

// Create validates t, assigns its id and either inserts it or queues it.
// An insert that fails because the data API is unreachable is queued too.
func (s *TransactionService) Create(ctx context.Context, t core.Transaction) (core.Transaction, Result, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, Result{}, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}

	if s.online() {
		created, err := s.data.InsertTransaction(ctx, t)
		if err == nil {
			s.changed(ctx)
			s.logger.InfoContext(ctx, "Transaction created",
				log.FieldOperation, log.OpCreate, log.FieldUserID, t.UserID,
				log.FieldAmountCents, t.Amount.Cents, log.FieldCategory, t.Category)
			s.logger.Track(ctx, "transaction_added", "type", string(t.Type), log.FieldCategory, t.Category, "queued", false)
			return created, Result{}, nil
		}
		if !errors.Is(err, dataapi.ErrUnavailable) {
			return core.Transaction{}, Result{}, fmt.Errorf("create transaction: %w", err)
		}
	}
	res, err := s.enqueue(ctx, offline.CreateTransaction{Transaction: t})
	if err == nil {
		s.logger.Track(ctx, "transaction_added", "type", string(t.Type), log.FieldCategory, t.Category, "queued", true)
	}
	return t, res, err
}

// BatchResult describes a batch insert. Offline, every row is queued on its
// own and ActionIDs follows the input order.
type BatchResult struct {
	Transactions []core.Transaction `json:"transactions"`
	Queued       bool               `json:"queued"`
	ActionIDs    []string           `json:"action_ids,omitempty"`
}

// CreateBatch inserts several transactions in one call. Nothing is written
// unless every row is valid.
func (s *TransactionService) CreateBatch(ctx context.Context, ts []core.Transaction) (BatchResult, error) {
	if len(ts) == 0 {
		return BatchResult{Transactions: []core.Transaction{}}, nil
	}
	now := s.now()
	prepared := make([]core.Transaction, 0, len(ts))
	for i, t := range ts {
		if err := t.Validate(); err != nil {
			return BatchResult{}, fmt.Errorf("transaction %d: %w", i, err)
		}
		prepared = append(prepared, dataapi.PrepareTransaction(t, now))
	}

	if s.online() {
		created, err := s.data.InsertTransactions(ctx, prepared)
		if err == nil {
			s.changed(ctx)
			s.logger.InfoContext(ctx, "Transactions created",
				log.FieldOperation, log.OpCreate, "count", len(created))
			return BatchResult{Transactions: created}, nil
		}
		if !errors.Is(err, dataapi.ErrUnavailable) {
			return BatchResult{}, fmt.Errorf("create transactions: %w", err)
		}
	}

	res := BatchResult{Transactions: prepared, Queued: true}
	for _, t := range prepared {
		r, err := s.enqueue(ctx, offline.CreateTransaction{Transaction: t})
		if err != nil {
			return BatchResult{}, err
		}
		res.ActionIDs = append(res.ActionIDs, r.ActionID)
	}
	return res, nil
}

func validatePatch(p core.TransactionPatch) error {
	if p.Amount != nil {
		if err := p.Amount.Validate(); err != nil {
			return err
		}
	}
	if p.Type != nil && !p.Type.Valid() {
		return core.ErrInvalidType
	}
	return nil
}

// Update patches a transaction by id.
func (s *TransactionService) Update(ctx context.Context, id string, p core.TransactionPatch) (Result, error) {
	if id == "" {
		return Result{}, dataapi.ErrNotFound
	}
	if err := validatePatch(p); err != nil {
		return Result{}, err
	}

	if s.online() {
		err := s.data.UpdateTransaction(ctx, id, p)
		if err == nil {
			s.changed(ctx)
			s.logger.InfoContext(ctx, "Transaction updated", log.FieldOperation, log.OpUpdate, "transaction_id", id)
			return Result{}, nil
		}
		if !errors.Is(err, dataapi.ErrUnavailable) {
			return Result{}, fmt.Errorf("update transaction: %w", err)
		}
	}
	return s.enqueue(ctx, offline.UpdateTransaction{ID: id, Patch: p})
}

// TransactionUpdate is one entry of UpdateBatch.
type TransactionUpdate struct {
	ID    string                `json:"id"`
	Patch core.TransactionPatch `json:"patch"`
}

// UpdateBatch applies updates in order and stops at the first rejected one.
// Once the data API is unreachable the rest are queued. The returned results
// cover the updates handled before any error.
func (s *TransactionService) UpdateBatch(ctx context.Context, updates []TransactionUpdate) ([]Result, error) {
	for i, u := range updates {
		if u.ID == "" {
			return nil, fmt.Errorf("update %d: %w", i, dataapi.ErrNotFound)
		}
		if err := validatePatch(u.Patch); err != nil {
			return nil, fmt.Errorf("update %d: %w", i, err)
		}
	}

	results := make([]Result, 0, len(updates))
	applied := 0
	defer func() {
		if applied > 0 {
			s.changed(ctx)
		}
	}()
	reachable := s.online()
	for _, u := range updates {
		if reachable {
			err := s.data.UpdateTransaction(ctx, u.ID, u.Patch)
			if err == nil {
				applied++
				results = append(results, Result{})
				continue
			}
			if !errors.Is(err, dataapi.ErrUnavailable) {
				return results, fmt.Errorf("update transaction %s: %w", u.ID, err)
			}
			reachable = false
		}
		res, err := s.enqueue(ctx, offline.UpdateTransaction{ID: u.ID, Patch: u.Patch})
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	s.logger.InfoContext(ctx, "Transactions updated",
		log.FieldOperation, log.OpUpdate, "applied", applied, "queued", len(results)-applied)
	return results, nil
}

// Delete removes a transaction by id.
func (s *TransactionService) Delete(ctx context.Context, id string) (Result, error) {
	if id == "" {
		return Result{}, dataapi.ErrNotFound
	}
	if s.online() {
		err := s.data.DeleteTransaction(ctx, id)
		if err == nil {
			s.changed(ctx)
			s.logger.InfoContext(ctx, "Transaction deleted", log.FieldOperation, log.OpDelete, "transaction_id", id)
			return Result{}, nil
		}
		if !errors.Is(err, dataapi.ErrUnavailable) {
			return Result{}, fmt.Errorf("delete transaction: %w", err)
		}
	}
	return s.enqueue(ctx, offline.DeleteTransaction{ID: id})
}

func (s *TransactionService) enqueue(ctx context.Context, p offline.Payload) (Result, error) {
	if s.queue == nil {
		return Result{}, dataapi.ErrUnavailable
	}
	id, err := s.queue.Enqueue(ctx, p)
	if id == "" {
		return Result{}, fmt.Errorf("queue %s: %w", p.Kind(), err)
	}
	if err != nil {
		// Queued in memory; it is lost only if the process exits before a drain.
		s.logger.WarnContext(ctx, "Offline action not persisted", log.FieldActionID, id, log.FieldError, err)
	}
	return Result{Queued: true, ActionID: id}, nil
}

func (s *TransactionService) changed(ctx context.Context) {
	if s.inval != nil {
		s.inval.DataChanged(ctx)
	}
}

// Page is one page of a user's transactions, newest first.
type Page struct {
	Items   []core.Transaction `json:"items"`
	Page    int                `json:"page"`
	Limit   int                `json:"limit"`
	HasMore bool               `json:"has_more"`
}

// List returns a page of transactions, cached for two minutes under
// transactions_<user>_<family>_<page>_<limit>.
func (s *TransactionService) List(ctx context.Context, userID, familyID string, page, limit int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	fetch := func(ctx context.Context) (Page, error) {
		items, err := s.data.ListTransactions(ctx, dataapi.TransactionFilter{
			UserID:     userID,
			FamilyID:   familyID,
			Descending: true,
			Offset:     (page - 1) * limit,
			Limit:      limit + 1,
		})
		if err != nil {
			return Page{}, fmt.Errorf("list transactions: %w", err)
		}
		p := Page{Items: items, Page: page, Limit: limit}
		if len(items) > limit {
			p.Items, p.HasMore = items[:limit], true
		}
		if p.Items == nil {
			p.Items = []core.Transaction{}
		}
		return p, nil
	}
	if s.cache == nil {
		return fetch(ctx)
	}
	scope := familyID
	if scope == "" {
		scope = "personal"
	}
	key := TransactionsKeyPrefix + userID + "_" + scope + "_" + strconv.Itoa(page) + "_" + strconv.Itoa(limit)
	return cache.GetOrSet(ctx, s.cache, key, pageTTL, fetch)
}
