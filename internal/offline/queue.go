package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"finanzas/internal/log"
)

// KV is the durable key/value storage the queue persists itself into.
type KV interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
}

// Connectivity reports whether the data API is believed reachable.
type Connectivity interface {
	Online() bool
}

type alwaysOnline struct{}

func (alwaysOnline) Online() bool { return true }

const (
	SkipOffline  SkipReason = "offline"
	SkipDraining SkipReason = "already_draining"
	SkipEmpty    SkipReason = "nothing_to_replay"
)

type SkipReason string

// DrainResult reports the outcome of one drain pass. Action ids are listed
// in replay order.
type DrainResult struct {
	Skipped SkipReason `json:"skipped,omitempty"`
	Applied []string   `json:"applied,omitempty"`
	Retried []string   `json:"retried,omitempty"`
	Failed  []string   `json:"failed,omitempty"`
}

// Stats is a snapshot of the queue. PendingCount counts every action that is
// not failed.
type Stats struct {
	PendingCount int  `json:"pending_count"`
	FailedCount  int  `json:"failed_count"`
	IsOnline     bool `json:"is_online"`
	Draining     bool `json:"draining"`
}

type Options struct {
	Store        KV
	Replayer     Replayer
	Connectivity Connectivity
	MaxRetries   int
	Now          func() time.Time
	Logger       *log.Logger
	// AfterApply runs after each successful replay, outside the queue lock.
	AfterApply func(ctx context.Context, a Action)
}

// Queue is the durable offline action queue. All methods are safe for
// concurrent use; at most one drain runs at a time.
type Queue struct {
	mu       sync.Mutex
	actions  []Action
	draining bool

	store      KV
	replayer   Replayer
	conn       Connectivity
	maxRetries int
	now        func() time.Time
	logger     *log.Logger
	afterApply func(ctx context.Context, a Action)
}

// New builds a queue and loads any actions persisted by a previous run.
func New(ctx context.Context, opts Options) (*Queue, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("offline: store is required")
	}
	if opts.Replayer == nil {
		return nil, fmt.Errorf("offline: replayer is required")
	}
	q := &Queue{
		store:      opts.Store,
		replayer:   opts.Replayer,
		conn:       opts.Connectivity,
		maxRetries: opts.MaxRetries,
		now:        opts.Now,
		logger:     opts.Logger,
		afterApply: opts.AfterApply,
	}
	if q.conn == nil {
		q.conn = alwaysOnline{}
	}
	if q.maxRetries <= 0 {
		q.maxRetries = DefaultMaxRetries
	}
	if q.now == nil {
		q.now = time.Now
	}
	if q.logger == nil {
		q.logger = log.Nop()
	}
	q.logger = q.logger.WithComponent(log.ComponentOffline)

	if err := q.load(ctx); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Queue) load(ctx context.Context) error {
	data, err := q.store.Load(ctx, QueueKey)
	if err != nil {
		return fmt.Errorf("load offline queue: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	var actions []Action
	if err := json.Unmarshal(data, &actions); err != nil {
		return fmt.Errorf("decode offline queue: %w", err)
	}
	q.actions = actions
	q.logger.InfoContext(ctx, "Offline queue restored", "actions", len(actions))
	return nil
}

// Enqueue appends a pending action and persists the queue. When persisting
// fails the error is returned but the action stays queued in memory.
func (q *Queue) Enqueue(ctx context.Context, p Payload) (string, error) {
	if p == nil {
		return "", ErrNilPayload
	}
	if _, err := encodePayload(p); err != nil {
		return "", err
	}

	now := q.now()
	a := Action{
		ID:         fmt.Sprintf("offline_%d_%s", now.UnixMilli(), uuid.NewString()[:8]),
		Payload:    p,
		EnqueuedAt: now,
		State:      StatePending,
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.actions = append(q.actions, a)
	err := q.persistLocked(ctx)

	q.logger.InfoContext(ctx, "Offline action enqueued",
		log.NewFields().WithAction(a.ID, string(a.Kind()), 0).WithOperation(log.OpEnqueue).WithError(err).ToSlice()...)
	if err != nil {
		return a.ID, fmt.Errorf("persist offline queue: %w", err)
	}
	return a.ID, nil
}

// Drain replays every replayable action in enqueue order. It never returns an
// error: outcomes are reported in the result and recorded on each action.
func (q *Queue) Drain(ctx context.Context) DrainResult {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return DrainResult{Skipped: SkipDraining}
	}
	if !q.conn.Online() {
		q.mu.Unlock()
		return DrainResult{Skipped: SkipOffline}
	}
	var snapshot []Action
	for _, a := range q.actions {
		if a.Replayable() {
			snapshot = append(snapshot, a)
		}
	}
	if len(snapshot) == 0 {
		q.mu.Unlock()
		return DrainResult{Skipped: SkipEmpty}
	}
	q.draining = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}()

	q.logger.InfoContext(ctx, "Offline queue drain started", log.FieldOperation, log.OpDrain, "actions", len(snapshot))

	var res DrainResult
	for _, a := range snapshot {
		if ctx.Err() != nil {
			break
		}
		err := q.replayer.Replay(ctx, a)
		if err != nil && ctx.Err() != nil {
			// interrupted, not a remote failure
			break
		}
		switch q.record(ctx, a, err) {
		case outcomeApplied:
			res.Applied = append(res.Applied, a.ID)
			if q.afterApply != nil {
				q.afterApply(ctx, a)
			}
		case outcomeRetrying:
			res.Retried = append(res.Retried, a.ID)
		case outcomeFailed:
			res.Failed = append(res.Failed, a.ID)
		}
	}

	q.logger.InfoContext(ctx, "Offline queue drain finished",
		log.FieldOperation, log.OpDrain,
		"applied", len(res.Applied), "retried", len(res.Retried), "failed", len(res.Failed))
	return res
}

type outcome int

const (
	outcomeApplied outcome = iota
	outcomeRetrying
	outcomeFailed
	outcomeGone
)

// record applies a replay result to the live queue and persists it.
func (q *Queue) record(ctx context.Context, a Action, replayErr error) outcome {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.indexLocked(a.ID)
	fields := log.NewFields().WithAction(a.ID, string(a.Kind()), a.RetryCount).WithOperation(log.OpReplay)

	if replayErr == nil {
		if idx >= 0 {
			q.actions = append(q.actions[:idx], q.actions[idx+1:]...)
		}
		if err := q.persistLocked(ctx); err != nil {
			q.logger.ErrorContext(ctx, "Failed to persist offline queue", fields.WithError(err).ToSlice()...)
		}
		q.logger.InfoContext(ctx, "Offline action replayed", fields.ToSlice()...)
		return outcomeApplied
	}

	if idx < 0 {
		// removed while the replay was in flight
		return outcomeGone
	}
	act := &q.actions[idx]
	act.RetryCount++
	act.LastError = replayErr.Error()
	act.LastAttemptAt = q.now()
	result := outcomeRetrying
	act.State = StateRetrying
	if act.RetryCount >= q.maxRetries {
		act.State = StateFailed
		result = outcomeFailed
	}
	fields = fields.WithAction(act.ID, string(act.Kind()), act.RetryCount).WithError(replayErr)

	if err := q.persistLocked(ctx); err != nil {
		q.logger.ErrorContext(ctx, "Failed to persist offline queue", log.FieldError, err)
	}
	if result == outcomeFailed {
		q.logger.ErrorContext(ctx, "Offline action permanently failed", fields.ToSlice()...)
	} else {
		q.logger.WarnContext(ctx, "Offline action replay failed", fields.ToSlice()...)
	}
	return result
}

// Stats returns a snapshot of queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Stats{IsOnline: q.conn.Online(), Draining: q.draining}
	for _, a := range q.actions {
		if a.State == StateFailed {
			s.FailedCount++
		} else {
			s.PendingCount++
		}
	}
	return s
}

// Actions returns a copy of the queued actions in enqueue order.
func (q *Queue) Actions() []Action {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Action(nil), q.actions...)
}

// ClearFailed removes every permanently failed action and returns how many
// were removed. It is never called automatically.
func (q *Queue) ClearFailed(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.actions[:0]
	removed := 0
	for _, a := range q.actions {
		if a.State == StateFailed {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	q.actions = kept
	if removed == 0 {
		return 0, nil
	}
	q.logger.InfoContext(ctx, "Failed offline actions cleared", "removed", removed)
	if err := q.persistLocked(ctx); err != nil {
		return removed, fmt.Errorf("persist offline queue: %w", err)
	}
	return removed, nil
}

func (q *Queue) indexLocked(id string) int {
	for i, a := range q.actions {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func (q *Queue) persistLocked(ctx context.Context) error {
	actions := q.actions
	if actions == nil {
		actions = []Action{}
	}
	data, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("encode offline queue: %w", err)
	}
	return q.store.Save(ctx, QueueKey, data)
}
