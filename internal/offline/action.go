// Package offline records mutations attempted while the data API is
// unreachable and replays them in order once connectivity returns.
package offline

import (
	"errors"
	"time"

	"finanzas/internal/core"
)

// QueueKey is the durable storage key holding the whole queue.
const QueueKey = "offline_pending_actions"

// DefaultMaxRetries is the number of failed replays after which an action is
// parked as failed.
const DefaultMaxRetries = 3

const (
	KindCreateTransaction Kind = "CREATE_TRANSACTION"
	KindUpdateTransaction Kind = "UPDATE_TRANSACTION"
	KindDeleteTransaction Kind = "DELETE_TRANSACTION"
	KindCreateFamily      Kind = "CREATE_FAMILY"
	KindJoinFamily        Kind = "JOIN_FAMILY"
)

const (
	StatePending  State = "pending"
	StateRetrying State = "retrying"
	StateFailed   State = "failed"
)

var (
	ErrNilPayload     = errors.New("offline: nil payload")
	ErrUnknownPayload = errors.New("offline: unknown payload")
)

type (
	Kind  string
	State string

	// Payload is the closed set of queued mutations. Each variant carries its
	// own typed data.
	Payload interface {
		Kind() Kind
	}

	CreateTransaction struct {
		Transaction core.Transaction
	}

	UpdateTransaction struct {
		ID    string
		Patch core.TransactionPatch
	}

	DeleteTransaction struct {
		ID string
	}

	CreateFamily struct {
		Family core.Family
	}

	JoinFamily struct {
		Member core.FamilyMember
	}

	// Action is one queued mutation with its replay bookkeeping.
	Action struct {
		ID            string
		Payload       Payload
		EnqueuedAt    time.Time
		RetryCount    int
		State         State
		LastError     string
		LastAttemptAt time.Time
	}
)

func (CreateTransaction) Kind() Kind { return KindCreateTransaction }
func (UpdateTransaction) Kind() Kind { return KindUpdateTransaction }
func (DeleteTransaction) Kind() Kind { return KindDeleteTransaction }
func (CreateFamily) Kind() Kind      { return KindCreateFamily }
func (JoinFamily) Kind() Kind        { return KindJoinFamily }

// Kind returns the payload kind, or an empty kind for a nil payload.
func (a Action) Kind() Kind {
	if a.Payload == nil {
		return ""
	}
	return a.Payload.Kind()
}

// Replayable reports whether automatic drains still process the action.
func (a Action) Replayable() bool {
	return a.State != StateFailed
}
