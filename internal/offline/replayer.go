package offline

import (
	"context"
	"errors"
	"fmt"

	"finanzas/internal/dataapi"
)

// Replayer applies one queued action against the remote data API.
type Replayer interface {
	Replay(ctx context.Context, a Action) error
}

// ReplayerFunc adapts a function to the Replayer interface.
type ReplayerFunc func(ctx context.Context, a Action) error

func (f ReplayerFunc) Replay(ctx context.Context, a Action) error { return f(ctx, a) }

// RemoteReplayer dispatches actions to the data API writers.
//
// Inserts carry caller-assigned ids, so a conflict on replay means an earlier
// attempt already landed; deleting a row that is already gone is likewise
// treated as applied.
type RemoteReplayer struct {
	Transactions dataapi.TransactionWriter
	Families     dataapi.FamilyWriter
}

func (r RemoteReplayer) Replay(ctx context.Context, a Action) error {
	switch p := a.Payload.(type) {
	case CreateTransaction:
		_, err := r.Transactions.InsertTransaction(ctx, p.Transaction)
		return alreadyApplied(err, dataapi.ErrConflict)
	case UpdateTransaction:
		return r.Transactions.UpdateTransaction(ctx, p.ID, p.Patch)
	case DeleteTransaction:
		return alreadyApplied(r.Transactions.DeleteTransaction(ctx, p.ID), dataapi.ErrNotFound)
	case CreateFamily:
		_, err := r.Families.InsertFamily(ctx, p.Family)
		return alreadyApplied(err, dataapi.ErrConflict)
	case JoinFamily:
		_, err := r.Families.InsertFamilyMember(ctx, p.Member)
		return alreadyApplied(err, dataapi.ErrConflict)
	case nil:
		return ErrNilPayload
	default:
		return fmt.Errorf("%w: %T", ErrUnknownPayload, p)
	}
}

func alreadyApplied(err, sentinel error) error {
	if errors.Is(err, sentinel) {
		return nil
	}
	return err
}
