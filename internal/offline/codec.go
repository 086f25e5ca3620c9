package offline

import (
	"encoding/json"
	"fmt"
	"time"

	"finanzas/internal/core"
)

// Persisted shapes. Field names are stable so queues written by older
// builds keep loading.
type (
	actionWire struct {
		ID            string          `json:"id"`
		Kind          Kind            `json:"kind"`
		Payload       json.RawMessage `json:"payload"`
		EnqueuedAt    time.Time       `json:"enqueued_at"`
		RetryCount    int             `json:"retry_count"`
		State         State           `json:"state,omitempty"`
		LastError     string          `json:"last_error,omitempty"`
		LastAttemptAt *time.Time      `json:"last_attempt_at,omitempty"`
	}

	transactionWire struct {
		ID          string    `json:"id"`
		UserID      string    `json:"user_id"`
		FamilyID    string    `json:"family_id,omitempty"`
		Type        string    `json:"type"`
		AmountCents int64     `json:"amount_cents"`
		Category    string    `json:"category"`
		Description string    `json:"description,omitempty"`
		Date        time.Time `json:"date"`
		CreatedAt   time.Time `json:"created_at"`
	}

	patchWire struct {
		ID          string     `json:"id"`
		Type        *string    `json:"type,omitempty"`
		AmountCents *int64     `json:"amount_cents,omitempty"`
		Category    *string    `json:"category,omitempty"`
		Description *string    `json:"description,omitempty"`
		Date        *time.Time `json:"date,omitempty"`
	}

	deleteWire struct {
		ID string `json:"id"`
	}

	familyWire struct {
		ID         string    `json:"id"`
		Name       string    `json:"name"`
		InviteCode string    `json:"invite_code,omitempty"`
		CreatedBy  string    `json:"created_by"`
		CreatedAt  time.Time `json:"created_at"`
	}

	memberWire struct {
		ID       string    `json:"id"`
		FamilyID string    `json:"family_id"`
		UserID   string    `json:"user_id"`
		Role     string    `json:"role"`
		JoinedAt time.Time `json:"joined_at"`
	}
)

func (a Action) MarshalJSON() ([]byte, error) {
	payload, err := encodePayload(a.Payload)
	if err != nil {
		return nil, err
	}
	w := actionWire{
		ID:         a.ID,
		Kind:       a.Kind(),
		Payload:    payload,
		EnqueuedAt: a.EnqueuedAt,
		RetryCount: a.RetryCount,
		State:      a.State,
		LastError:  a.LastError,
	}
	if !a.LastAttemptAt.IsZero() {
		t := a.LastAttemptAt
		w.LastAttemptAt = &t
	}
	return json.Marshal(w)
}

func (a *Action) UnmarshalJSON(b []byte) error {
	var w actionWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	p, err := decodePayload(w.Kind, w.Payload)
	if err != nil {
		return fmt.Errorf("action %s: %w", w.ID, err)
	}
	*a = Action{
		ID:         w.ID,
		Payload:    p,
		EnqueuedAt: w.EnqueuedAt,
		RetryCount: w.RetryCount,
		State:      w.State,
		LastError:  w.LastError,
	}
	if w.LastAttemptAt != nil {
		a.LastAttemptAt = *w.LastAttemptAt
	}
	if a.State == "" {
		a.State = legacyState(w.RetryCount)
	}
	return nil
}

// legacyState derives a state for records written before the state field
// existed, where a retry count at or past the threshold meant failed.
func legacyState(retryCount int) State {
	switch {
	case retryCount >= DefaultMaxRetries:
		return StateFailed
	case retryCount > 0:
		return StateRetrying
	default:
		return StatePending
	}
}

func encodePayload(p Payload) (json.RawMessage, error) {
	var v any
	switch p := p.(type) {
	case CreateTransaction:
		v = toTransactionWire(p.Transaction)
	case UpdateTransaction:
		w := patchWire{ID: p.ID, Category: p.Patch.Category, Description: p.Patch.Description, Date: p.Patch.Date}
		if p.Patch.Type != nil {
			s := string(*p.Patch.Type)
			w.Type = &s
		}
		if p.Patch.Amount != nil {
			c := p.Patch.Amount.Cents
			w.AmountCents = &c
		}
		v = w
	case DeleteTransaction:
		v = deleteWire{ID: p.ID}
	case CreateFamily:
		f := p.Family
		v = familyWire{ID: f.ID, Name: f.Name, InviteCode: f.InviteCode, CreatedBy: f.CreatedBy, CreatedAt: f.CreatedAt}
	case JoinFamily:
		m := p.Member
		v = memberWire{ID: m.ID, FamilyID: m.FamilyID, UserID: m.UserID, Role: string(m.Role), JoinedAt: m.JoinedAt}
	case nil:
		return nil, ErrNilPayload
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownPayload, p)
	}
	return json.Marshal(v)
}

func decodePayload(kind Kind, raw json.RawMessage) (Payload, error) {
	switch kind {
	case KindCreateTransaction:
		var w transactionWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return CreateTransaction{Transaction: w.toCore()}, nil
	case KindUpdateTransaction:
		var w patchWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		patch := core.TransactionPatch{Category: w.Category, Description: w.Description, Date: w.Date}
		if w.Type != nil {
			t := core.TransactionType(*w.Type)
			patch.Type = &t
		}
		if w.AmountCents != nil {
			patch.Amount = &core.Money{Cents: *w.AmountCents}
		}
		return UpdateTransaction{ID: w.ID, Patch: patch}, nil
	case KindDeleteTransaction:
		var w deleteWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return DeleteTransaction{ID: w.ID}, nil
	case KindCreateFamily:
		var w familyWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return CreateFamily{Family: core.Family{ID: w.ID, Name: w.Name, InviteCode: w.InviteCode, CreatedBy: w.CreatedBy, CreatedAt: w.CreatedAt}}, nil
	case KindJoinFamily:
		var w memberWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return JoinFamily{Member: core.FamilyMember{ID: w.ID, FamilyID: w.FamilyID, UserID: w.UserID, Role: core.MemberRole(w.Role), JoinedAt: w.JoinedAt}}, nil
	default:
		return nil, fmt.Errorf("%w: kind %q", ErrUnknownPayload, kind)
	}
}

func toTransactionWire(t core.Transaction) transactionWire {
	return transactionWire{
		ID:          t.ID,
		UserID:      t.UserID,
		FamilyID:    t.FamilyID,
		Type:        string(t.Type),
		AmountCents: t.Amount.Cents,
		Category:    t.Category,
		Description: t.Description,
		Date:        t.Date,
		CreatedAt:   t.CreatedAt,
	}
}

func (w transactionWire) toCore() core.Transaction {
	return core.Transaction{
		ID:          w.ID,
		UserID:      w.UserID,
		FamilyID:    w.FamilyID,
		Type:        core.TransactionType(w.Type),
		Amount:      core.Money{Cents: w.AmountCents},
		Category:    w.Category,
		Description: w.Description,
		Date:        w.Date,
		CreatedAt:   w.CreatedAt,
	}
}
