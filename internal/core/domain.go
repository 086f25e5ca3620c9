package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	Monthly BudgetPeriod = "monthly"
	Yearly  BudgetPeriod = "yearly"
)

const (
	RoleAdmin  MemberRole = "admin"
	RoleMember MemberRole = "member"
)

// UncategorizedLabel is used wherever a transaction carries no category.
const UncategorizedLabel = "Uncategorized"

type (
	TransactionType string
	BudgetPeriod    string
	MemberRole      string

	Money struct {
		Cents int64
	}

	Transaction struct {
		ID          string          `json:"id"`
		UserID      string          `json:"user_id"`
		FamilyID    string          `json:"family_id,omitempty"` // empty for personal transactions
		Type        TransactionType `json:"type"`
		Amount      Money           `json:"amount"`
		Category    string          `json:"category"`
		Description string          `json:"description,omitempty"`
		Date        time.Time       `json:"date"`
		CreatedAt   time.Time       `json:"created_at"`
	}

	// TransactionPatch carries the fields of an update-by-id. Nil fields are left untouched.
	TransactionPatch struct {
		Type        *TransactionType `json:"type,omitempty"`
		Amount      *Money           `json:"amount,omitempty"`
		Category    *string          `json:"category,omitempty"`
		Description *string          `json:"description,omitempty"`
		Date        *time.Time       `json:"date,omitempty"`
	}

	Budget struct {
		ID        string       `json:"id"`
		UserID    string       `json:"user_id"`
		FamilyID  string       `json:"family_id,omitempty"`
		Category  string       `json:"category"`
		Amount    Money        `json:"amount"`
		Period    BudgetPeriod `json:"period"`
		StartDate time.Time    `json:"start_date"`
		EndDate   time.Time    `json:"end_date"` // zero means derived from Period
		Active    bool         `json:"active"`
		CreatedAt time.Time    `json:"created_at"`
		UpdatedAt time.Time    `json:"updated_at"`
	}

	BudgetPatch struct {
		Category  *string       `json:"category,omitempty"`
		Amount    *Money        `json:"amount,omitempty"`
		Period    *BudgetPeriod `json:"period,omitempty"`
		StartDate *time.Time    `json:"start_date,omitempty"`
		EndDate   *time.Time    `json:"end_date,omitempty"`
		Active    *bool         `json:"active,omitempty"`
	}

	Family struct {
		ID         string    `json:"id"`
		Name       string    `json:"name"`
		InviteCode string    `json:"invite_code"`
		CreatedBy  string    `json:"created_by"`
		CreatedAt  time.Time `json:"created_at"`
	}

	FamilyMember struct {
		ID       string     `json:"id"`
		FamilyID string     `json:"family_id,omitempty"`
		UserID   string     `json:"user_id"`
		Role     MemberRole `json:"role"`
		JoinedAt time.Time  `json:"joined_at"`
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrInvalidPeriod    = errors.New("invalid budget period")
	ErrEmptyCategory    = errors.New("empty category")
	ErrEmptyUser        = errors.New("empty user id")
	ErrZeroDate         = errors.New("date cannot be zero")
	ErrEmptyFamilyName  = errors.New("empty family name")
	ErrEmptyFamilyID    = errors.New("empty family id")
	ErrInvalidRole      = errors.New("invalid member role")
	ErrEndBeforeStart   = errors.New("end date must not be before start date")
	ErrDescriptionLimit = errors.New("description too long (max 200 characters)")
)

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (p BudgetPeriod) Valid() bool {
	return p == Monthly || p == Yearly
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return ErrEmptyUser
	}
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if t.Date.IsZero() {
		return ErrZeroDate
	}
	if len(t.Description) > 200 {
		return ErrDescriptionLimit
	}
	return nil
}

// CategoryOrDefault returns the category, or UncategorizedLabel when it is blank.
func (t Transaction) CategoryOrDefault() string {
	if c := strings.TrimSpace(t.Category); c != "" {
		return c
	}
	return UncategorizedLabel
}

// Apply returns a copy of t with the patch fields applied.
func (p TransactionPatch) Apply(t Transaction) Transaction {
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	return t
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.UserID) == "" {
		return ErrEmptyUser
	}
	if strings.TrimSpace(b.Category) == "" {
		return ErrEmptyCategory
	}
	if err := b.Amount.Validate(); err != nil {
		return err
	}
	if !b.Period.Valid() {
		return ErrInvalidPeriod
	}
	if b.StartDate.IsZero() {
		return ErrZeroDate
	}
	if !b.EndDate.IsZero() && b.EndDate.Before(b.StartDate) {
		return ErrEndBeforeStart
	}
	return nil
}

// Window returns the inclusive date range the budget covers. Without an explicit
// end date the window spans one month or one year from the start date.
func (b Budget) Window() (start, end time.Time) {
	start = b.StartDate
	if !b.EndDate.IsZero() {
		return start, b.EndDate
	}
	if b.Period == Yearly {
		return start, start.AddDate(1, 0, 0)
	}
	return start, start.AddDate(0, 1, 0)
}

// Apply returns a copy of b with the patch fields applied.
func (p BudgetPatch) Apply(b Budget) Budget {
	if p.Category != nil {
		b.Category = *p.Category
	}
	if p.Amount != nil {
		b.Amount = *p.Amount
	}
	if p.Period != nil {
		b.Period = *p.Period
	}
	if p.StartDate != nil {
		b.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		b.EndDate = *p.EndDate
	}
	if p.Active != nil {
		b.Active = *p.Active
	}
	return b
}

func (f Family) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return ErrEmptyFamilyName
	}
	if strings.TrimSpace(f.CreatedBy) == "" {
		return ErrEmptyUser
	}
	return nil
}

func (m FamilyMember) Validate() error {
	if strings.TrimSpace(m.FamilyID) == "" {
		return ErrEmptyFamilyID
	}
	if strings.TrimSpace(m.UserID) == "" {
		return ErrEmptyUser
	}
	if m.Role != RoleAdmin && m.Role != RoleMember {
		return ErrInvalidRole
	}
	return nil
}
