package rest

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"finanzas/internal/core"
)

// Row shapes of the hosted tables. Nullable columns are pointers.
type (
	transactionRow struct {
		ID          string          `json:"id,omitempty"`
		UserID      string          `json:"user_id"`
		FamilyID    *string         `json:"family_id"`
		Type        string          `json:"type"`
		Amount      decimal.Decimal `json:"amount"`
		Category    string          `json:"category"`
		Description string          `json:"description"`
		Date        string          `json:"date"`
		CreatedAt   *time.Time      `json:"created_at,omitempty"`
	}

	budgetRow struct {
		ID        string          `json:"id,omitempty"`
		UserID    string          `json:"user_id"`
		FamilyID  *string         `json:"family_id"`
		Category  string          `json:"category"`
		Amount    decimal.Decimal `json:"amount"`
		Period    string          `json:"period"`
		StartDate string          `json:"start_date"`
		EndDate   *string         `json:"end_date"`
		IsActive  bool            `json:"is_active"`
		CreatedAt *time.Time      `json:"created_at,omitempty"`
		UpdatedAt *time.Time      `json:"updated_at,omitempty"`
	}

	familyRow struct {
		ID         string     `json:"id,omitempty"`
		Name       string     `json:"name"`
		InviteCode string     `json:"invite_code"`
		CreatedBy  string     `json:"created_by"`
		CreatedAt  *time.Time `json:"created_at,omitempty"`
	}

	memberRow struct {
		ID       string     `json:"id,omitempty"`
		FamilyID string     `json:"family_id"`
		UserID   string     `json:"user_id"`
		Role     string     `json:"role"`
		JoinedAt *time.Time `json:"joined_at,omitempty"`
	}
)

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func formatDate(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// parseDate accepts date-only and full timestamp columns.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

func toTransactionRow(t core.Transaction) transactionRow {
	return transactionRow{
		ID:          t.ID,
		UserID:      t.UserID,
		FamilyID:    optString(t.FamilyID),
		Type:        string(t.Type),
		Amount:      t.Amount.Decimal(),
		Category:    t.Category,
		Description: t.Description,
		Date:        formatDate(t.Date),
		CreatedAt:   optTime(t.CreatedAt),
	}
}

func (r transactionRow) toCore() (core.Transaction, error) {
	date, err := parseDate(r.Date)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		ID:          r.ID,
		UserID:      r.UserID,
		FamilyID:    derefString(r.FamilyID),
		Type:        core.TransactionType(r.Type),
		Amount:      core.MoneyFromDecimal(r.Amount),
		Category:    r.Category,
		Description: r.Description,
		Date:        date,
		CreatedAt:   derefTime(r.CreatedAt),
	}, nil
}

// transactionPatchBody renders only the fields present in the patch.
func transactionPatchBody(p core.TransactionPatch) map[string]any {
	body := map[string]any{}
	if p.Type != nil {
		body["type"] = string(*p.Type)
	}
	if p.Amount != nil {
		body["amount"] = p.Amount.Decimal()
	}
	if p.Category != nil {
		body["category"] = *p.Category
	}
	if p.Description != nil {
		body["description"] = *p.Description
	}
	if p.Date != nil {
		body["date"] = formatDate(*p.Date)
	}
	return body
}

func toBudgetRow(b core.Budget) budgetRow {
	row := budgetRow{
		ID:        b.ID,
		UserID:    b.UserID,
		FamilyID:  optString(b.FamilyID),
		Category:  b.Category,
		Amount:    b.Amount.Decimal(),
		Period:    string(b.Period),
		StartDate: formatDate(b.StartDate),
		IsActive:  b.Active,
		CreatedAt: optTime(b.CreatedAt),
		UpdatedAt: optTime(b.UpdatedAt),
	}
	if !b.EndDate.IsZero() {
		end := formatDate(b.EndDate)
		row.EndDate = &end
	}
	return row
}

func (r budgetRow) toCore() (core.Budget, error) {
	start, err := parseDate(r.StartDate)
	if err != nil {
		return core.Budget{}, err
	}
	var end time.Time
	if r.EndDate != nil && *r.EndDate != "" {
		if end, err = parseDate(*r.EndDate); err != nil {
			return core.Budget{}, err
		}
	}
	return core.Budget{
		ID:        r.ID,
		UserID:    r.UserID,
		FamilyID:  derefString(r.FamilyID),
		Category:  r.Category,
		Amount:    core.MoneyFromDecimal(r.Amount),
		Period:    core.BudgetPeriod(r.Period),
		StartDate: start,
		EndDate:   end,
		Active:    r.IsActive,
		CreatedAt: derefTime(r.CreatedAt),
		UpdatedAt: derefTime(r.UpdatedAt),
	}, nil
}

func (r familyRow) toCore() core.Family {
	return core.Family{ID: r.ID, Name: r.Name, InviteCode: r.InviteCode, CreatedBy: r.CreatedBy, CreatedAt: derefTime(r.CreatedAt)}
}

func (r memberRow) toCore() core.FamilyMember {
	return core.FamilyMember{ID: r.ID, FamilyID: r.FamilyID, UserID: r.UserID, Role: core.MemberRole(r.Role), JoinedAt: derefTime(r.JoinedAt)}
}

func budgetPatchBody(p core.BudgetPatch, now time.Time) map[string]any {
	body := map[string]any{"updated_at": now.UTC()}
	if p.Category != nil {
		body["category"] = *p.Category
	}
	if p.Amount != nil {
		body["amount"] = p.Amount.Decimal()
	}
	if p.Period != nil {
		body["period"] = string(*p.Period)
	}
	if p.StartDate != nil {
		body["start_date"] = formatDate(*p.StartDate)
	}
	if p.EndDate != nil {
		if p.EndDate.IsZero() {
			body["end_date"] = nil
		} else {
			body["end_date"] = formatDate(*p.EndDate)
		}
	}
	if p.Active != nil {
		body["is_active"] = *p.Active
	}
	return body
}
