package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"finanzas/internal/budget"
	"finanzas/internal/core"
)

type createBudgetRequest struct {
	FamilyID  string            `json:"family_id"`
	Category  string            `json:"category"`
	Amount    core.Money        `json:"amount"`
	Period    core.BudgetPeriod `json:"period"`
	StartDate time.Time         `json:"start_date"`
	EndDate   *time.Time        `json:"end_date"`
}

func (h *handlers) listBudgets(w http.ResponseWriter, r *http.Request) {
	list, err := h.Budgets.UserBudgets(r.Context(), userID(r), r.URL.Query().Get("family_id"))
	if err != nil {
		fail(w, r, "failed to list budgets", err)
		return
	}
	if list == nil {
		list = []core.Budget{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handlers) createBudget(w http.ResponseWriter, r *http.Request) {
	var req createBudgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}
	b := core.Budget{
		UserID:    userID(r),
		FamilyID:  strings.TrimSpace(req.FamilyID),
		Category:  strings.TrimSpace(req.Category),
		Amount:    req.Amount,
		Period:    req.Period,
		StartDate: req.StartDate,
	}
	if b.StartDate.IsZero() {
		now := h.Now()
		b.StartDate = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	if req.EndDate != nil {
		b.EndDate = *req.EndDate
	}
	created, err := h.Budgets.Create(r.Context(), b)
	if err != nil {
		fail(w, r, "failed to create budget", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handlers) updateBudget(w http.ResponseWriter, r *http.Request) {
	var patch core.BudgetPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}
	updated, err := h.Budgets.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		fail(w, r, "failed to update budget", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handlers) deactivateBudget(w http.ResponseWriter, r *http.Request) {
	updated, err := h.Budgets.Deactivate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, "failed to deactivate budget", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handlers) deleteBudget(w http.ResponseWriter, r *http.Request) {
	if err := h.Budgets.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, "failed to delete budget", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) budgetProgress(w http.ResponseWriter, r *http.Request) {
	p, err := h.Budgets.Progress(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		fail(w, r, "failed to compute budget progress", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) budgetAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.Budgets.Alerts(r.Context(), userID(r))
	if err != nil {
		fail(w, r, "failed to compute budget alerts", err)
		return
	}
	if alerts == nil {
		alerts = []budget.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (h *handlers) budgetSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Budgets.Summary(r.Context(), userID(r), r.URL.Query().Get("family_id"))
	if err != nil {
		fail(w, r, "failed to summarize budgets", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// checkBudget answers whether spending amount in category would exceed the
// user's budget: GET /api/budgets/check?category=food&amount=12.50
func (h *handlers) checkBudget(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	category := strings.TrimSpace(q.Get("category"))
	if category == "" {
		writeError(w, r, http.StatusBadRequest, "category is required", core.ErrEmptyCategory)
		return
	}
	amount, err := parseAmount(q.Get("amount"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid amount", err)
		return
	}
	res, err := h.Budgets.CheckExceeded(r.Context(), userID(r), category, amount)
	if err != nil {
		fail(w, r, "failed to check budget", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
