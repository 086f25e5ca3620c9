package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"finanzas/internal/core"
	"finanzas/internal/services"
)

type createTransactionRequest struct {
	FamilyID    string               `json:"family_id"`
	Type        core.TransactionType `json:"type"`
	Amount      core.Money           `json:"amount"`
	Category    string               `json:"category"`
	Description string               `json:"description"`
	Date        *time.Time           `json:"date"`
}

// writeResponse is returned by mutations that may have been queued.
type writeResponse struct {
	services.Result
	Transaction *core.Transaction `json:"transaction,omitempty"`
}

// writeStatus is 202 for queued writes and ok otherwise.
func writeStatus(res services.Result, ok int) int {
	if res.Queued {
		return http.StatusAccepted
	}
	return ok
}

func (h *handlers) listTransactions(w http.ResponseWriter, r *http.Request) {
	page, err := h.Transactions.List(r.Context(), userID(r), r.URL.Query().Get("family_id"),
		queryInt(r, "page", 1), queryInt(r, "limit", 20))
	if err != nil {
		fail(w, r, "failed to list transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handlers) transactionFrom(r *http.Request, req createTransactionRequest) core.Transaction {
	t := core.Transaction{
		UserID:      userID(r),
		FamilyID:    strings.TrimSpace(req.FamilyID),
		Type:        req.Type,
		Amount:      req.Amount,
		Category:    strings.TrimSpace(req.Category),
		Description: strings.TrimSpace(req.Description),
		Date:        h.Now(),
	}
	if req.Date != nil {
		t.Date = *req.Date
	}
	return t
}

func (h *handlers) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}
	created, res, err := h.Transactions.Create(r.Context(), h.transactionFrom(r, req))
	if err != nil {
		fail(w, r, "failed to create transaction", err)
		return
	}
	writeJSON(w, writeStatus(res, http.StatusCreated), writeResponse{Result: res, Transaction: &created})
}

type createTransactionsRequest struct {
	Transactions []createTransactionRequest `json:"transactions"`
}

func (h *handlers) createTransactions(w http.ResponseWriter, r *http.Request) {
	var req createTransactionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}
	ts := make([]core.Transaction, 0, len(req.Transactions))
	for _, item := range req.Transactions {
		ts = append(ts, h.transactionFrom(r, item))
	}
	res, err := h.Transactions.CreateBatch(r.Context(), ts)
	if err != nil {
		fail(w, r, "failed to create transactions", err)
		return
	}
	status := http.StatusCreated
	if res.Queued {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

type updateTransactionsRequest struct {
	Updates []services.TransactionUpdate `json:"updates"`
}

func (h *handlers) updateTransactions(w http.ResponseWriter, r *http.Request) {
	var req updateTransactionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}
	results, err := h.Transactions.UpdateBatch(r.Context(), req.Updates)
	if err != nil {
		fail(w, r, "failed to update transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]services.Result{"results": results})
}

func (h *handlers) updateTransaction(w http.ResponseWriter, r *http.Request) {
	var patch core.TransactionPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}
	res, err := h.Transactions.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		fail(w, r, "failed to update transaction", err)
		return
	}
	writeJSON(w, writeStatus(res, http.StatusOK), writeResponse{Result: res})
}

func (h *handlers) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	res, err := h.Transactions.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, "failed to delete transaction", err)
		return
	}
	writeJSON(w, writeStatus(res, http.StatusOK), writeResponse{Result: res})
}

// monthStats serves GET /api/stats?year=2025&month=3, defaulting to the
// current month.
func (h *handlers) monthStats(w http.ResponseWriter, r *http.Request) {
	now := h.Now().UTC()
	year := queryInt(r, "year", now.Year())
	month := time.Month(queryInt(r, "month", int(now.Month())))
	if month < time.January || month > time.December {
		writeError(w, r, http.StatusBadRequest, "month must be between 1 and 12", nil)
		return
	}
	st, err := h.Stats.Month(r.Context(), userID(r), year, month)
	if err != nil {
		fail(w, r, "failed to compute stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type createFamilyRequest struct {
	Name string `json:"name"`
}

func (h *handlers) createFamily(w http.ResponseWriter, r *http.Request) {
	var req createFamilyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}
	res, err := h.Families.Create(r.Context(), strings.TrimSpace(req.Name), userID(r))
	if err != nil {
		fail(w, r, "failed to create family", err)
		return
	}
	status := http.StatusCreated
	if res.Queued {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

func (h *handlers) joinFamily(w http.ResponseWriter, r *http.Request) {
	member, res, err := h.Families.Join(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		fail(w, r, "failed to join family", err)
		return
	}
	writeJSON(w, writeStatus(res, http.StatusCreated), struct {
		services.Result
		Member core.FamilyMember `json:"member"`
	}{res, member})
}

func (h *handlers) getFamily(w http.ResponseWriter, r *http.Request) {
	data, err := h.Families.Get(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		fail(w, r, "failed to load family", err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// listCategories serves GET /api/categories?type=expense. Without a type every
// predefined category is returned.
func (h *handlers) listCategories(w http.ResponseWriter, r *http.Request) {
	t := core.TransactionType(r.URL.Query().Get("type"))
	if t != "" && !t.Valid() {
		writeError(w, r, http.StatusBadRequest, "type must be income or expense", core.ErrInvalidType)
		return
	}
	writeJSON(w, http.StatusOK, core.Categories(t))
}
