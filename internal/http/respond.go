package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"finanzas/internal/core"
	"finanzas/internal/dataapi"
	"finanzas/internal/log"
	"finanzas/internal/report"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
		if status >= http.StatusInternalServerError {
			log.FromContext(r.Context()).ErrorContext(r.Context(), message,
				log.FieldError, err, log.FieldPath, r.URL.Path)
		}
	}
	writeJSON(w, status, resp)
}

var badInput = []error{
	core.ErrInvalidAmount,
	core.ErrInvalidType,
	core.ErrInvalidPeriod,
	core.ErrEmptyCategory,
	core.ErrEmptyUser,
	core.ErrZeroDate,
	core.ErrEmptyFamilyName,
	core.ErrEmptyFamilyID,
	core.ErrInvalidRole,
	core.ErrEndBeforeStart,
	core.ErrDescriptionLimit,
	report.ErrInvalidPeriod,
	report.ErrInvalidRange,
}

// statusFor maps domain and data API errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, dataapi.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, dataapi.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, dataapi.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	for _, target := range badInput {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// fail writes err with the status statusFor picks.
func fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	writeError(w, r, statusFor(err), message, err)
}
