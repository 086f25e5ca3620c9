package http

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"finanzas/internal/log"
	"finanzas/internal/report"
)

// getReport serves GET /api/reports/{period}. Without start and end the
// current week, month or year to date is reported. format=csv downloads the
// spreadsheet rendition.
func (h *handlers) getReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	period := report.Period(chi.URLParam(r, "period"))
	if !period.Valid() {
		writeError(w, r, http.StatusBadRequest, "invalid report period", report.ErrInvalidPeriod)
		return
	}
	familyID := q.Get("family_id")

	var (
		rep report.Report
		err error
	)
	if start, end := q.Get("start"), q.Get("end"); start != "" || end != "" {
		req := report.Request{Period: period, UserID: userID(r), FamilyID: familyID}
		if req.Start, err = parseTime(start); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid start", err)
			return
		}
		if req.End, err = parseTime(end); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid end", err)
			return
		}
		rep, err = h.Reports.Generate(r.Context(), req)
	} else {
		rep, err = h.Reports.ForPeriod(r.Context(), period, userID(r), familyID)
	}
	if err != nil {
		fail(w, r, "failed to generate report", err)
		return
	}

	if q.Get("format") != "csv" {
		writeJSON(w, http.StatusOK, rep)
		return
	}
	name := fmt.Sprintf("report-%s-%s.csv", rep.Period, rep.Start.Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if err := report.WriteCSV(w, rep); err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to write report CSV", log.FieldError, err)
	}
}
