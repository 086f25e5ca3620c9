package log

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func newJSONLogger(buf *bytes.Buffer) *Logger {
	return New(Config{Format: "json", Output: buf, Component: ComponentBudget})
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return rec
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{"debug": "DEBUG", "WARN": "WARN", "error": "ERROR", "": "INFO", "bogus": "INFO"}
	for in, want := range tests {
		if got := ParseLevel(in).String(); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	newJSONLogger(&buf).Info("hello", FieldUserID, "u1")
	rec := decodeLine(t, &buf)
	if rec[FieldComponent] != ComponentBudget || rec[FieldUserID] != "u1" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestTrack(t *testing.T) {
	var buf bytes.Buffer
	newJSONLogger(&buf).Track(context.Background(), "budget_created", FieldBudgetID, "b1")
	rec := decodeLine(t, &buf)
	if rec[FieldComponent] != ComponentAnalytics || rec[FieldEvent] != "budget_created" || rec[FieldBudgetID] != "b1" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestMiddlewareLogsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf)
	h := middleware.RequestID(Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) != logger {
			t.Error("logger not stored in request context")
		}
		w.WriteHeader(http.StatusTeapot)
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/stats?month=3", nil))

	rec := decodeLine(t, &buf)
	if rec["level"] != "WARN" || rec[FieldStatusCode] != float64(http.StatusTeapot) {
		t.Fatalf("unexpected record %v", rec)
	}
	if rec[FieldPath] != "/api/stats" || rec[FieldQuery] != "month=3" {
		t.Fatalf("request fields missing: %v", rec)
	}
	if id, _ := rec[FieldRequestID].(string); id == "" {
		t.Fatalf("request id missing: %v", rec)
	}
}
