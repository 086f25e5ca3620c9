package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"finanzas/internal/core"
	"finanzas/internal/dataapi"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL, APIKey: "anon", Token: "jwt"})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNewRequiresURLAndKey(t *testing.T) {
	if _, err := New(Config{APIKey: "k"}); err == nil {
		t.Fatal("expected error without base URL")
	}
	if _, err := New(Config{BaseURL: "http://x"}); err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestListTransactionsQueryAndDecode(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/transactions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("apikey") != "anon" || r.Header.Get("Authorization") != "Bearer jwt" {
			t.Errorf("missing auth headers: %v", r.Header)
		}
		q := r.URL.Query()
		if q.Get("user_id") != "eq.u1" || q.Get("type") != "eq.expense" || q.Get("order") != "date.desc" || q.Get("limit") != "10" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		dates := q["date"]
		if len(dates) != 2 || dates[0] != "gte.2025-03-01" || dates[1] != "lte.2025-03-31" {
			t.Errorf("unexpected date filters: %v", dates)
		}
		_, _ = io.WriteString(w, `[{"id":"t1","user_id":"u1","family_id":null,"type":"expense","amount":"12.50","category":"food","description":"","date":"2025-03-05"},
			{"id":"t2","user_id":"u1","family_id":"f1","type":"expense","amount":3.1,"category":"","description":"x","date":"2025-03-02T10:00:00Z"}]`)
	})

	got, err := c.ListTransactions(context.Background(), dataapi.TransactionFilter{
		UserID:     "u1",
		Type:       core.Expense,
		From:       time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		To:         time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		Descending: true,
		Limit:      10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].Amount.Cents != 1250 || got[0].FamilyID != "" {
		t.Fatalf("unexpected first row: %+v", got[0])
	}
	if got[1].Amount.Cents != 310 || got[1].FamilyID != "f1" || got[1].Date.Day() != 2 {
		t.Fatalf("unexpected second row: %+v", got[1])
	}
}

func TestInsertTransactionSendsRepresentation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Prefer") != "return=representation" {
			t.Errorf("unexpected request %s prefer=%q", r.Method, r.Header.Get("Prefer"))
		}
		var row transactionRow
		if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if row.ID == "" || row.Amount.String() != "9.99" || row.Date != "2025-03-04" || row.FamilyID != nil {
			t.Errorf("unexpected row body: %+v", row)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode([]transactionRow{row})
	})

	got, err := c.InsertTransaction(context.Background(), core.Transaction{
		UserID: "u1", Type: core.Expense, Amount: core.Money{Cents: 999}, Category: "food",
		Date: time.Date(2025, 3, 4, 18, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.ID == "" || got.Amount.Cents != 999 {
		t.Fatalf("unexpected inserted transaction: %+v", got)
	}
}

func TestInsertTransactionsPostsOneArray(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		var rows []transactionRow
		if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if len(rows) != 2 || rows[0].ID == "" || rows[0].ID == rows[1].ID {
			t.Errorf("unexpected rows: %+v", rows)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(rows)
	})
	tx := core.Transaction{UserID: "u1", Type: core.Income, Amount: core.Money{Cents: 100}, Date: time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)}

	got, err := c.InsertTransactions(context.Background(), []core.Transaction{tx, tx})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 || len(got) != 2 || got[1].Type != core.Income {
		t.Fatalf("calls=%d got=%+v", calls, got)
	}

	empty, err := c.InsertTransactions(context.Background(), nil)
	if err != nil || len(empty) != 0 || calls != 1 {
		t.Fatalf("empty batch must not call the API: %v calls=%d", err, calls)
	}
}

func TestFamilyReads(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch r.URL.Path {
		case "/rest/v1/families":
			if q.Get("id") == "eq.missing" {
				_, _ = io.WriteString(w, `[]`)
				return
			}
			_, _ = io.WriteString(w, `[{"id":"f1","name":"Home","invite_code":"ABCD1234","created_by":"u1"}]`)
		case "/rest/v1/family_members":
			if q.Get("family_id") != "eq.f1" || q.Get("order") != "joined_at.asc" {
				t.Errorf("unexpected query: %s", r.URL.RawQuery)
			}
			_, _ = io.WriteString(w, `[{"id":"m1","family_id":"f1","user_id":"u1","role":"admin"},{"id":"m2","family_id":"f1","user_id":"u2","role":"member"}]`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	ctx := context.Background()

	f, err := c.GetFamily(ctx, "f1")
	if err != nil || f.InviteCode != "ABCD1234" {
		t.Fatalf("unexpected family %+v err=%v", f, err)
	}
	members, err := c.ListFamilyMembers(ctx, "f1")
	if err != nil || len(members) != 2 || members[0].Role != core.RoleAdmin {
		t.Fatalf("unexpected members %+v err=%v", members, err)
	}
	if _, err := c.GetFamily(ctx, "missing"); !errors.Is(err, dataapi.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestErrorStatusesMapToSentinels(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusConflict, dataapi.ErrConflict},
		{http.StatusServiceUnavailable, dataapi.ErrUnavailable},
		{http.StatusNotFound, dataapi.ErrNotFound},
	}
	for _, tc := range cases {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"message":"nope"}`, tc.status)
		})
		_, err := c.InsertFamily(context.Background(), core.Family{Name: "Home", CreatedBy: "u1"})
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status != tc.status {
			t.Fatalf("status %d: expected APIError, got %v", tc.status, err)
		}
	}
}

func TestDeleteMissingRowIsNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Query().Get("id") != "eq.t9" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, `[]`)
	})
	if err := c.DeleteTransaction(context.Background(), "t9"); !errors.Is(err, dataapi.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListBudgetsPersonalScope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("user_id") != "eq.u1" || q.Get("family_id") != "is.null" || q.Get("is_active") != "eq.true" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, `[{"id":"b1","user_id":"u1","family_id":null,"category":"food","amount":"100","period":"monthly","start_date":"2025-03-01","end_date":null,"is_active":true}]`)
	})
	got, err := c.ListBudgets(context.Background(), dataapi.BudgetFilter{UserID: "u1", ActiveOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Amount.Cents != 10000 || !got[0].EndDate.IsZero() || got[0].Period != core.Monthly {
		t.Fatalf("unexpected budgets: %+v", got)
	}
}

func TestPingUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: url, APIKey: "anon", Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Ping(context.Background()); !errors.Is(err, dataapi.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
