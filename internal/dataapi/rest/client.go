// Package rest talks to a PostgREST-style hosted relational API.
//
// Every request carries the project API key and the caller's bearer token so
// the server applies its row-level security policies.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"finanzas/internal/core"
	"finanzas/internal/dataapi"
	"finanzas/internal/log"
)

const (
	tableTransactions  = "transactions"
	tableBudgets       = "budgets"
	tableFamilies      = "families"
	tableFamilyMembers = "family_members"
)

type Config struct {
	BaseURL    string
	APIKey     string
	Token      string // falls back to APIKey
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *log.Logger
	Now        func() time.Time
}

type Client struct {
	base   string
	apiKey string
	token  string
	http   *http.Client
	logger *log.Logger
	now    func() time.Time
}

var _ dataapi.Backend = (*Client)(nil)

// APIError is a non-2xx response from the data API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("data api status %d: %s", e.Status, e.Message)
}

// Unwrap maps statuses onto the dataapi sentinels.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusNotFound:
		return dataapi.ErrNotFound
	case e.Status == http.StatusConflict:
		return dataapi.ErrConflict
	case e.Status >= 500:
		return dataapi.ErrUnavailable
	}
	return nil
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("rest: base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("rest: API key is required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	token := cfg.Token
	if token == "" {
		token = cfg.APIKey
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		base:   strings.TrimRight(cfg.BaseURL, "/") + "/rest/v1/",
		apiKey: cfg.APIKey,
		token:  token,
		http:   hc,
		logger: logger.WithComponent(log.ComponentDataAPI),
		now:    now,
	}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	q := url.Values{"select": {"id"}, "limit": {"1"}}
	return c.do(ctx, http.MethodGet, tableTransactions, q, nil, false, nil)
}

func (c *Client) ListTransactions(ctx context.Context, f dataapi.TransactionFilter) ([]core.Transaction, error) {
	q := url.Values{"select": {"*"}}
	if f.FamilyID != "" {
		q.Set("family_id", "eq."+f.FamilyID)
	} else if f.UserID != "" {
		q.Set("user_id", "eq."+f.UserID)
	}
	if f.Type != "" {
		q.Set("type", "eq."+string(f.Type))
	}
	if f.Category != "" {
		q.Set("category", "eq."+f.Category)
	}
	if !f.From.IsZero() {
		q.Add("date", "gte."+formatDate(f.From))
	}
	if !f.To.IsZero() {
		q.Add("date", "lte."+formatDate(f.To))
	}
	if f.Descending {
		q.Set("order", "date.desc")
	} else {
		q.Set("order", "date.asc")
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}

	var rows []transactionRow
	if err := c.do(ctx, http.MethodGet, tableTransactions, q, nil, false, &rows); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	out := make([]core.Transaction, 0, len(rows))
	for _, r := range rows {
		t, err := r.toCore()
		if err != nil {
			return nil, fmt.Errorf("decode transaction %s: %w", r.ID, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (c *Client) InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	t = dataapi.PrepareTransaction(t, c.now())
	var rows []transactionRow
	if err := c.do(ctx, http.MethodPost, tableTransactions, nil, toTransactionRow(t), true, &rows); err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	if len(rows) == 0 {
		return t, nil
	}
	return rows[0].toCore()
}

// InsertTransactions posts every row in one request, which the API applies
// as a single statement.
func (c *Client) InsertTransactions(ctx context.Context, ts []core.Transaction) ([]core.Transaction, error) {
	if len(ts) == 0 {
		return []core.Transaction{}, nil
	}
	now := c.now()
	body := make([]transactionRow, 0, len(ts))
	prepared := make([]core.Transaction, 0, len(ts))
	for i, t := range ts {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		t = dataapi.PrepareTransaction(t, now)
		prepared = append(prepared, t)
		body = append(body, toTransactionRow(t))
	}
	var rows []transactionRow
	if err := c.do(ctx, http.MethodPost, tableTransactions, nil, body, true, &rows); err != nil {
		return nil, fmt.Errorf("insert %d transactions: %w", len(ts), err)
	}
	if len(rows) == 0 {
		return prepared, nil
	}
	out := make([]core.Transaction, 0, len(rows))
	for _, r := range rows {
		t, err := r.toCore()
		if err != nil {
			return nil, fmt.Errorf("decode transaction %s: %w", r.ID, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (c *Client) UpdateTransaction(ctx context.Context, id string, p core.TransactionPatch) error {
	var rows []transactionRow
	q := url.Values{"id": {"eq." + id}}
	if err := c.do(ctx, http.MethodPatch, tableTransactions, q, transactionPatchBody(p), true, &rows); err != nil {
		return fmt.Errorf("update transaction %s: %w", id, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("update transaction %s: %w", id, dataapi.ErrNotFound)
	}
	return nil
}

func (c *Client) DeleteTransaction(ctx context.Context, id string) error {
	var rows []transactionRow
	q := url.Values{"id": {"eq." + id}}
	if err := c.do(ctx, http.MethodDelete, tableTransactions, q, nil, true, &rows); err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("delete transaction %s: %w", id, dataapi.ErrNotFound)
	}
	return nil
}

func (c *Client) GetBudget(ctx context.Context, id string) (core.Budget, error) {
	var rows []budgetRow
	q := url.Values{"select": {"*"}, "id": {"eq." + id}}
	if err := c.do(ctx, http.MethodGet, tableBudgets, q, nil, false, &rows); err != nil {
		return core.Budget{}, fmt.Errorf("get budget %s: %w", id, err)
	}
	if len(rows) == 0 {
		return core.Budget{}, fmt.Errorf("budget %s: %w", id, dataapi.ErrNotFound)
	}
	return rows[0].toCore()
}

func (c *Client) ListBudgets(ctx context.Context, f dataapi.BudgetFilter) ([]core.Budget, error) {
	q := url.Values{"select": {"*"}, "order": {"created_at.desc"}}
	if f.FamilyID != "" {
		q.Set("family_id", "eq."+f.FamilyID)
	} else {
		q.Set("user_id", "eq."+f.UserID)
		q.Set("family_id", "is.null")
	}
	if f.Category != "" {
		q.Set("category", "eq."+f.Category)
	}
	if f.ActiveOnly {
		q.Set("is_active", "eq.true")
	}

	var rows []budgetRow
	if err := c.do(ctx, http.MethodGet, tableBudgets, q, nil, false, &rows); err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	out := make([]core.Budget, 0, len(rows))
	for _, r := range rows {
		b, err := r.toCore()
		if err != nil {
			return nil, fmt.Errorf("decode budget %s: %w", r.ID, err)
		}
		out = append(out, b)
	}
	return out, nil
}

func (c *Client) InsertBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	b = dataapi.PrepareBudget(b, c.now())
	var rows []budgetRow
	if err := c.do(ctx, http.MethodPost, tableBudgets, nil, toBudgetRow(b), true, &rows); err != nil {
		return core.Budget{}, fmt.Errorf("insert budget: %w", err)
	}
	if len(rows) == 0 {
		return b, nil
	}
	return rows[0].toCore()
}

func (c *Client) UpdateBudget(ctx context.Context, id string, p core.BudgetPatch) (core.Budget, error) {
	var rows []budgetRow
	q := url.Values{"id": {"eq." + id}}
	if err := c.do(ctx, http.MethodPatch, tableBudgets, q, budgetPatchBody(p, c.now()), true, &rows); err != nil {
		return core.Budget{}, fmt.Errorf("update budget %s: %w", id, err)
	}
	if len(rows) == 0 {
		return core.Budget{}, fmt.Errorf("update budget %s: %w", id, dataapi.ErrNotFound)
	}
	return rows[0].toCore()
}

func (c *Client) DeleteBudget(ctx context.Context, id string) error {
	var rows []budgetRow
	q := url.Values{"id": {"eq." + id}}
	if err := c.do(ctx, http.MethodDelete, tableBudgets, q, nil, true, &rows); err != nil {
		return fmt.Errorf("delete budget %s: %w", id, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("delete budget %s: %w", id, dataapi.ErrNotFound)
	}
	return nil
}

func (c *Client) InsertFamily(ctx context.Context, f core.Family) (core.Family, error) {
	if err := f.Validate(); err != nil {
		return core.Family{}, err
	}
	f = dataapi.PrepareFamily(f, c.now())
	row := familyRow{ID: f.ID, Name: f.Name, InviteCode: f.InviteCode, CreatedBy: f.CreatedBy, CreatedAt: optTime(f.CreatedAt)}
	var rows []familyRow
	if err := c.do(ctx, http.MethodPost, tableFamilies, nil, row, true, &rows); err != nil {
		return core.Family{}, fmt.Errorf("insert family: %w", err)
	}
	if len(rows) > 0 {
		f = rows[0].toCore()
	}
	return f, nil
}

func (c *Client) InsertFamilyMember(ctx context.Context, m core.FamilyMember) (core.FamilyMember, error) {
	m = dataapi.PrepareMember(m, c.now())
	if err := m.Validate(); err != nil {
		return core.FamilyMember{}, err
	}
	row := memberRow{ID: m.ID, FamilyID: m.FamilyID, UserID: m.UserID, Role: string(m.Role), JoinedAt: optTime(m.JoinedAt)}
	var rows []memberRow
	if err := c.do(ctx, http.MethodPost, tableFamilyMembers, nil, row, true, &rows); err != nil {
		return core.FamilyMember{}, fmt.Errorf("insert family member: %w", err)
	}
	if len(rows) > 0 {
		m = rows[0].toCore()
	}
	return m, nil
}

func (c *Client) GetFamily(ctx context.Context, id string) (core.Family, error) {
	var rows []familyRow
	q := url.Values{"select": {"*"}, "id": {"eq." + id}}
	if err := c.do(ctx, http.MethodGet, tableFamilies, q, nil, false, &rows); err != nil {
		return core.Family{}, fmt.Errorf("get family %s: %w", id, err)
	}
	if len(rows) == 0 {
		return core.Family{}, fmt.Errorf("family %s: %w", id, dataapi.ErrNotFound)
	}
	return rows[0].toCore(), nil
}

func (c *Client) ListFamilyMembers(ctx context.Context, familyID string) ([]core.FamilyMember, error) {
	var rows []memberRow
	q := url.Values{"select": {"*"}, "family_id": {"eq." + familyID}, "order": {"joined_at.asc"}}
	if err := c.do(ctx, http.MethodGet, tableFamilyMembers, q, nil, false, &rows); err != nil {
		return nil, fmt.Errorf("list members of family %s: %w", familyID, err)
	}
	out := make([]core.FamilyMember, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCore())
	}
	return out, nil
}

// do sends one request. With representation set the server is asked to echo
// the affected rows, which are decoded into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, table string, q url.Values, body any, representation bool, out any) error {
	u := c.base + table
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if representation {
		req.Header.Set("Prefer", "return=representation")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "Data API request failed",
			log.FieldMethod, method, log.FieldPath, table, log.FieldError, err)
		return fmt.Errorf("%w: %v", dataapi.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.DebugContext(ctx, "Data API request",
		log.FieldMethod, method, log.FieldPath, table,
		log.FieldStatusCode, resp.StatusCode, log.FieldDuration, time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
