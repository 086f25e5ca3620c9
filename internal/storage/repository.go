package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"finanzas/internal/core"
	"finanzas/internal/dataapi"
	"finanzas/internal/log"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so stored timestamps compare lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRepository is the self-hosted implementation of the data API ports.
type SQLiteRepository struct {
	db     *sql.DB
	logger *log.Logger
	now    func() time.Time
}

var _ dataapi.Backend = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if logger == nil {
		logger = log.Nop()
	}
	logger = logger.WithComponent(log.ComponentStorage)
	logger.Debug("Database ready", "db_path", dbPath, "schema_version", version)
	return &SQLiteRepository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// KV returns a key/value store backed by the same database.
func (r *SQLiteRepository) KV() *KVStore {
	return &KVStore{db: r.db, now: r.now}
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const transactionColumns = `id, user_id, family_id, type, amount_cents, category, description, date, created_at`

func (r *SQLiteRepository) ListTransactions(ctx context.Context, f dataapi.TransactionFilter) ([]core.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if f.FamilyID != "" {
		where = append(where, "family_id = ?")
		args = append(args, f.FamilyID)
	} else if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if !f.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, formatTime(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, formatTime(f.To))
	}

	query := "SELECT " + transactionColumns + " FROM transactions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if f.Descending {
		query += " ORDER BY date DESC, created_at DESC"
	} else {
		query += " ORDER BY date ASC, created_at ASC"
	}
	if f.Limit > 0 || f.Offset > 0 {
		limit := f.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	t = dataapi.PrepareTransaction(t, r.now())
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, nullString(t.FamilyID), string(t.Type), t.Amount.Cents,
		t.Category, t.Description, formatTime(t.Date), formatTime(t.CreatedAt))
	if err != nil {
		return core.Transaction{}, mapWriteError("insert transaction "+t.ID, err)
	}
	r.logger.InfoContext(ctx, "Transaction saved to SQLite",
		"id", t.ID, log.FieldUserID, t.UserID, log.FieldAmountCents, t.Amount.Cents, log.FieldCategory, t.Category)
	return t, nil
}

// InsertTransactions stores all rows in one database transaction.
func (r *SQLiteRepository) InsertTransactions(ctx context.Context, ts []core.Transaction) ([]core.Transaction, error) {
	for i, t := range ts {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := r.now()
	out := make([]core.Transaction, 0, len(ts))
	for _, t := range ts {
		t = dataapi.PrepareTransaction(t, now)
		if _, err := stmt.ExecContext(ctx,
			t.ID, t.UserID, nullString(t.FamilyID), string(t.Type), t.Amount.Cents,
			t.Category, t.Description, formatTime(t.Date), formatTime(t.CreatedAt)); err != nil {
			return nil, mapWriteError("insert transaction "+t.ID, err)
		}
		out = append(out, t)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	r.logger.InfoContext(ctx, "Transactions saved to SQLite", "count", len(out))
	return out, nil
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, id string, p core.TransactionPatch) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id)
	current, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("transaction %s: %w", id, dataapi.ErrNotFound)
	}
	if err != nil {
		return err
	}
	updated := p.Apply(current)
	if err := updated.Validate(); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE transactions SET type = ?, amount_cents = ?, category = ?, description = ?, date = ? WHERE id = ?`,
		string(updated.Type), updated.Amount.Cents, updated.Category, updated.Description, formatTime(updated.Date), id); err != nil {
		return fmt.Errorf("update transaction %s: %w", id, err)
	}
	return tx.Commit()
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "transactions", id)
}

const budgetColumns = `id, user_id, family_id, category, amount_cents, period, start_date, end_date, is_active, created_at, updated_at`

func (r *SQLiteRepository) GetBudget(ctx context.Context, id string) (core.Budget, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+budgetColumns+" FROM budgets WHERE id = ?", id)
	b, err := scanBudget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Budget{}, fmt.Errorf("budget %s: %w", id, dataapi.ErrNotFound)
	}
	return b, err
}

func (r *SQLiteRepository) ListBudgets(ctx context.Context, f dataapi.BudgetFilter) ([]core.Budget, error) {
	var (
		where []string
		args  []any
	)
	if f.FamilyID != "" {
		where = append(where, "family_id = ?")
		args = append(args, f.FamilyID)
	} else {
		where = append(where, "user_id = ?", "family_id IS NULL")
		args = append(args, f.UserID)
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.ActiveOnly {
		where = append(where, "is_active = 1")
	}

	query := "SELECT " + budgetColumns + " FROM budgets WHERE " + strings.Join(where, " AND ") + " ORDER BY created_at DESC"
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query budgets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []core.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) InsertBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	b = dataapi.PrepareBudget(b, r.now())
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO budgets (`+budgetColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, nullString(b.FamilyID), b.Category, b.Amount.Cents, string(b.Period),
		formatTime(b.StartDate), nullTime(b.EndDate), b.Active, formatTime(b.CreatedAt), formatTime(b.UpdatedAt))
	if err != nil {
		return core.Budget{}, mapWriteError("insert budget "+b.ID, err)
	}
	return b, nil
}

func (r *SQLiteRepository) UpdateBudget(ctx context.Context, id string, p core.BudgetPatch) (core.Budget, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Budget{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanBudget(tx.QueryRowContext(ctx, "SELECT "+budgetColumns+" FROM budgets WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Budget{}, fmt.Errorf("budget %s: %w", id, dataapi.ErrNotFound)
	}
	if err != nil {
		return core.Budget{}, err
	}
	updated := p.Apply(current)
	if err := updated.Validate(); err != nil {
		return core.Budget{}, err
	}
	updated.UpdatedAt = r.now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE budgets SET category = ?, amount_cents = ?, period = ?, start_date = ?, end_date = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		updated.Category, updated.Amount.Cents, string(updated.Period), formatTime(updated.StartDate),
		nullTime(updated.EndDate), updated.Active, formatTime(updated.UpdatedAt), id); err != nil {
		return core.Budget{}, fmt.Errorf("update budget %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return core.Budget{}, fmt.Errorf("commit: %w", err)
	}
	return updated, nil
}

func (r *SQLiteRepository) DeleteBudget(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "budgets", id)
}

func (r *SQLiteRepository) InsertFamily(ctx context.Context, f core.Family) (core.Family, error) {
	if err := f.Validate(); err != nil {
		return core.Family{}, err
	}
	f = dataapi.PrepareFamily(f, r.now())
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO families (id, name, invite_code, created_by, created_at) VALUES (?, ?, ?, ?, ?)`,
		f.ID, f.Name, f.InviteCode, f.CreatedBy, formatTime(f.CreatedAt))
	if err != nil {
		return core.Family{}, mapWriteError("insert family "+f.ID, err)
	}
	return f, nil
}

func (r *SQLiteRepository) InsertFamilyMember(ctx context.Context, m core.FamilyMember) (core.FamilyMember, error) {
	m = dataapi.PrepareMember(m, r.now())
	if err := m.Validate(); err != nil {
		return core.FamilyMember{}, err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO family_members (id, family_id, user_id, role, joined_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.FamilyID, m.UserID, string(m.Role), formatTime(m.JoinedAt))
	if err != nil {
		return core.FamilyMember{}, mapWriteError("insert family member "+m.UserID, err)
	}
	return m, nil
}

func (r *SQLiteRepository) GetFamily(ctx context.Context, id string) (core.Family, error) {
	var (
		f       core.Family
		created string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, invite_code, created_by, created_at FROM families WHERE id = ?`, id).
		Scan(&f.ID, &f.Name, &f.InviteCode, &f.CreatedBy, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Family{}, fmt.Errorf("family %s: %w", id, dataapi.ErrNotFound)
	}
	if err != nil {
		return core.Family{}, fmt.Errorf("get family %s: %w", id, err)
	}
	if f.CreatedAt, err = parseTime(created); err != nil {
		return core.Family{}, err
	}
	return f, nil
}

func (r *SQLiteRepository) ListFamilyMembers(ctx context.Context, familyID string) ([]core.FamilyMember, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, family_id, user_id, role, joined_at FROM family_members WHERE family_id = ? ORDER BY joined_at, id`, familyID)
	if err != nil {
		return nil, fmt.Errorf("list family members: %w", err)
	}
	defer rows.Close()

	var out []core.FamilyMember
	for rows.Next() {
		var (
			m            core.FamilyMember
			role, joined string
		)
		if err := rows.Scan(&m.ID, &m.FamilyID, &m.UserID, &role, &joined); err != nil {
			return nil, fmt.Errorf("scan family member: %w", err)
		}
		m.Role = core.MemberRole(role)
		if m.JoinedAt, err = parseTime(joined); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) deleteByID(ctx context.Context, table, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", table, id, dataapi.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		t                    core.Transaction
		familyID             sql.NullString
		typ, date, createdAt string
	)
	if err := s.Scan(&t.ID, &t.UserID, &familyID, &typ, &t.Amount.Cents, &t.Category, &t.Description, &date, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, err
		}
		return t, fmt.Errorf("scan transaction: %w", err)
	}
	t.FamilyID = familyID.String
	t.Type = core.TransactionType(typ)
	var err error
	if t.Date, err = parseTime(date); err != nil {
		return t, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return t, err
	}
	return t, nil
}

func scanBudget(s scanner) (core.Budget, error) {
	var (
		b                           core.Budget
		familyID, endDate           sql.NullString
		period, start, created, upd string
	)
	if err := s.Scan(&b.ID, &b.UserID, &familyID, &b.Category, &b.Amount.Cents, &period, &start, &endDate, &b.Active, &created, &upd); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return b, err
		}
		return b, fmt.Errorf("scan budget: %w", err)
	}
	b.FamilyID = familyID.String
	b.Period = core.BudgetPeriod(period)
	var err error
	if b.StartDate, err = parseTime(start); err != nil {
		return b, err
	}
	if endDate.Valid {
		if b.EndDate, err = parseTime(endDate.String); err != nil {
			return b, err
		}
	}
	if b.CreatedAt, err = parseTime(created); err != nil {
		return b, err
	}
	if b.UpdatedAt, err = parseTime(upd); err != nil {
		return b, err
	}
	return b, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func mapWriteError(what string, err error) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%s: %w", what, dataapi.ErrConflict)
	}
	return fmt.Errorf("%s: %w", what, err)
}
