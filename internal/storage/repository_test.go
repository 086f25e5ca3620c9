package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"finanzas/internal/core"
	"finanzas/internal/dataapi"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func date(m time.Month, d int) time.Time {
	return time.Date(2025, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	repo, err := NewSQLiteRepository(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	_ = repo.Close()
	version, err := RunMigrations(path)
	if err != nil {
		t.Fatalf("second migration run: %v", err)
	}
	if version != 1 {
		t.Fatalf("schema version = %d, want 1", version)
	}
}

func TestRepositoryTransactions(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	food, err := repo.InsertTransaction(ctx, core.Transaction{UserID: "u1", Type: core.Expense, Amount: core.Money{Cents: 1200}, Category: "food", Date: date(3, 5)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := repo.InsertTransaction(ctx, core.Transaction{UserID: "u1", FamilyID: "f1", Type: core.Income, Amount: core.Money{Cents: 5000}, Date: date(3, 1)}); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.InsertTransaction(ctx, core.Transaction{UserID: "u1", Type: core.Expense, Amount: core.Money{Cents: 300}, Category: "food", Date: date(4, 2)}); err != nil {
		t.Fatal(err)
	}

	all, err := repo.ListTransactions(ctx, dataapi.TransactionFilter{UserID: "u1"})
	if err != nil || len(all) != 3 {
		t.Fatalf("expected 3, got %d err=%v", len(all), err)
	}
	if !all[0].Date.Equal(date(3, 1)) || all[0].FamilyID != "f1" {
		t.Fatalf("expected ascending order, first=%+v", all[0])
	}

	march, _ := repo.ListTransactions(ctx, dataapi.TransactionFilter{UserID: "u1", Type: core.Expense, Category: "food", From: date(3, 1), To: date(3, 31)})
	if len(march) != 1 || march[0].ID != food.ID || march[0].Amount.Cents != 1200 {
		t.Fatalf("unexpected march food: %+v", march)
	}

	family, _ := repo.ListTransactions(ctx, dataapi.TransactionFilter{FamilyID: "f1"})
	if len(family) != 1 || family[0].Type != core.Income {
		t.Fatalf("unexpected family transactions: %+v", family)
	}

	page, _ := repo.ListTransactions(ctx, dataapi.TransactionFilter{UserID: "u1", Descending: true, Limit: 1, Offset: 1})
	if len(page) != 1 || !page[0].Date.Equal(date(3, 5)) {
		t.Fatalf("unexpected page: %+v", page)
	}

	amount := core.Money{Cents: 1500}
	if err := repo.UpdateTransaction(ctx, food.ID, core.TransactionPatch{Amount: &amount}); err != nil {
		t.Fatal(err)
	}
	if err := repo.UpdateTransaction(ctx, "missing", core.TransactionPatch{Amount: &amount}); !errors.Is(err, dataapi.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.DeleteTransaction(ctx, food.ID); err != nil {
		t.Fatal(err)
	}
	if err := repo.DeleteTransaction(ctx, food.ID); !errors.Is(err, dataapi.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRepositoryDuplicateInsertConflicts(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	tx := core.Transaction{ID: "same", UserID: "u1", Type: core.Expense, Amount: core.Money{Cents: 1}, Date: date(1, 1)}
	if _, err := repo.InsertTransaction(ctx, tx); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.InsertTransaction(ctx, tx); !errors.Is(err, dataapi.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestRepositoryBudgets(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	b, err := repo.InsertBudget(ctx, core.Budget{UserID: "u1", Category: "food", Amount: core.Money{Cents: 10000}, Period: core.Monthly, StartDate: date(3, 1), Active: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := repo.InsertBudget(ctx, core.Budget{UserID: "u1", FamilyID: "f1", Category: "rent", Amount: core.Money{Cents: 90000}, Period: core.Yearly, StartDate: date(1, 1), EndDate: date(12, 31), Active: true}); err != nil {
		t.Fatal(err)
	}

	got, err := repo.GetBudget(ctx, b.ID)
	if err != nil || got.Category != "food" || !got.EndDate.IsZero() || !got.Active {
		t.Fatalf("unexpected budget: %+v err=%v", got, err)
	}

	personal, _ := repo.ListBudgets(ctx, dataapi.BudgetFilter{UserID: "u1", ActiveOnly: true})
	if len(personal) != 1 || personal[0].ID != b.ID {
		t.Fatalf("unexpected personal budgets: %+v", personal)
	}
	family, _ := repo.ListBudgets(ctx, dataapi.BudgetFilter{FamilyID: "f1"})
	if len(family) != 1 || !family[0].EndDate.Equal(date(12, 31)) {
		t.Fatalf("unexpected family budgets: %+v", family)
	}

	inactive := false
	updated, err := repo.UpdateBudget(ctx, b.ID, core.BudgetPatch{Active: &inactive})
	if err != nil || updated.Active {
		t.Fatalf("unexpected update: %+v err=%v", updated, err)
	}
	personal, _ = repo.ListBudgets(ctx, dataapi.BudgetFilter{UserID: "u1", ActiveOnly: true})
	if len(personal) != 0 {
		t.Fatalf("expected no active budgets, got %+v", personal)
	}

	if err := repo.DeleteBudget(ctx, b.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.GetBudget(ctx, b.ID); !errors.Is(err, dataapi.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRepositoryFamilies(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	f, err := repo.InsertFamily(ctx, core.Family{Name: "Home", CreatedBy: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := repo.InsertFamilyMember(ctx, core.FamilyMember{FamilyID: f.ID, UserID: "u1", Role: core.RoleAdmin}); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.InsertFamilyMember(ctx, core.FamilyMember{FamilyID: f.ID, UserID: "u1"}); !errors.Is(err, dataapi.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate member, got %v", err)
	}
	if _, err := repo.InsertFamilyMember(ctx, core.FamilyMember{FamilyID: f.ID, UserID: "u2", JoinedAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}

	got, err := repo.GetFamily(ctx, f.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Home" || got.InviteCode != f.InviteCode || got.CreatedBy != "u1" {
		t.Fatalf("unexpected family %+v", got)
	}
	members, err := repo.ListFamilyMembers(ctx, f.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 2 || members[0].UserID != "u1" || members[0].Role != core.RoleAdmin || members[1].Role != core.RoleMember {
		t.Fatalf("unexpected members %+v", members)
	}
	if _, err := repo.GetFamily(ctx, "missing"); !errors.Is(err, dataapi.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRepositoryInsertTransactionsIsAtomic(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	if _, err := repo.InsertTransaction(ctx, core.Transaction{ID: "taken", UserID: "u1", Type: core.Expense, Amount: core.Money{Cents: 1}, Date: date(1, 1)}); err != nil {
		t.Fatal(err)
	}

	batch := []core.Transaction{
		{UserID: "u1", Type: core.Expense, Amount: core.Money{Cents: 100}, Date: date(2, 1)},
		{ID: "taken", UserID: "u1", Type: core.Expense, Amount: core.Money{Cents: 200}, Date: date(2, 2)},
	}
	if _, err := repo.InsertTransactions(ctx, batch); !errors.Is(err, dataapi.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	all, _ := repo.ListTransactions(ctx, dataapi.TransactionFilter{UserID: "u1"})
	if len(all) != 1 {
		t.Fatalf("failed batch must not store rows, got %d", len(all))
	}

	batch[1].ID = ""
	saved, err := repo.InsertTransactions(ctx, batch)
	if err != nil {
		t.Fatal(err)
	}
	if len(saved) != 2 || saved[0].ID == "" || saved[0].ID == saved[1].ID {
		t.Fatalf("unexpected saved rows %+v", saved)
	}
	all, _ = repo.ListTransactions(ctx, dataapi.TransactionFilter{UserID: "u1"})
	if len(all) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(all))
	}
}

func TestKVStore(t *testing.T) {
	ctx := context.Background()
	kv := newTestRepo(t).KV()

	v, err := kv.Load(ctx, "missing")
	if err != nil || v != nil {
		t.Fatalf("expected nil for missing key, got %q err=%v", v, err)
	}
	if err := kv.Save(ctx, "k", []byte(`[1]`)); err != nil {
		t.Fatal(err)
	}
	if err := kv.Save(ctx, "k", []byte(`[1,2]`)); err != nil {
		t.Fatal(err)
	}
	v, _ = kv.Load(ctx, "k")
	if string(v) != `[1,2]` {
		t.Fatalf("expected overwritten value, got %q", v)
	}
	if err := kv.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if v, _ := kv.Load(ctx, "k"); v != nil {
		t.Fatalf("expected deleted key, got %q", v)
	}
}

func TestMemoryKV(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	if err := kv.Save(ctx, "k", []byte("a")); err != nil {
		t.Fatal(err)
	}
	v, _ := kv.Load(ctx, "k")
	v[0] = 'z'
	again, _ := kv.Load(ctx, "k")
	if string(again) != "a" {
		t.Fatal("Load must return a copy")
	}
	kv.FailSave = errors.New("disk full")
	if err := kv.Save(ctx, "k", []byte("b")); err == nil {
		t.Fatal("expected injected failure")
	}
}
