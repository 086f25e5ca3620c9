package backend

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"finanzas/internal/config"
	"finanzas/internal/core"
	"finanzas/internal/dataapi"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"memory", Config{Type: MemoryBackend}, ""},
		{"unknown type", Config{Type: "sheets"}, "invalid backend type"},
		{"sqlite without path", Config{Type: SQLiteBackend}, "SQLite database path"},
		{"rest without url", Config{Type: RESTBackend, DataAPIKey: "k", SQLiteDBPath: "q.db"}, "data API URL"},
		{"rest without key", Config{Type: RESTBackend, DataAPIURL: "https://x", SQLiteDBPath: "q.db"}, "data API key"},
		{"rest without queue db", Config{Type: RESTBackend, DataAPIURL: "https://x", DataAPIKey: "k"}, "offline queue"},
		{"rest", Config{Type: RESTBackend, DataAPIURL: "https://x", DataAPIKey: "k", SQLiteDBPath: "q.db"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "postgres"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
	cfg, err := FromAppConfig(&config.Config{
		DataBackend:    "rest",
		DataAPIURL:     "https://api.example.com",
		DataAPIKey:     "anon",
		DataAPITimeout: 3 * time.Second,
		SQLiteDBPath:   "q.db",
	})
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if cfg.Type != RESTBackend || cfg.DataAPIKey != "anon" || cfg.DataAPITimeout != 3*time.Second {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestCreateMemoryBackend(t *testing.T) {
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: MemoryBackend, DataDirectory: t.TempDir()})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	defer res.Close()
	if res.Backend == nil || res.KV == nil {
		t.Fatal("expected backend and kv")
	}
	if err := res.Backend.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestCreateSQLiteBackend(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "finanzas.db")
	res, err := NewFactory(nil).CreateBackend(ctx, Config{Type: SQLiteBackend, SQLiteDBPath: path})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	defer res.Close()

	tx := core.Transaction{ID: "t1", UserID: "u1", Type: core.Expense, Amount: core.Money{Cents: 500}, Date: time.Now().UTC()}
	if _, err := res.Backend.InsertTransaction(ctx, tx); err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}
	got, err := res.Backend.ListTransactions(ctx, dataapi.TransactionFilter{UserID: "u1"})
	if err != nil || len(got) != 1 {
		t.Fatalf("ListTransactions: %+v %v", got, err)
	}

	if err := res.KV.Save(ctx, "queue", []byte("[]")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if b, err := res.KV.Load(ctx, "queue"); err != nil || string(b) != "[]" {
		t.Fatalf("Load: %q %v", b, err)
	}
}

func TestCreateBackendRejectsInvalidConfig(t *testing.T) {
	if _, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: SQLiteBackend}); err == nil {
		t.Fatal("expected validation error")
	}
}
