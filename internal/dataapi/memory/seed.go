package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"finanzas/internal/core"
)

const (
	seedTransactionsFile = "seed_transactions.json"
	seedBudgetsFile      = "seed_budgets.json"
)

// NewFromFiles returns a store seeded from seed_transactions.json and
// seed_budgets.json under base. Missing files are skipped; malformed ones
// are an error.
func NewFromFiles(base string) (*Store, error) {
	var (
		txs     []core.Transaction
		budgets []core.Budget
	)
	if err := readSeed(filepath.Join(base, seedTransactionsFile), &txs); err != nil {
		return nil, err
	}
	if err := readSeed(filepath.Join(base, seedBudgetsFile), &budgets); err != nil {
		return nil, err
	}
	s := New()
	s.Seed(txs, budgets)
	return s, nil
}

func readSeed(path string, out any) error {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
