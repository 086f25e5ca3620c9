package backend

import (
	"context"
	"time"

	"finanzas/internal/dataapi"
	"finanzas/internal/offline"
)

// CleanupFunc releases the resources held by a backend.
type CleanupFunc func() error

// BackendResult contains the data API, the durable store for the offline
// queue and an optional cleanup function.
type BackendResult struct {
	Backend dataapi.Backend
	KV      offline.KV
	Cleanup CleanupFunc
}

// Close runs Cleanup when one is set.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite database; the rest backend keeps its offline queue here too
	SQLiteDBPath string

	// Hosted data API
	DataAPIURL     string
	DataAPIKey     string
	DataAPIToken   string
	DataAPITimeout time.Duration

	// Memory backend seed files
	DataDirectory string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
	RESTBackend   BackendType = "rest"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, RESTBackend:
		return true
	default:
		return false
	}
}
