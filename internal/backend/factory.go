package backend

import (
	"context"
	"fmt"

	"finanzas/internal/dataapi/memory"
	"finanzas/internal/dataapi/rest"
	"finanzas/internal/log"
	"finanzas/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Nop()
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case RESTBackend:
		return f.createRESTBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Backend: repo,
		KV:      repo.KV(),
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createRESTBackend(ctx context.Context, config Config) (*BackendResult, error) {
	client, err := rest.New(rest.Config{
		BaseURL: config.DataAPIURL,
		APIKey:  config.DataAPIKey,
		Token:   config.DataAPIToken,
		Timeout: config.DataAPITimeout,
		Logger:  f.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize data API client: %w", err)
	}

	// Only the kv_store table is used; rows live in the hosted service.
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open offline queue database: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		f.logger.Warn("Data API not reachable at startup, writes will queue until it answers", log.FieldError, err)
	}

	f.logger.Info("Initialized REST backend", "base_url", config.DataAPIURL, "queue_db", config.SQLiteDBPath)

	return &BackendResult{
		Backend: client,
		KV:      repo.KV(),
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}

	store, err := memory.NewFromFiles(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to seed memory backend: %w", err)
	}

	f.logger.Info("Initialized memory backend", "data_directory", dataDir)

	return &BackendResult{
		Backend: store,
		KV:      storage.NewMemoryKV(),
	}, nil
}
