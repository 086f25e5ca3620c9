package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"finanzas/internal/log"
)

// Preset TTLs for data with different volatility.
const (
	TTLStatic    = 24 * time.Hour
	TTLSession   = 30 * time.Minute
	TTLTemporary = time.Minute
)

// Invalidator removes cached entries by key substring.
type Invalidator interface {
	ClearByPattern(pattern string) int
}

// GetOrSet returns the value cached under key, or runs produce, caches its
// result and returns it. Producer errors are returned and nothing is cached.
// Concurrent misses on the same key may each run produce.
func GetOrSet[T any](ctx context.Context, s *Store, key string, ttl time.Duration, produce func(ctx context.Context) (T, error)) (T, error) {
	if v, ok := s.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}
	val, err := produce(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	s.Set(key, val, ttl)
	return val, nil
}

// Prewarm fetches keys concurrently and stores the results. Failed keys are
// logged and skipped. It returns how many keys were cached.
func Prewarm(ctx context.Context, s *Store, keys []string, ttl time.Duration, fetch func(ctx context.Context, key string) (any, error)) int {
	var (
		mu     sync.Mutex
		warmed int
		g      errgroup.Group
	)
	g.SetLimit(4)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			v, err := fetch(ctx, key)
			if err != nil {
				s.logger.WarnContext(ctx, "Prewarm fetch failed",
					log.FieldCacheKey, key, log.FieldOperation, log.OpPrewarm, log.FieldError, err)
				return nil
			}
			s.Set(key, v, ttl)
			mu.Lock()
			warmed++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return warmed
}

// Manager handles cache lifecycle and cleanup
type Manager struct {
	mu          sync.Mutex
	caches      []Cleaner
	logger      *log.Logger
	started     bool
	stopOnce    sync.Once
	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

// Cleaner interface for caches that support cleanup
type Cleaner interface {
	CleanExpired() int
}

// NewManager creates a new cache manager
func NewManager(logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Nop()
	}
	return &Manager{
		logger:      logger.WithComponent(log.ComponentCache),
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

// Register adds a cache to the manager for cleanup
func (m *Manager) Register(cache Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches = append(m.caches, cache)
}

// StartCleanup begins periodic cleanup of all registered caches.
// Calling it more than once has no effect.
func (m *Manager) StartCleanup(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	go m.cleanup(interval)
}

// Sweep runs one cleanup pass over every registered cache.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	caches := append([]Cleaner(nil), m.caches...)
	m.mu.Unlock()

	total := 0
	for _, c := range caches {
		total += c.CleanExpired()
	}
	if total > 0 {
		m.logger.Debug("Cache sweep completed", log.FieldOperation, log.OpSweep, "removed", total)
	}
	return total
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-m.stopCleanup:
			return
		}
	}
}

// Stop gracefully stops the cleanup routine
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCleanup)
		m.mu.Lock()
		started := m.started
		m.mu.Unlock()
		if started {
			<-m.cleanupDone
		}
	})
}
