package cache

import (
	"container/list"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"finanzas/internal/log"
)

const (
	DefaultMaxEntries     = 100
	DefaultMaxMemoryBytes = 50 * 1024 * 1024
	DefaultTTL            = 5 * time.Minute

	// fallbackEntrySize is charged for values that cannot be JSON encoded.
	fallbackEntrySize = 1024
)

// Options configures a Store. Zero values fall back to the defaults above.
type Options struct {
	MaxEntries     int
	MaxMemoryBytes int64
	DefaultTTL     time.Duration
	Now            func() time.Time
	Logger         *log.Logger
}

// Store is an in-memory key/value cache with per-entry TTL and LRU eviction
// bounded by entry count and estimated memory. Cached values are shared with
// callers and must be treated as read-only.
type Store struct {
	mu    sync.Mutex
	items map[string]*list.Element
	lru   *list.List // front is most recently used

	maxEntries int
	maxMemory  int64
	defaultTTL time.Duration
	now        func() time.Time
	logger     *log.Logger

	memory    int64
	hits      int64
	misses    int64
	evictions int64
}

type entry struct {
	key            string
	data           any
	storedAt       time.Time
	ttl            time.Duration
	accessCount    int
	lastAccessedAt time.Time
	size           int64
}

// EntryInfo describes a cached entry without its value.
type EntryInfo struct {
	Key            string        `json:"key"`
	StoredAt       time.Time     `json:"stored_at"`
	TTL            time.Duration `json:"ttl"`
	AccessCount    int           `json:"access_count"`
	LastAccessedAt time.Time     `json:"last_accessed_at"`
	Size           int64         `json:"size"`
}

// Stats is a point-in-time snapshot of store counters.
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Evictions   int64 `json:"evictions"`
	Size        int   `json:"size"`
	MemoryUsage int64 `json:"memory_usage"`
}

// HitRate returns hits/(hits+misses), or 0 when the store was never read.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// MemoryHuman returns the memory usage formatted for logs, e.g. "1.2 MB".
func (s Stats) MemoryHuman() string {
	return humanize.Bytes(uint64(s.MemoryUsage))
}

// NewStore creates a new cache store
func NewStore(opts Options) *Store {
	s := &Store{
		items:      make(map[string]*list.Element),
		lru:        list.New(),
		maxEntries: opts.MaxEntries,
		maxMemory:  opts.MaxMemoryBytes,
		defaultTTL: opts.DefaultTTL,
		now:        opts.Now,
		logger:     opts.Logger,
	}
	if s.maxEntries <= 0 {
		s.maxEntries = DefaultMaxEntries
	}
	if s.maxMemory <= 0 {
		s.maxMemory = DefaultMaxMemoryBytes
	}
	if s.defaultTTL <= 0 {
		s.defaultTTL = DefaultTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = log.Nop()
	}
	s.logger = s.logger.WithComponent(log.ComponentCache)
	return s
}

// Get returns the value stored under key. Expired entries are removed and
// reported as a miss.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		s.misses++
		return nil, false
	}
	e := elem.Value.(*entry)
	now := s.now()
	if e.expired(now) {
		s.removeElement(elem)
		s.misses++
		return nil, false
	}

	s.hits++
	e.accessCount++
	e.lastAccessedAt = now
	s.lru.MoveToFront(elem)
	return e.data, true
}

// Set stores data under key. A non-positive ttl uses the store default.
func (s *Store) Set(key string, data any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	size := estimateSize(key, data)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if elem, ok := s.items[key]; ok {
		e := elem.Value.(*entry)
		s.memory += size - e.size
		e.data = data
		e.storedAt = now
		e.ttl = ttl
		e.lastAccessedAt = now
		e.size = size
		s.lru.MoveToFront(elem)
	} else {
		if s.lru.Len() >= s.maxEntries {
			s.evictOldest()
		}
		s.items[key] = s.lru.PushFront(&entry{
			key:            key,
			data:           data,
			storedAt:       now,
			ttl:            ttl,
			lastAccessedAt: now,
			size:           size,
		})
		s.memory += size
	}

	if s.memory > s.maxMemory {
		s.logger.Warn("Cache memory ceiling exceeded",
			"memory", humanize.Bytes(uint64(s.memory)),
			"ceiling", humanize.Bytes(uint64(s.maxMemory)))
	}
	for s.memory > s.maxMemory && s.lru.Len() > 1 {
		s.evictOldest()
	}
}

// Has reports whether key holds a live entry. Expired entries are removed;
// counters and recency are left untouched.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		return false
	}
	if elem.Value.(*entry).expired(s.now()) {
		s.removeElement(elem)
		return false
	}
	return true
}

// Delete removes key and reports whether it was present.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		return false
	}
	s.removeElement(elem)
	return true
}

// ClearByPattern removes every key containing pattern and returns how many were removed.
func (s *Store) ClearByPattern(pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, elem := range s.items {
		if strings.Contains(key, pattern) {
			s.removeElement(elem)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("Cache pattern invalidated", log.FieldPattern, pattern, "removed", removed)
	}
	return removed
}

// Clear drops every entry. Counters are kept.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*list.Element)
	s.lru.Init()
	s.memory = 0
}

// Keys returns the stored keys, most recently used first.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, s.lru.Len())
	for elem := s.lru.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*entry).key)
	}
	return keys
}

// Inspect returns entry metadata without counting a hit or changing recency.
func (s *Store) Inspect(key string) (EntryInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		return EntryInfo{}, false
	}
	e := elem.Value.(*entry)
	return EntryInfo{
		Key:            e.key,
		StoredAt:       e.storedAt,
		TTL:            e.ttl,
		AccessCount:    e.accessCount,
		LastAccessedAt: e.lastAccessedAt,
		Size:           e.size,
	}, true
}

// Entries returns metadata for all entries sorted by key.
func (s *Store) Entries() []EntryInfo {
	keys := s.Keys()
	sort.Strings(keys)
	out := make([]EntryInfo, 0, len(keys))
	for _, k := range keys {
		if info, ok := s.Inspect(k); ok {
			out = append(out, info)
		}
	}
	return out
}

// CleanExpired removes all expired entries and returns count of removed items
func (s *Store) CleanExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var toRemove []*list.Element
	for elem := s.lru.Front(); elem != nil; elem = elem.Next() {
		if elem.Value.(*entry).expired(now) {
			toRemove = append(toRemove, elem)
		}
	}
	for _, elem := range toRemove {
		s.removeElement(elem)
	}
	return len(toRemove)
}

// Stats returns a snapshot of the store counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Hits:        s.hits,
		Misses:      s.misses,
		Evictions:   s.evictions,
		Size:        s.lru.Len(),
		MemoryUsage: s.memory,
	}
}

// Size returns the current number of items in the cache
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

func (s *Store) evictOldest() {
	oldest := s.lru.Back()
	if oldest == nil {
		return
	}
	s.removeElement(oldest)
	s.evictions++
}

func (s *Store) removeElement(elem *list.Element) {
	e := elem.Value.(*entry)
	delete(s.items, e.key)
	s.lru.Remove(elem)
	s.memory -= e.size
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.storedAt) > e.ttl
}

// estimateSize approximates the footprint of an entry by its JSON encoding.
// It is a heuristic bound, not exact accounting.
func estimateSize(key string, data any) int64 {
	b, err := json.Marshal(data)
	if err != nil {
		return fallbackEntrySize
	}
	return int64(len(key) + len(b))
}
