package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gobwas/glob"
)

// MemoryConfig configures the in-process cache
type MemoryConfig struct {
	MaxEntries   int           // Maximum number of entries kept
	DefaultTTL   time.Duration // TTL used when Set is called with ttl <= 0
	CleanupIntvl time.Duration // Interval for the expiry sweep
}

// DefaultMemoryConfig returns default cache configuration
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		MaxEntries:   10000,
		DefaultTTL:   5 * time.Minute,
		CleanupIntvl: time.Minute,
	}
}

type memoryEntry struct {
	key          string
	value        []byte
	accessCount  int
	createdAt    time.Time
	lastAccessed time.Time
	expiresAt    time.Time
}

// Stats contains cache statistics
type Stats struct {
	Hits          int64
	Misses        int64
	Evictions     int64
	Expirations   int64
	Invalidations int64
	Size          int
	MaxEntries    int
}

// MemoryStore implements Store as an LRU cache with TTL
type MemoryStore struct {
	entries  map[string]*list.Element
	lru      *list.List // front = most recently used
	mu       sync.Mutex
	config   MemoryConfig
	stats    Stats
	now      func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory cache and starts its cleanup routine
func NewMemoryStore(config MemoryConfig) *MemoryStore {
	defaults := DefaultMemoryConfig()
	if config.MaxEntries <= 0 {
		config.MaxEntries = defaults.MaxEntries
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = defaults.DefaultTTL
	}
	if config.CleanupIntvl <= 0 {
		config.CleanupIntvl = defaults.CleanupIntvl
	}

	m := &MemoryStore{
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
		config:   config,
		now:      time.Now,
		stopChan: make(chan struct{}),
		stats:    Stats{MaxEntries: config.MaxEntries},
	}
	go m.cleanupRoutine()
	return m
}

// Get retrieves a copy of the cached value
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[key]
	if !ok {
		m.stats.Misses++
		return nil, false, nil
	}

	entry := el.Value.(*memoryEntry)
	now := m.now()
	if now.After(entry.expiresAt) {
		m.remove(el)
		m.stats.Expirations++
		m.stats.Misses++
		return nil, false, nil
	}

	entry.lastAccessed = now
	entry.accessCount++
	m.lru.MoveToFront(el)
	m.stats.Hits++

	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, true, nil
}

// Set adds or replaces an entry
func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if ttl <= 0 {
		ttl = m.config.DefaultTTL
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if el, ok := m.entries[key]; ok {
		entry := el.Value.(*memoryEntry)
		entry.value = stored
		entry.lastAccessed = now
		entry.expiresAt = now.Add(ttl)
		m.lru.MoveToFront(el)
		return nil
	}

	if len(m.entries) >= m.config.MaxEntries {
		m.evictLRU()
	}

	m.entries[key] = m.lru.PushFront(&memoryEntry{
		key:          key,
		value:        stored,
		accessCount:  1,
		createdAt:    now,
		lastAccessed: now,
		expiresAt:    now.Add(ttl),
	})
	m.stats.Size = len(m.entries)
	return nil
}

// DelByPattern removes all keys matching the glob pattern
func (m *MemoryStore) DelByPattern(_ context.Context, pattern string) (int, error) {
	if pattern == "" {
		return 0, ErrEmptyKey
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return 0, fmt.Errorf("invalid cache pattern %q: %w", pattern, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, el := range m.entries {
		if g.Match(key) {
			m.remove(el)
			removed++
		}
	}
	m.stats.Invalidations += int64(removed)
	return removed, nil
}

// remove must be called with lock held
func (m *MemoryStore) remove(el *list.Element) {
	entry := m.lru.Remove(el).(*memoryEntry)
	delete(m.entries, entry.key)
	m.stats.Size = len(m.entries)
}

func (m *MemoryStore) evictLRU() {
	el := m.lru.Back()
	if el == nil {
		return
	}
	m.remove(el)
	m.stats.Evictions++
}

// Contains checks if a live key exists without touching LRU order
func (m *MemoryStore) Contains(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[key]
	if !ok {
		return false
	}
	if m.now().After(el.Value.(*memoryEntry).expiresAt) {
		m.remove(el)
		m.stats.Expirations++
		return false
	}
	return true
}

// Keys returns all live keys
func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	keys := make([]string, 0, len(m.entries))
	for key, el := range m.entries {
		if now.After(el.Value.(*memoryEntry).expiresAt) {
			m.remove(el)
			m.stats.Expirations++
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// Stats returns cache statistics
func (m *MemoryStore) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// HitRate returns the cache hit rate as a percentage
func (m *MemoryStore) HitRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := m.stats.Hits + m.stats.Misses
	if total == 0 {
		return 0
	}
	return float64(m.stats.Hits) / float64(total) * 100.0
}

func (m *MemoryStore) cleanupRoutine() {
	ticker := time.NewTicker(m.config.CleanupIntvl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.stopChan:
			return
		}
	}
}

func (m *MemoryStore) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, el := range m.entries {
		if now.After(el.Value.(*memoryEntry).expiresAt) {
			m.remove(el)
			m.stats.Expirations++
		}
	}
}

// Close stops the cleanup routine
func (m *MemoryStore) Close() error {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
	return nil
}
