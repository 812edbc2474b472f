package cache

import (
	"context"
	"time"
)

// defaultMaxEntries bounds the in-process cache when the config leaves
// max_entries unset.
const defaultMaxEntries = 65536

// MemoryCache is the default backend: a bounded in-process map with FIFO
// eviction. The stream processor is strictly sequential, so no locking is
// needed.
type MemoryCache struct {
	entries map[string]*Entry
	order   []string
	max     int
}

// NewMemoryCache creates an in-process cache holding at most maxEntries
// results.
func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &MemoryCache{
		entries: make(map[string]*Entry),
		max:     maxEntries,
	}
}

// Get looks up a memoized result.
func (m *MemoryCache) Get(_ context.Context, key string) (*Entry, bool, error) {
	e, ok := m.entries[key]
	return e, ok, nil
}

// Set stores a result, evicting the oldest entry once the bound is reached.
func (m *MemoryCache) Set(_ context.Context, key string, entry *Entry) error {
	if _, exists := m.entries[key]; !exists {
		if len(m.order) >= m.max {
			oldest := m.order[0]
			m.order = m.order[1:]
			delete(m.entries, oldest)
		}
		m.order = append(m.order, key)
	}

	entry.CachedAt = time.Now()
	m.entries[key] = entry
	return nil
}

// Close is a no-op for the in-process backend.
func (m *MemoryCache) Close() error { return nil }

// Len reports the number of cached results.
func (m *MemoryCache) Len() int { return len(m.entries) }
