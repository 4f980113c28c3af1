package cache

import (
	"sync"
	"time"
)

// memoryTier is the fast in-process tier. Entries carry their own
// expiry and self-expire on read; losing the whole tier is always safe
// because the durable tier is the source of truth.
type memoryTier struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func newMemoryTier() *memoryTier {
	return &memoryTier{entries: make(map[string]Entry)}
}

func (m *memoryTier) get(key string, now time.Time) (*Entry, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.ExpiresAt.After(now) {
		m.mu.Lock()
		// Re-check under the write lock; a concurrent set may have
		// refreshed the entry.
		if cur, ok := m.entries[key]; ok && !cur.ExpiresAt.After(now) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false
	}
	return &e, true
}

func (m *memoryTier) set(e Entry) {
	m.mu.Lock()
	m.entries[e.Key] = e
	m.mu.Unlock()
}

func (m *memoryTier) clear() {
	m.mu.Lock()
	m.entries = make(map[string]Entry)
	m.mu.Unlock()
}
