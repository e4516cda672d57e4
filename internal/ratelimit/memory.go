package ratelimit

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	count     int64
	resetTime time.Time
}

// MemoryStore keeps per-client counters in process memory. Entries are reset
// lazily on next access and never swept, so the map grows with the number of
// distinct clients seen over the process lifetime.
//
// With multiple API instances each MemoryStore enforces its own independent
// limit; the effective global bound becomes maxRequests times the instance
// count. Deployments needing a strict global bound use RedisStore instead.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewMemoryStore creates an empty in-process counter store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*entry),
	}
}

// Incr counts one request under the store lock so concurrent requests cannot
// lose updates and slip past the limit.
func (m *MemoryStore) Incr(_ context.Context, clientKey string, now time.Time, window time.Duration) (int64, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[clientKey]
	if !ok || now.After(e.resetTime) {
		e = &entry{count: 1, resetTime: now.Add(window)}
		m.entries[clientKey] = e
		return e.count, e.resetTime, nil
	}

	e.count++
	return e.count, e.resetTime, nil
}

// Len reports the number of tracked clients
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
