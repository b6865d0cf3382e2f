// Package cache provides workflow.Cache implementations: an in-memory TTL
// store for single-process use and a Redis adapter for shared deployments.
//
// The engine treats cached values as immutable once stored; neither backend
// copies them defensively.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/tombee/maestro/pkg/workflow"
)

type memoryEntry struct {
	value     any
	expiresAt time.Time
}

// Memory is an in-process TTL cache. Expiry is lazy: entries are dropped
// when a Get observes them past their deadline. Safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	clock   workflow.Clock
}

var _ workflow.Cache = (*Memory)(nil)

// MemoryOption configures a Memory cache.
type MemoryOption func(*Memory)

// WithClock injects the time source used for expiry checks. Tests use this
// to advance time without sleeping.
func WithClock(clock workflow.Clock) MemoryOption {
	return func(m *Memory) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewMemory creates an empty in-memory cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]memoryEntry),
		clock:   workflow.SystemClock{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get implements workflow.Cache. It never errors.
func (m *Memory) Get(_ context.Context, key string) (any, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && m.clock.Now().After(entry.expiresAt) {
		m.mu.Lock()
		// Re-check under the write lock; a Put may have refreshed the key.
		if current, ok := m.entries[key]; ok && current.expiresAt.Equal(entry.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Put implements workflow.Cache. A non-positive ttl stores the entry
// without expiry.
func (m *Memory) Put(_ context.Context, key string, value any, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = m.clock.Now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
	return nil
}

// Delete removes a key. Missing keys are a no-op.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included until a
// Get sweeps them.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Flush drops every entry.
func (m *Memory) Flush() {
	m.mu.Lock()
	m.entries = make(map[string]memoryEntry)
	m.mu.Unlock()
}
