package tokenstore

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value   string
	expires time.Time
}

// MemoryBackend keeps values in process memory. It is the default when no Redis is configured.
type MemoryBackend struct {
	lock    sync.RWMutex
	entries map[string]memoryEntry
	nowFunc func() time.Time
}

var _ Backend = (*MemoryBackend)(nil)

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]memoryEntry),
		nowFunc: time.Now,
	}
}

// WithNow replaces the clock used for TTL checks.
func (m *MemoryBackend) WithNow(now func() time.Time) *MemoryBackend {
	m.nowFunc = now
	return m
}

func (m *MemoryBackend) Get(_ context.Context, key string) (string, bool, error) {
	m.lock.RLock()
	e, ok := m.entries[key]
	m.lock.RUnlock()
	if !ok {
		return "", false, nil
	}
	if !e.expires.IsZero() && !m.nowFunc().Before(e.expires) {
		m.lock.Lock()
		if cur, ok := m.entries[key]; ok && cur.expires.Equal(e.expires) {
			delete(m.entries, key)
		}
		m.lock.Unlock()
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *MemoryBackend) SetAll(_ context.Context, values map[string]string, ttl time.Duration) error {
	var expires time.Time
	if ttl > 0 {
		expires = m.nowFunc().Add(ttl)
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	for k, v := range values {
		m.entries[k] = memoryEntry{value: v, expires: expires}
	}
	return nil
}

func (m *MemoryBackend) DeleteAll(_ context.Context, keys ...string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

// Len returns the number of stored keys, expired ones included.
func (m *MemoryBackend) Len() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.entries)
}
