package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	expiresAt time.Time // zero means never
	value     []byte
}

// Memory is an in-process cache. MaxItems caps the map size with a
// best-effort eviction of expired entries first, then arbitrary ones.
type Memory struct {
	MaxItems int

	mu    sync.RWMutex
	items map[string]entry
}

func NewMemory(maxItems int) *Memory {
	return &Memory{MaxItems: maxItems, items: make(map[string]entry)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.items, key)
		m.mu.Unlock()
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	m.mu.Lock()
	if m.items == nil {
		m.items = make(map[string]entry)
	}
	m.items[key] = entry{expiresAt: expires, value: value}
	if m.MaxItems > 0 && len(m.items) > m.MaxItems {
		now := time.Now()
		for k, e := range m.items {
			if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
				delete(m.items, k)
			}
			if len(m.items) <= m.MaxItems {
				break
			}
		}
		for k := range m.items {
			if len(m.items) <= m.MaxItems {
				break
			}
			if k != key {
				delete(m.items, k)
			}
		}
	}
	m.mu.Unlock()
	return nil
}
