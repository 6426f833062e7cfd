package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// Memory is an LRU cache with per-entry TTL. The least recently used entry
// is evicted once maxEntries is reached.
type Memory struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	lru        *list.List
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

// NewMemory creates an in-memory cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		maxEntries: 10000,
		ttl:        30 * time.Minute,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.items = make(map[string]*list.Element)
	m.lru = list.New()
	return m
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	e := el.Value.(*entry)
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		m.remove(el)
		return nil, false, nil
	}
	m.lru.MoveToFront(el)
	return append([]byte(nil), e.value...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.ttl
	}
	var exp time.Time
	if ttl > 0 {
		exp = m.now().Add(ttl)
	}
	v := append([]byte(nil), value...)

	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[key]; ok {
		e := el.Value.(*entry)
		e.value, e.expiresAt = v, exp
		m.lru.MoveToFront(el)
		return nil
	}
	if m.maxEntries > 0 && m.lru.Len() >= m.maxEntries {
		if back := m.lru.Back(); back != nil {
			m.remove(back)
		}
	}
	m.items[key] = m.lru.PushFront(&entry{key: key, value: v, expiresAt: exp})
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.items[key]; ok {
		m.remove(el)
	}
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]*list.Element)
	m.lru.Init()
	return nil
}

// Len returns the number of entries, including expired ones not yet
// reclaimed.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len()
}

// remove must be called with m.mu held.
func (m *Memory) remove(el *list.Element) {
	m.lru.Remove(el)
	delete(m.items, el.Value.(*entry).key)
}
