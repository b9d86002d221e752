package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// Memory is an in-process Store. It backs component tests and serves as
// a degraded single-process fallback when no Redis endpoint is
// configured. Conditional hash writes are serialized per key via
// xsync.Map.Compute, giving the same acquire/release atomicity as the
// Redis implementation.
type Memory struct {
	entries *xsync.Map[string, *memEntry]

	subMu sync.RWMutex
	subs  []*memSub

	// now is a test hook for TTL handling.
	now func() time.Time
}

type memEntry struct {
	mu        sync.Mutex
	value     string
	hash      map[string]string // nil for plain string entries
	expiresAt time.Time         // zero means no expiry
}

type memSub struct {
	pattern string
	handler Handler
	closed  bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries: xsync.NewMap[string, *memEntry](),
		now:     time.Now,
	}
}

func (m *Memory) expired(e *memEntry) bool {
	return !e.expiresAt.IsZero() && m.now().After(e.expiresAt)
}

// live loads the entry for key, dropping it if its TTL has passed.
func (m *Memory) live(key string) (*memEntry, bool) {
	e, ok := m.entries.Load(key)
	if !ok {
		return nil, false
	}
	if m.expired(e) {
		m.entries.Delete(key)
		return nil, false
	}
	return e, true
}

func (m *Memory) Get(_ context.Context, key string) (string, bool) {
	e, ok := m.live(key)
	if !ok {
		return "", false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.hash != nil {
		return "", false
	}
	return e.value, true
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) bool {
	e := &memEntry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.entries.Store(key, e)
	return true
}

func (m *Memory) Del(_ context.Context, key string) bool {
	m.entries.Delete(key)
	return true
}

func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) bool {
	e, ok := m.live(key)
	if !ok {
		return false
	}
	e.mu.Lock()
	e.expiresAt = m.now().Add(ttl)
	e.mu.Unlock()
	return true
}

func (m *Memory) HGet(_ context.Context, key, field string) (string, bool) {
	e, ok := m.live(key)
	if !ok {
		return "", false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.hash == nil {
		return "", false
	}
	v, ok := e.hash[field]
	return v, ok
}

func (m *Memory) HSet(_ context.Context, key, field, value string) bool {
	m.withHash(key, func(h map[string]string) {
		h[field] = value
	})
	return true
}

func (m *Memory) HSetNX(_ context.Context, key, field, value string) bool {
	set := false
	m.withHash(key, func(h map[string]string) {
		if _, exists := h[field]; !exists {
			h[field] = value
			set = true
		}
	})
	return set
}

func (m *Memory) HGetAll(_ context.Context, key string) map[string]string {
	e, ok := m.live(key)
	if !ok {
		return map[string]string{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]string, len(e.hash))
	for k, v := range e.hash {
		out[k] = v
	}
	return out
}

func (m *Memory) HDel(_ context.Context, key, field string) bool {
	deleted := false
	if e, ok := m.live(key); ok {
		e.mu.Lock()
		if e.hash != nil {
			if _, exists := e.hash[field]; exists {
				delete(e.hash, field)
				deleted = true
			}
		}
		e.mu.Unlock()
	}
	return deleted
}

func (m *Memory) HDelIfEquals(_ context.Context, key, field, want string) bool {
	deleted := false
	if e, ok := m.live(key); ok {
		e.mu.Lock()
		if e.hash != nil && e.hash[field] == want {
			delete(e.hash, field)
			deleted = true
		}
		e.mu.Unlock()
	}
	return deleted
}

func (m *Memory) HExists(_ context.Context, key, field string) bool {
	e, ok := m.live(key)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.hash == nil {
		return false
	}
	_, exists := e.hash[field]
	return exists
}

func (m *Memory) Scan(_ context.Context, pattern string) []string {
	var keys []string
	m.entries.Range(func(key string, e *memEntry) bool {
		if !m.expired(e) && globMatch(pattern, key) {
			keys = append(keys, key)
		}
		return true
	})
	return keys
}

func (m *Memory) Publish(_ context.Context, channel, payload string) bool {
	m.subMu.RLock()
	defer m.subMu.RUnlock()
	for _, s := range m.subs {
		if !s.closed && globMatch(s.pattern, channel) {
			s.handler(channel, payload)
		}
	}
	return true
}

func (m *Memory) Subscribe(_ context.Context, pattern string, h Handler) (func(), bool) {
	s := &memSub{pattern: pattern, handler: h}
	m.subMu.Lock()
	m.subs = append(m.subs, s)
	m.subMu.Unlock()

	cancel := func() {
		m.subMu.Lock()
		s.closed = true
		m.subMu.Unlock()
	}
	return cancel, true
}

func (m *Memory) Close() error { return nil }

// withHash runs fn against the hash at key under the outer map's per-key
// compute lock, creating the hash entry when absent. This is what makes
// HSetNX/HDelIfEquals race-free against each other.
func (m *Memory) withHash(key string, fn func(h map[string]string)) {
	m.entries.Compute(key, func(e *memEntry, loaded bool) (*memEntry, xsync.ComputeOp) {
		if !loaded || m.expired(e) {
			e = &memEntry{hash: make(map[string]string)}
		}
		e.mu.Lock()
		if e.hash == nil {
			e.hash = make(map[string]string)
			e.value = ""
		}
		fn(e.hash)
		e.mu.Unlock()
		return e, xsync.UpdateOp
	})
}

// globMatch matches s against a pattern containing '*' wildcards.
func globMatch(pattern, s string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == s
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	for i := 1; i < len(parts)-1; i++ {
		idx := strings.Index(s, parts[i])
		if idx < 0 {
			return false
		}
		s = s[idx+len(parts[i]):]
	}
	return strings.HasSuffix(s, parts[len(parts)-1])
}
