package kvstore

import (
	"context"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is a simple in-memory Store for testing. It honors TTLs
// against an injectable clock and can be toggled to fail every operation,
// for exercising backend-unavailable paths.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]memEntry

	// Now supplies the clock for TTL checks. Defaults to time.Now.
	Now func() time.Time

	// Fail makes every operation return ErrBackendUnavailable.
	Fail bool

	// InfoData is returned verbatim from Info, keyed by section.
	InfoData map[string]map[string]string
}

type memEntry struct {
	value     string
	expiresAt time.Time
	hasTTL    bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]memEntry),
		Now:  time.Now,
	}
}

// live returns the entry at key if present and unexpired, evicting it
// lazily otherwise. Callers must hold mu.
func (m *MemoryStore) live(key string) (memEntry, bool) {
	e, ok := m.data[key]
	if !ok {
		return memEntry{}, false
	}
	if e.hasTTL && !m.Now().Before(e.expiresAt) {
		delete(m.data, key)
		return memEntry{}, false
	}
	return e, true
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return "", false, ErrBackendUnavailable
	}
	e, ok := m.live(key)
	if !ok {
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *MemoryStore) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return ErrBackendUnavailable
	}
	e := memEntry{value: value}
	if ttl > 0 {
		e.hasTTL = true
		e.expiresAt = m.Now().Add(ttl)
	}
	m.data[key] = e
	return nil
}

// SetWithoutTTL stores a value with no expiry, for exercising the purge
// sweeps that reclaim TTL-less keys.
func (m *MemoryStore) SetWithoutTTL(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = memEntry{value: value}
}

func (m *MemoryStore) Delete(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return false, ErrBackendUnavailable
	}
	_, ok := m.live(key)
	delete(m.data, key)
	return ok, nil
}

func (m *MemoryStore) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return 0, ErrBackendUnavailable
	}
	e, ok := m.live(key)
	var n int64
	if ok {
		parsed, err := strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, ErrBackendUnavailable
		}
		n = parsed
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	m.data[key] = e
	return n, nil
}

func (m *MemoryStore) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return 0, false, ErrBackendUnavailable
	}
	e, ok := m.live(key)
	if !ok || !e.hasTTL {
		return 0, false, nil
	}
	return e.expiresAt.Sub(m.Now()), true, nil
}

func (m *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return false, ErrBackendUnavailable
	}
	e, ok := m.live(key)
	if !ok {
		return false, nil
	}
	e.hasTTL = true
	e.expiresAt = m.Now().Add(ttl)
	m.data[key] = e
	return true, nil
}

func (m *MemoryStore) Scan(ctx context.Context, pattern string, fn func(key string) error) error {
	m.mu.Lock()
	if m.Fail {
		m.mu.Unlock()
		return ErrBackendUnavailable
	}
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if _, ok := m.live(k); !ok {
			continue
		}
		if matched, _ := path.Match(pattern, k); matched {
			keys = append(keys, k)
		}
	}
	m.mu.Unlock()

	sort.Strings(keys)
	for _, k := range keys {
		if err := fn(k); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) Info(ctx context.Context, section string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return nil, ErrBackendUnavailable
	}
	if fields, ok := m.InfoData[section]; ok {
		return fields, nil
	}
	return map[string]string{}, nil
}

// Len reports the number of live keys.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.data {
		if _, ok := m.live(k); ok {
			n++
		}
	}
	return n
}
