package typedstore

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Memory implements Driver with thread-safe in-process storage.
// Its contents live as long as the value, like a session-scoped store.
type Memory struct {
	mu    sync.RWMutex
	data  map[string]string
	used  int
	quota int
}

// MemoryOption customizes a Memory driver.
type MemoryOption func(*Memory)

// WithQuota caps the total size of keys plus values in bytes.
// Writes that would exceed it fail with ErrQuotaExceeded. Zero means unlimited.
func WithQuota(bytes int) MemoryOption {
	return func(m *Memory) {
		m.quota = bytes
	}
}

// NewMemory creates an in-memory Driver.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{data: make(map[string]string)}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	used := m.used + len(value)
	if old, ok := m.data[key]; ok {
		used -= len(old)
	} else {
		used += len(key)
	}
	if m.quota > 0 && used > m.quota {
		return ErrQuotaExceeded
	}
	m.data[key] = value
	m.used = used
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.data[key]; ok {
		m.used -= len(key) + len(old)
		delete(m.data, key)
	}
	return nil
}

// Keys returns all keys matching the prefix and pattern, sorted.
func (m *Memory) Keys(ctx context.Context, prefix, pattern string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []string
	for key := range m.data {
		ok, err := MatchKey(key, prefix, pattern)
		if err != nil {
			return nil, err
		}
		if ok {
			result = append(result, key)
		}
	}
	sort.Strings(result)
	return result, nil
}

// Len returns the number of stored keys across all namespaces.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Size returns the bytes counted against the quota.
func (m *Memory) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.used
}

// MatchKey reports whether a full key lies under "prefix:" and its remainder
// matches the glob pattern. An empty pattern or "*" matches everything.
// Drivers use it to implement Keys consistently.
func MatchKey(key, prefix, pattern string) (bool, error) {
	if !strings.HasPrefix(key, prefix+":") {
		return false, nil
	}
	if pattern == "" || pattern == "*" {
		return true, nil
	}
	matched, err := filepath.Match(pattern, key[len(prefix)+1:])
	if err != nil {
		return false, ErrInvalidPattern
	}
	return matched, nil
}
