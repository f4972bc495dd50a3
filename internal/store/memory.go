package store

import (
	"context"
	"sort"
	"sync"
)

// Memory is a process-local Store. It is not durable across restarts but
// survives as long as the value is shared, which is what tests need.
type Memory struct {
	mu   sync.RWMutex
	data map[Collection]map[string][]byte
}

// NewMemory returns an empty, uninitialized memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[Collection]map[string][]byte)}
}

// Initialize creates the collection maps that do not exist yet.
func (m *Memory) Initialize(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range Collections {
		if _, ok := m.data[c]; !ok {
			m.data[c] = make(map[string][]byte)
		}
	}
	return nil
}

// Get returns a copy of the stored value.
func (m *Memory) Get(_ context.Context, c Collection, key string) ([]byte, error) {
	if err := check(c, key); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[c][key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// GetAll returns copies of all values ordered by key.
func (m *Memory) GetAll(_ context.Context, c Collection) ([][]byte, error) {
	if err := checkCollection(c); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data[c]))
	for k := range m.data[c] {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		out = append(out, append([]byte(nil), m.data[c][k]...))
	}
	return out, nil
}

// Put stores a copy of value, creating the collection if Initialize was skipped.
func (m *Memory) Put(_ context.Context, c Collection, key string, value []byte) error {
	if err := check(c, key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data[c] == nil {
		m.data[c] = make(map[string][]byte)
	}
	m.data[c][key] = append([]byte(nil), value...)
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
