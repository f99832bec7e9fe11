package prefs

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is a process-local Store used by tests and dry runs.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
	closed bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, path string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	val, ok := m.values[path]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), val...), true, nil
}

func (m *MemoryStore) Set(_ context.Context, path string, value []byte) error {
	if err := validatePath(path); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.values[path] = append([]byte{}, value...)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.values, path)
	return nil
}

func (m *MemoryStore) List(_ context.Context, prefix string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var entries []Entry
	for path, val := range m.values {
		if strings.HasPrefix(path, prefix) {
			entries = append(entries, Entry{Path: path, Value: append([]byte(nil), val...)})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func (m *MemoryStore) DeletePrefix(_ context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	var removed int64
	for path := range m.values {
		if strings.HasPrefix(path, prefix) {
			delete(m.values, path)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
