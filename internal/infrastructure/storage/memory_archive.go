package storage

import (
	"context"
	"errors"
	"sync"
)

// MemoryStatementArchive keeps statement files in process memory. It is
// used when object storage is disabled and in tests.
type MemoryStatementArchive struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStatementArchive creates an empty in-memory archive
func NewMemoryStatementArchive() *MemoryStatementArchive {
	return &MemoryStatementArchive{objects: make(map[string][]byte)}
}

// Put stores a copy of data under key
func (m *MemoryStatementArchive) Put(_ context.Context, key string, data []byte, _ string) error {
	if key == "" {
		return errors.New("storage key is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

// Get returns the data stored under key
func (m *MemoryStatementArchive) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return append([]byte(nil), data...), nil
}

// Exists reports whether key is stored
func (m *MemoryStatementArchive) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok, nil
}

// Delete removes key
func (m *MemoryStatementArchive) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Len returns the number of stored objects
func (m *MemoryStatementArchive) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
