package storage

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Benny93/ocelgraph-go/internal/ocel"
)

type memoryEntry struct {
	meta StoredLog
	data []byte
}

// MemoryStore is an in-memory implementation of LogStore for testing.
type MemoryStore struct {
	mu          sync.RWMutex
	logs        map[string]memoryEntry
	initialized bool
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: make(map[string]memoryEntry)}
}

// Initialize implements LogStore.
func (m *MemoryStore) Initialize(path string, readOnly bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.logs == nil {
		m.logs = make(map[string]memoryEntry)
	}
	m.initialized = true
	return nil
}

// Close implements LogStore.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = nil
	m.initialized = false
	return nil
}

// Put implements LogStore.
func (m *MemoryStore) Put(ctx context.Context, name string, format ocel.Format, data []byte) (StoredLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return StoredLog{}, ErrNotInitialized
	}

	sum := sha256.Sum256(data)
	meta := StoredLog{
		Name:     name,
		Format:   format,
		Size:     int64(len(data)),
		Checksum: hex.EncodeToString(sum[:]),
		StoredAt: time.Now().UTC(),
	}
	m.logs[name] = memoryEntry{meta: meta, data: slices.Clone(data)}
	return meta, nil
}

// Get implements LogStore.
func (m *MemoryStore) Get(ctx context.Context, name string) (StoredLog, []byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized {
		return StoredLog{}, nil, ErrNotInitialized
	}
	entry, ok := m.logs[name]
	if !ok {
		return StoredLog{}, nil, fmt.Errorf("%w: %q", ErrLogNotFound, name)
	}
	return entry.meta, slices.Clone(entry.data), nil
}

// List implements LogStore.
func (m *MemoryStore) List(ctx context.Context) ([]StoredLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized {
		return nil, ErrNotInitialized
	}
	out := make([]StoredLog, 0, len(m.logs))
	for _, entry := range m.logs {
		out = append(out, entry.meta)
	}
	slices.SortFunc(out, func(a, b StoredLog) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

// Delete implements LogStore.
func (m *MemoryStore) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return ErrNotInitialized
	}
	if _, ok := m.logs[name]; !ok {
		return fmt.Errorf("%w: %q", ErrLogNotFound, name)
	}
	delete(m.logs, name)
	return nil
}
