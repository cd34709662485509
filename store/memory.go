package store

import (
	"context"
	"maps"
	"sync"
	"time"
)

type inMemory struct {
	mu      sync.RWMutex
	storage map[string]ToolUsage
}

// NewMemoryStore returns an in-memory usage store.
func NewMemoryStore() UsageStore {
	return &inMemory{}
}

func (m *inMemory) Usage(ctx context.Context) map[string]ToolUsage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.storage == nil {
		return nil
	}
	snapshot := make(map[string]ToolUsage, len(m.storage))
	maps.Copy(snapshot, m.storage)
	return snapshot
}

func (m *inMemory) Record(ctx context.Context, qualifiedName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storage == nil {
		// create on first use
		m.storage = make(map[string]ToolUsage)
	}
	usage := m.storage[qualifiedName]
	usage.Count++
	usage.LastUsed = time.Now()
	m.storage[qualifiedName] = usage
	return nil
}
