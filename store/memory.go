package store

import (
	"context"
	"fmt"
	"sync"

	"mnemora/types"
)

// MemoryStore is a process-local store, used for tests and throwaway runs.
type MemoryStore struct {
	mu     sync.RWMutex
	order  []string
	chunks map[string]types.Chunk
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chunks: make(map[string]types.Chunk)}
}

func (m *MemoryStore) Add(_ context.Context, chunks []types.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		if _, ok := m.chunks[c.ID]; !ok {
			m.order = append(m.order, c.ID)
		}
		c.Embedding = append([]float32(nil), c.Embedding...)
		m.chunks[c.ID] = c
	}
	return nil
}

func (m *MemoryStore) Search(_ context.Context, vector []float32, limit int) ([]types.Chunk, error) {
	queryNorm := vectorNorm(vector)
	if len(vector) == 0 || queryNorm == 0 {
		return nil, fmt.Errorf("vector query is empty")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	hits := make([]types.Chunk, 0, len(m.chunks))
	for _, id := range m.order {
		c := m.chunks[id]
		c.Distance = cosineDistance(vector, queryNorm, c.Embedding)
		c.Embedding = nil
		hits = append(hits, c)
	}
	return nearest(hits, limit), nil
}

func (m *MemoryStore) DeleteByFolder(_ context.Context, folder string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.order[:0]
	removed := 0
	for _, id := range m.order {
		if m.chunks[id].Meta.FolderPath == folder {
			delete(m.chunks, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	return removed, nil
}

func (m *MemoryStore) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks), nil
}

// IDs returns the stored chunk ids in insertion order.
func (m *MemoryStore) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

func (m *MemoryStore) Close() error {
	return nil
}
