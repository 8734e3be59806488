package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/veridian-labs/regcore/internal/core/domain"
)

// MockChunkStore is a mock implementation of ChunkStore for testing
type MockChunkStore struct {
	mu     sync.RWMutex
	chunks map[string]*domain.Chunk
}

// NewMockChunkStore creates a new MockChunkStore
func NewMockChunkStore() *MockChunkStore {
	return &MockChunkStore{
		chunks: make(map[string]*domain.Chunk),
	}
}

func (m *MockChunkStore) SaveBatch(ctx context.Context, chunks []*domain.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		m.chunks[c.ID] = c
	}
	return nil
}

func (m *MockChunkStore) Get(ctx context.Context, id string) (*domain.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chunks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

// GetMany returns chunks in the requested ID order, skipping missing IDs.
func (m *MockChunkStore) GetMany(ctx context.Context, ids []string) ([]*domain.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := m.chunks[id]; ok {
			result = append(result, c)
		}
	}
	return result, nil
}

func (m *MockChunkStore) GetByDocument(ctx context.Context, documentID string) ([]*domain.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Chunk
	for _, c := range m.chunks {
		if c.DocumentID == documentID {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Position < result[j].Position })
	return result, nil
}

func (m *MockChunkStore) DeleteByDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.chunks {
		if c.DocumentID == documentID {
			delete(m.chunks, id)
		}
	}
	return nil
}

// Helper methods for testing

func (m *MockChunkStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}
