package mocks

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/veridian-labs/regcore/internal/core/domain"
	"github.com/veridian-labs/regcore/internal/core/ports/driven"
)

// MockVectorIndex is an in-memory VectorIndex for testing. Query computes
// true cosine similarity, applies filters before top-k and maps similarity
// to relevance the same way the real adapters do.
type MockVectorIndex struct {
	mu      sync.RWMutex
	entries map[string]driven.VectorEntry

	// docStatus lets tests simulate the completed-documents-only filter;
	// unknown documents count as completed.
	docStatus map[string]domain.ProcessingStatus

	// elementCodes maps chunkID to its mapped element codes for the
	// element-scoped filter.
	elementCodes map[string][]string

	failNext bool
}

// NewMockVectorIndex creates a new MockVectorIndex
func NewMockVectorIndex() *MockVectorIndex {
	return &MockVectorIndex{
		entries:      make(map[string]driven.VectorEntry),
		docStatus:    make(map[string]domain.ProcessingStatus),
		elementCodes: make(map[string][]string),
	}
}

func (m *MockVectorIndex) Upsert(ctx context.Context, entry driven.VectorEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return context.DeadlineExceeded
	}
	m.entries[entry.ChunkID] = entry
	return nil
}

func (m *MockVectorIndex) UpsertBatch(ctx context.Context, entries []driven.VectorEntry) error {
	for _, e := range entries {
		if err := m.Upsert(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockVectorIndex) Query(ctx context.Context, vector []float32, model string, k int, filters domain.SearchFilters) ([]driven.VectorMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failNext {
		m.failNext = false
		return nil, context.DeadlineExceeded
	}

	var matches []driven.VectorMatch
	for _, entry := range m.entries {
		if entry.Model != model {
			continue
		}
		if !m.passesFilters(entry, filters) {
			continue
		}
		sim := cosineSimilarity(vector, entry.Vector)
		matches = append(matches, driven.VectorMatch{
			ChunkID:    entry.ChunkID,
			DocumentID: entry.DocumentID,
			Similarity: sim,
			Relevance:  (sim + 1) / 2,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].ChunkID < matches[j].ChunkID
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (m *MockVectorIndex) passesFilters(entry driven.VectorEntry, filters domain.SearchFilters) bool {
	if filters.SchemaType != "" && entry.SchemaType != filters.SchemaType {
		return false
	}
	if filters.DocumentID != "" && entry.DocumentID != filters.DocumentID {
		return false
	}
	if filters.ExcludeDocumentID != "" && entry.DocumentID == filters.ExcludeDocumentID {
		return false
	}
	if filters.Status != "" {
		if status, ok := m.docStatus[entry.DocumentID]; ok && status != filters.Status {
			return false
		}
	}
	if len(filters.ElementCodes) > 0 {
		mapped := m.elementCodes[entry.ChunkID]
		found := false
		for _, want := range filters.ElementCodes {
			for _, have := range mapped {
				if want == have {
					found = true
					break
				}
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (m *MockVectorIndex) GetVector(ctx context.Context, chunkID string) ([]float32, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[chunkID]
	if !ok {
		return nil, "", domain.ErrNotFound
	}
	return entry.Vector, entry.Model, nil
}

func (m *MockVectorIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, entry := range m.entries {
		if entry.DocumentID == documentID {
			delete(m.entries, id)
		}
	}
	return nil
}

func (m *MockVectorIndex) HealthCheck(ctx context.Context) error {
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Helper methods for testing

func (m *MockVectorIndex) SetFailNext(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = fail
}

func (m *MockVectorIndex) SetDocumentStatus(documentID string, status domain.ProcessingStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docStatus[documentID] = status
}

func (m *MockVectorIndex) SetElementCodes(chunkID string, codes []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.elementCodes[chunkID] = codes
}

func (m *MockVectorIndex) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
