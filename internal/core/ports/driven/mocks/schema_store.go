package mocks

import (
	"context"
	"sync"

	"github.com/veridian-labs/regcore/internal/core/domain"
)

// MockSchemaStore is a mock implementation of SchemaStore for testing
type MockSchemaStore struct {
	mu       sync.RWMutex
	elements map[string]*domain.SchemaElement
	mappings []*domain.SchemaMapping

	// chunkCounts overrides CountChunksForElement when set; when nil the
	// count is derived from saved chunk mappings.
	chunkCounts map[string]int
}

// NewMockSchemaStore creates a new MockSchemaStore
func NewMockSchemaStore() *MockSchemaStore {
	return &MockSchemaStore{
		elements: make(map[string]*domain.SchemaElement),
	}
}

func (m *MockSchemaStore) SeedElements(ctx context.Context, elements []*domain.SchemaElement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, el := range elements {
		if _, ok := m.elements[el.Code]; !ok {
			m.elements[el.Code] = el
		}
	}
	return nil
}

func (m *MockSchemaStore) GetElement(ctx context.Context, code string) (*domain.SchemaElement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	el, ok := m.elements[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return el, nil
}

func (m *MockSchemaStore) ListElements(ctx context.Context, schemaType domain.SchemaType) ([]*domain.SchemaElement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.SchemaElement
	for _, el := range m.elements {
		if el.SchemaType == schemaType {
			result = append(result, el)
		}
	}
	return result, nil
}

func (m *MockSchemaStore) SaveMapping(ctx context.Context, mapping *domain.SchemaMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mappings = append(m.mappings, mapping)
	return nil
}

func (m *MockSchemaStore) GetMappings(ctx context.Context, targetType domain.MappingTarget, targetID string) ([]*domain.SchemaMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.SchemaMapping
	for _, mp := range m.mappings {
		if mp.TargetType == targetType && mp.TargetID == targetID && !mp.Superseded {
			result = append(result, mp)
		}
	}
	return result, nil
}

func (m *MockSchemaStore) SupersedeAutomatic(ctx context.Context, targetType domain.MappingTarget, targetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mp := range m.mappings {
		if mp.TargetType == targetType && mp.TargetID == targetID && mp.MappingType == domain.MappingTypeAutomatic {
			mp.Superseded = true
		}
	}
	return nil
}

func (m *MockSchemaStore) CountChunksForElement(ctx context.Context, elementCode string, schemaType domain.SchemaType, minConfidence float64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.chunkCounts != nil {
		return m.chunkCounts[elementCode], nil
	}
	count := 0
	for _, mp := range m.mappings {
		if mp.TargetType == domain.MappingTargetChunk && mp.ElementCode == elementCode &&
			!mp.Superseded && mp.Confidence >= minConfidence {
			count++
		}
	}
	return count, nil
}

// Helper methods for testing

// SetChunkCount fixes the count returned for an element code, bypassing
// the mapping-derived count.
func (m *MockSchemaStore) SetChunkCount(elementCode string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chunkCounts == nil {
		m.chunkCounts = make(map[string]int)
	}
	m.chunkCounts[elementCode] = count
}

// AllMappings returns every saved mapping, superseded included.
func (m *MockSchemaStore) AllMappings() []*domain.SchemaMapping {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.SchemaMapping, len(m.mappings))
	copy(result, m.mappings)
	return result
}
