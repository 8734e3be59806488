package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/veridian-labs/regcore/internal/core/domain"
)

// MockRequirementStore is a mock implementation of RequirementStore for testing
type MockRequirementStore struct {
	mu           sync.RWMutex
	sets         map[string]*domain.RequirementSet
	requirements map[string][]*domain.Requirement
}

// NewMockRequirementStore creates a new MockRequirementStore
func NewMockRequirementStore() *MockRequirementStore {
	return &MockRequirementStore{
		sets:         make(map[string]*domain.RequirementSet),
		requirements: make(map[string][]*domain.Requirement),
	}
}

func (m *MockRequirementStore) SaveSet(ctx context.Context, set *domain.RequirementSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets[set.ID] = set
	return nil
}

func (m *MockRequirementStore) GetSet(ctx context.Context, id string) (*domain.RequirementSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, ok := m.sets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return set, nil
}

func (m *MockRequirementStore) SaveRequirements(ctx context.Context, reqs []*domain.Requirement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range reqs {
		m.requirements[r.SetID] = append(m.requirements[r.SetID], r)
	}
	return nil
}

func (m *MockRequirementStore) GetRequirements(ctx context.Context, setID string) ([]*domain.Requirement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reqs := make([]*domain.Requirement, len(m.requirements[setID]))
	copy(reqs, m.requirements[setID])
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].Position < reqs[j].Position })
	return reqs, nil
}
