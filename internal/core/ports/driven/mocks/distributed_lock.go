package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/veridian-labs/regcore/internal/core/domain"
)

// MockDistributedLock is an in-memory DistributedLock for testing
type MockDistributedLock struct {
	mu    sync.Mutex
	held  map[string]time.Time
	denyAll bool
}

// NewMockDistributedLock creates a new MockDistributedLock
func NewMockDistributedLock() *MockDistributedLock {
	return &MockDistributedLock{
		held: make(map[string]time.Time),
	}
}

func (m *MockDistributedLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.denyAll {
		return false, nil
	}
	if expiry, ok := m.held[name]; ok && time.Now().Before(expiry) {
		return false, nil
	}
	m.held[name] = time.Now().Add(ttl)
	return true, nil
}

func (m *MockDistributedLock) Release(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, name)
	return nil
}

func (m *MockDistributedLock) Extend(ctx context.Context, name string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[name]; !ok {
		return domain.ErrNotFound
	}
	m.held[name] = time.Now().Add(ttl)
	return nil
}

func (m *MockDistributedLock) Ping(ctx context.Context) error {
	return nil
}

// Helper methods for testing

// SetDenyAll makes every acquire attempt report the lock as held elsewhere.
func (m *MockDistributedLock) SetDenyAll(deny bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.denyAll = deny
}

func (m *MockDistributedLock) IsHeld(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	expiry, ok := m.held[name]
	return ok && time.Now().Before(expiry)
}
