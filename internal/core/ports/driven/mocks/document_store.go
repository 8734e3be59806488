package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/veridian-labs/regcore/internal/core/domain"
)

// MockDocumentStore is a mock implementation of DocumentStore for testing
type MockDocumentStore struct {
	mu        sync.RWMutex
	documents map[string]*domain.Document
	failNext  bool
}

// NewMockDocumentStore creates a new MockDocumentStore
func NewMockDocumentStore() *MockDocumentStore {
	return &MockDocumentStore{
		documents: make(map[string]*domain.Document),
	}
}

func (m *MockDocumentStore) Save(ctx context.Context, doc *domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return context.DeadlineExceeded
	}
	m.documents[doc.ID] = doc
	return nil
}

func (m *MockDocumentStore) Get(ctx context.Context, id string) (*domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return doc, nil
}

func (m *MockDocumentStore) List(ctx context.Context, schemaType domain.SchemaType, status domain.ProcessingStatus, limit, offset int) ([]*domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var docs []*domain.Document
	for _, doc := range m.documents {
		if schemaType != "" && doc.SchemaType != schemaType {
			continue
		}
		if status != "" && doc.Status != status {
			continue
		}
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].CreatedAt.Before(docs[j].CreatedAt) })
	if offset >= len(docs) {
		return []*domain.Document{}, nil
	}
	end := len(docs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return docs[offset:end], nil
}

func (m *MockDocumentStore) UpdateStatus(ctx context.Context, id string, status domain.ProcessingStatus, failedStage, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok {
		return domain.ErrNotFound
	}
	doc.Status = status
	doc.UpdatedAt = time.Now()
	if status == domain.StatusFailed {
		doc.FailedStage = failedStage
		doc.Error = errMsg
	} else {
		doc.FailedStage = ""
		doc.Error = ""
	}
	return nil
}

func (m *MockDocumentStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.documents, id)
	return nil
}

func (m *MockDocumentStore) Count(ctx context.Context, status domain.ProcessingStatus) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if status == "" {
		return len(m.documents), nil
	}
	count := 0
	for _, doc := range m.documents {
		if doc.Status == status {
			count++
		}
	}
	return count, nil
}

// Helper methods for testing

func (m *MockDocumentStore) SetFailNext(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = fail
}

func (m *MockDocumentStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents = make(map[string]*domain.Document)
}
