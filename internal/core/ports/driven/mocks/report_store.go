package mocks

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/veridian-labs/regcore/internal/core/domain"
)

// MockReportStore is a mock implementation of ReportStore for testing
type MockReportStore struct {
	mu        sync.RWMutex
	jobs      map[string]*domain.ReportJob
	templates map[string]*domain.ReportTemplate

	// saveHook runs on every SaveJob, letting tests observe or interfere
	// with state persistence (e.g. flip the cancel flag mid-run).
	saveHook func(job *domain.ReportJob)
	saves    []domain.ReportState
}

// NewMockReportStore creates a new MockReportStore
func NewMockReportStore() *MockReportStore {
	return &MockReportStore{
		jobs:      make(map[string]*domain.ReportJob),
		templates: make(map[string]*domain.ReportTemplate),
	}
}

func (m *MockReportStore) SaveJob(ctx context.Context, job *domain.ReportJob) error {
	m.mu.Lock()
	stored := cloneJob(job)
	if existing, ok := m.jobs[job.ID]; ok {
		// Cancellation is a store-side flag; keep it across saves.
		stored.Cancelled = stored.Cancelled || existing.Cancelled
	}
	m.jobs[job.ID] = stored
	m.saves = append(m.saves, job.State)
	hook := m.saveHook
	m.mu.Unlock()
	if hook != nil {
		hook(job)
	}
	return nil
}

func (m *MockReportStore) GetJob(ctx context.Context, id string) (*domain.ReportJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneJob(job), nil
}

func (m *MockReportStore) ListJobs(ctx context.Context, state domain.ReportState, limit, offset int) ([]*domain.ReportJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var jobs []*domain.ReportJob
	for _, job := range m.jobs {
		if state != "" && job.State != state {
			continue
		}
		jobs = append(jobs, cloneJob(job))
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	if offset >= len(jobs) {
		return []*domain.ReportJob{}, nil
	}
	end := len(jobs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return jobs[offset:end], nil
}

func (m *MockReportStore) MarkCancelled(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	job.Cancelled = true
	job.UpdatedAt = time.Now()
	return nil
}

func (m *MockReportStore) SaveTemplate(ctx context.Context, tpl *domain.ReportTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[tpl.ID] = tpl
	return nil
}

func (m *MockReportStore) GetTemplate(ctx context.Context, id string) (*domain.ReportTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tpl, ok := m.templates[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return tpl, nil
}

func cloneJob(job *domain.ReportJob) *domain.ReportJob {
	c := *job
	if job.Sections != nil {
		c.Sections = make([]*domain.ReportSection, len(job.Sections))
		copy(c.Sections, job.Sections)
	}
	return &c
}

// Helper methods for testing

func (m *MockReportStore) SetSaveHook(hook func(job *domain.ReportJob)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveHook = hook
}

// SavedStates returns the job states in the order they were persisted.
func (m *MockReportStore) SavedStates() []domain.ReportState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	states := make([]domain.ReportState, len(m.saves))
	copy(states, m.saves)
	return states
}

// MockResponseStore is a mock implementation of ResponseStore for testing
type MockResponseStore struct {
	mu        sync.RWMutex
	responses map[string]*domain.RAGResponse
	order     []string
}

// NewMockResponseStore creates a new MockResponseStore
func NewMockResponseStore() *MockResponseStore {
	return &MockResponseStore{
		responses: make(map[string]*domain.RAGResponse),
	}
}

func (m *MockResponseStore) Save(ctx context.Context, resp *domain.RAGResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.responses[resp.ID]; !ok {
		m.order = append(m.order, resp.ID)
	}
	m.responses[resp.ID] = resp
	return nil
}

func (m *MockResponseStore) Get(ctx context.Context, id string) (*domain.RAGResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	resp, ok := m.responses[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return resp, nil
}

func (m *MockResponseStore) List(ctx context.Context, limit, offset int) ([]*domain.RAGResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// Newest first.
	var result []*domain.RAGResponse
	for i := len(m.order) - 1; i >= 0; i-- {
		result = append(result, m.responses[m.order[i]])
	}
	if offset >= len(result) {
		return []*domain.RAGResponse{}, nil
	}
	end := len(result)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return result[offset:end], nil
}

// Helper methods for testing

func (m *MockResponseStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.responses)
}

// MockReportRenderer is a mock implementation of ReportRenderer for testing
type MockReportRenderer struct {
	mu       sync.Mutex
	failNext bool
	calls    int
}

// NewMockReportRenderer creates a new MockReportRenderer
func NewMockReportRenderer() *MockReportRenderer {
	return &MockReportRenderer{}
}

func (m *MockReportRenderer) Render(ctx context.Context, job *domain.ReportJob) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failNext {
		m.failNext = false
		return nil, errors.New("render failed")
	}
	return []byte("%PDF-1.7 mock"), nil
}

func (m *MockReportRenderer) SetFailNext(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = fail
}

func (m *MockReportRenderer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
