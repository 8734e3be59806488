package mocks

import (
	"context"
	"errors"

	"github.com/veridian-labs/regcore/internal/core/ports/driven"
)

// MockLLMService is a mock implementation of LLMService for testing
type MockLLMService struct {
	model     string
	response  string
	certainty *float64
	failNext  bool
	prompts   []string
}

// NewMockLLMService creates a new MockLLMService
func NewMockLLMService() *MockLLMService {
	return &MockLLMService{
		model:    "mock-llm-model",
		response: "mock generated answer",
	}
}

func (m *MockLLMService) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (*driven.Generation, error) {
	m.prompts = append(m.prompts, prompt)
	if m.failNext {
		m.failNext = false
		return nil, errors.New("generation failed")
	}
	return &driven.Generation{Text: m.response, Certainty: m.certainty}, nil
}

func (m *MockLLMService) Model() string {
	return m.model
}

func (m *MockLLMService) Ping(ctx context.Context) error {
	return nil
}

func (m *MockLLMService) Close() error {
	return nil
}

// Helper methods for testing

func (m *MockLLMService) SetResponse(text string) {
	m.response = text
}

func (m *MockLLMService) SetCertainty(c float64) {
	m.certainty = &c
}

func (m *MockLLMService) SetFailNext(fail bool) {
	m.failNext = fail
}

func (m *MockLLMService) Prompts() []string {
	return m.prompts
}
