package ai

import (
	"fmt"
	"time"

	"github.com/veridian-labs/regcore/internal/core/domain"
	"github.com/veridian-labs/regcore/internal/core/ports/driven"
)

// Ensure Factory implements AIServiceFactory
var _ driven.AIServiceFactory = (*Factory)(nil)

// Factory creates AI services based on configuration
type Factory struct {
	// CacheSize and CacheTTL control the embedding cache wrapped around
	// every created embedding service. Zero disables caching.
	CacheSize int
	CacheTTL  time.Duration
}

// NewFactory creates a new AI service factory with embedding caching
// enabled.
func NewFactory() *Factory {
	return &Factory{
		CacheSize: 4096,
		CacheTTL:  time.Hour,
	}
}

// CreateEmbeddingService creates an embedding service from settings
func (f *Factory) CreateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	var svc driven.EmbeddingService
	var err error
	switch settings.Provider {
	case domain.AIProviderOpenAI:
		svc, err = NewOpenAIEmbedding(settings.APIKey, settings.Model, settings.BaseURL)
	case domain.AIProviderOllama:
		svc, err = NewOllamaEmbedding(settings.BaseURL, settings.Model)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidProvider, settings.Provider)
	}
	if err != nil {
		return nil, err
	}
	return WrapWithCache(svc, f.CacheSize, f.CacheTTL), nil
}

// CreateLLMService creates an LLM service from settings
func (f *Factory) CreateLLMService(settings *domain.LLMSettings) (driven.LLMService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderOpenAI:
		return NewOpenAILLM(settings.APIKey, settings.Model, settings.BaseURL)
	case domain.AIProviderAnthropic:
		return NewAnthropicLLM(settings.APIKey, settings.Model)
	case domain.AIProviderOllama:
		return NewOllamaLLM(settings.BaseURL, settings.Model)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidProvider, settings.Provider)
	}
}
