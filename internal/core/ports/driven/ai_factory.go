package driven

import (
	"github.com/veridian-labs/regcore/internal/core/domain"
)

// AIServiceFactory creates AI services from settings
type AIServiceFactory interface {
	// CreateEmbeddingService creates an embedding service from settings.
	// Returns nil, nil when the settings are not configured.
	CreateEmbeddingService(settings *domain.EmbeddingSettings) (EmbeddingService, error)

	// CreateLLMService creates an LLM service from settings.
	// Returns nil, nil when the settings are not configured.
	CreateLLMService(settings *domain.LLMSettings) (LLMService, error)
}
