package driven

import (
	"context"
)

// GenerateOptions configures a single generation call.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
}

// Generation is the result of one generative model call.
type Generation struct {
	Text string

	// Certainty is the model-reported certainty in [0,1], when the provider
	// exposes one. Nil otherwise; confidence scoring must handle both.
	Certainty *float64
}

// LLMService provides generative model capabilities for answer synthesis
type LLMService interface {
	// Generate produces text for the given prompt
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (*Generation, error)

	// Model returns the model name being used
	Model() string

	// Ping verifies the LLM service is available
	Ping(ctx context.Context) error

	// Close releases resources held by the LLM service
	Close() error
}
