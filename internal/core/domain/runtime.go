package domain

import "sync"

// RuntimeConfig tracks which AI services are available at runtime.
// AI availability can change when providers are reconfigured dynamically.
// Thread-safe for concurrent access.
type RuntimeConfig struct {
	mu sync.RWMutex

	// Static (set at startup, read-only)
	QueueBackend string // "redis" or "postgres"

	// Dynamic capability flags (updated when AI services change)
	embeddingAvailable bool
	llmAvailable       bool
}

// NewRuntimeConfig creates a new RuntimeConfig with initial values
func NewRuntimeConfig(queueBackend string) *RuntimeConfig {
	return &RuntimeConfig{
		QueueBackend: queueBackend,
	}
}

// EmbeddingAvailable returns whether embedding service is available
func (c *RuntimeConfig) EmbeddingAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.embeddingAvailable
}

// LLMAvailable returns whether LLM service is available
func (c *RuntimeConfig) LLMAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.llmAvailable
}

// SetEmbeddingAvailable updates the embedding availability flag
func (c *RuntimeConfig) SetEmbeddingAvailable(available bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.embeddingAvailable = available
}

// SetLLMAvailable updates the LLM availability flag
func (c *RuntimeConfig) SetLLMAvailable(available bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.llmAvailable = available
}

// CanRetrieve returns true if semantic retrieval is possible
func (c *RuntimeConfig) CanRetrieve() bool {
	return c.EmbeddingAvailable()
}

// CanGenerate returns true if answer generation is possible
func (c *RuntimeConfig) CanGenerate() bool {
	return c.EmbeddingAvailable() && c.LLMAvailable()
}
