package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/veridian-labs/regcore/internal/core/ports/driven"
)

// Ensure CachedEmbedding implements EmbeddingService
var _ driven.EmbeddingService = (*CachedEmbedding)(nil)

// CachedEmbedding decorates an EmbeddingService with an expiring LRU cache.
// Keys include the model name, so a model change never serves stale
// vectors. Hits return a copy; the cached slice is never shared.
type CachedEmbedding struct {
	next  driven.EmbeddingService
	cache *expirable.LRU[string, []float32]
}

// WrapWithCache wraps an embedding service with an LRU cache. A nil
// service, non-positive size or TTL returns the service unwrapped.
func WrapWithCache(next driven.EmbeddingService, size int, ttl time.Duration) driven.EmbeddingService {
	if next == nil || size <= 0 || ttl <= 0 {
		return next
	}
	return &CachedEmbedding{
		next:  next,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

func (c *CachedEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))

	// Collect the misses, preserving input positions.
	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		if cached, ok := c.cache.Get(c.key(text)); ok {
			result[i] = cloneVector(cached)
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return result, nil
	}

	vectors, err := c.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, vector := range vectors {
		i := missIdx[j]
		result[i] = vector
		c.cache.Add(c.key(texts[i]), cloneVector(vector))
	}
	return result, nil
}

func (c *CachedEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if cached, ok := c.cache.Get(c.key(query)); ok {
		return cloneVector(cached), nil
	}
	vector, err := c.next.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	c.cache.Add(c.key(query), cloneVector(vector))
	return vector, nil
}

func (c *CachedEmbedding) Dimensions() int {
	return c.next.Dimensions()
}

func (c *CachedEmbedding) Model() string {
	return c.next.Model()
}

func (c *CachedEmbedding) HealthCheck(ctx context.Context) error {
	return c.next.HealthCheck(ctx)
}

func (c *CachedEmbedding) Close() error {
	c.cache.Purge()
	return c.next.Close()
}

func (c *CachedEmbedding) key(text string) string {
	sum := sha256.Sum256([]byte(c.next.Model() + ":" + text))
	return hex.EncodeToString(sum[:])
}

func cloneVector(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
