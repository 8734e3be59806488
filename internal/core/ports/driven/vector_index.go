package driven

import (
	"context"

	"github.com/veridian-labs/regcore/internal/core/domain"
)

// VectorEntry is one (vector, chunk metadata) pair in the index.
type VectorEntry struct {
	ChunkID    string
	DocumentID string
	SchemaType domain.SchemaType
	Model      string
	Vector     []float32
}

// VectorMatch is one k-nearest-neighbour hit. Relevance is cosine
// similarity mapped to [0,1] via (similarity+1)/2.
type VectorMatch struct {
	ChunkID    string
	DocumentID string
	Similarity float64
	Relevance  float64
}

// VectorIndex stores chunk vectors and answers k-nearest-neighbour queries
// with metadata filters. Filters are applied before top-k selection, so k
// always yields up to k matching results. Implementations must never let an
// index entry outlive its chunk record.
type VectorIndex interface {
	// Upsert stores or replaces the vector for a chunk
	Upsert(ctx context.Context, entry VectorEntry) error

	// UpsertBatch stores multiple vectors
	UpsertBatch(ctx context.Context, entries []VectorEntry) error

	// Query returns the k nearest entries produced by the given model,
	// restricted by filters, ordered by descending similarity.
	// Entries from other embedding models are never considered.
	Query(ctx context.Context, vector []float32, model string, k int, filters domain.SearchFilters) ([]VectorMatch, error)

	// GetVector returns the stored vector and model for a chunk
	GetVector(ctx context.Context, chunkID string) ([]float32, string, error)

	// DeleteByDocument removes all index entries for a document
	DeleteByDocument(ctx context.Context, documentID string) error

	// HealthCheck verifies the index is available
	HealthCheck(ctx context.Context) error
}
