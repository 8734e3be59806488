package driven

import (
	"context"

	"github.com/veridian-labs/regcore/internal/core/domain"
)

// DocumentStore handles document persistence (PostgreSQL)
type DocumentStore interface {
	// Save creates or updates a document
	Save(ctx context.Context, doc *domain.Document) error

	// Get retrieves a document by ID
	Get(ctx context.Context, id string) (*domain.Document, error)

	// List retrieves documents filtered by schema type and status.
	// Zero values mean no filter.
	List(ctx context.Context, schemaType domain.SchemaType, status domain.ProcessingStatus, limit, offset int) ([]*domain.Document, error)

	// UpdateStatus moves a document to a new processing status.
	// failedStage and errMsg are recorded only for StatusFailed.
	UpdateStatus(ctx context.Context, id string, status domain.ProcessingStatus, failedStage, errMsg string) error

	// Delete deletes a document and cascades to its chunks, embeddings and
	// mappings.
	Delete(ctx context.Context, id string) error

	// Count returns document count by status (empty status counts all)
	Count(ctx context.Context, status domain.ProcessingStatus) (int, error)
}

// ChunkStore handles chunk persistence (PostgreSQL)
type ChunkStore interface {
	// SaveBatch saves chunks in a transaction
	SaveBatch(ctx context.Context, chunks []*domain.Chunk) error

	// Get retrieves a chunk by ID
	Get(ctx context.Context, id string) (*domain.Chunk, error)

	// GetMany retrieves chunks by ID, preserving the given order
	GetMany(ctx context.Context, ids []string) ([]*domain.Chunk, error)

	// GetByDocument retrieves all chunks for a document in position order
	GetByDocument(ctx context.Context, documentID string) ([]*domain.Chunk, error)

	// DeleteByDocument deletes all chunks for a document
	DeleteByDocument(ctx context.Context, documentID string) error
}
