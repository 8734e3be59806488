package driving

import (
	"context"

	"github.com/veridian-labs/regcore/internal/core/domain"
)

// ExtractedDocument is what the external text-extraction collaborator hands
// the core: plain text plus page-offset metadata.
type ExtractedDocument struct {
	Title          string
	SourceFilename string
	SchemaType     domain.SchemaType
	Text           string
	PageBoundaries []int
	Metadata       map[string]string
}

// IngestionService drives the document pipeline: chunk, embed, classify,
// index.
type IngestionService interface {
	// SubmitDocument registers an extracted document and enqueues its
	// processing job. Returns the created document in StatusQueued.
	SubmitDocument(ctx context.Context, doc ExtractedDocument) (*domain.Document, error)

	// ProcessDocument runs the pipeline synchronously for one document.
	// Called by the worker; rejects a document that is already processing.
	ProcessDocument(ctx context.Context, documentID string) error

	// Reclassify re-runs schema classification over a completed document.
	// Manual mappings survive unchanged.
	Reclassify(ctx context.Context, documentID string) error

	// DeleteDocument removes a document, its chunks and index entries.
	DeleteDocument(ctx context.Context, documentID string) error
}

// RequirementService processes client requirement uploads.
type RequirementService interface {
	// SubmitRequirements decomposes a requirements document into discrete
	// statements and schema-maps each one.
	SubmitRequirements(ctx context.Context, name string, schemaType domain.SchemaType, statements []RequirementInput) (*domain.RequirementSet, error)

	// GetSet returns a requirement set with its requirements.
	GetSet(ctx context.Context, setID string) (*domain.RequirementSet, []*domain.Requirement, error)
}

// RequirementInput is one raw requirement statement.
type RequirementInput struct {
	Text     string
	Priority domain.Priority
}
