package driven

import (
	"context"

	"github.com/veridian-labs/regcore/internal/core/domain"
)

// SchemaStore handles the regulatory taxonomy and schema mappings.
// Elements are read-mostly: seeded at startup, never mutated by the
// pipeline.
type SchemaStore interface {
	// SeedElements inserts taxonomy elements if absent (idempotent)
	SeedElements(ctx context.Context, elements []*domain.SchemaElement) error

	// GetElement retrieves an element by code
	GetElement(ctx context.Context, code string) (*domain.SchemaElement, error)

	// ListElements retrieves all elements for a schema type
	ListElements(ctx context.Context, schemaType domain.SchemaType) ([]*domain.SchemaElement, error)

	// SaveMapping persists one schema mapping
	SaveMapping(ctx context.Context, m *domain.SchemaMapping) error

	// GetMappings returns current (non-superseded) mappings for a target
	GetMappings(ctx context.Context, targetType domain.MappingTarget, targetID string) ([]*domain.SchemaMapping, error)

	// SupersedeAutomatic marks all current automatic mappings for a target
	// as superseded. Manual mappings are untouched.
	SupersedeAutomatic(ctx context.Context, targetType domain.MappingTarget, targetID string) error

	// CountChunksForElement counts non-superseded chunk mappings for an
	// element with confidence >= minConfidence, restricted to chunks of
	// completed documents of the given schema type.
	CountChunksForElement(ctx context.Context, elementCode string, schemaType domain.SchemaType, minConfidence float64) (int, error)
}
