package driven

import (
	"context"

	"github.com/veridian-labs/regcore/internal/core/domain"
)

// RequirementStore handles client requirement persistence (PostgreSQL)
type RequirementStore interface {
	// SaveSet creates or updates a requirement set
	SaveSet(ctx context.Context, set *domain.RequirementSet) error

	// GetSet retrieves a requirement set by ID
	GetSet(ctx context.Context, id string) (*domain.RequirementSet, error)

	// SaveRequirements saves the decomposed requirement statements of a set
	// in one transaction
	SaveRequirements(ctx context.Context, reqs []*domain.Requirement) error

	// GetRequirements retrieves all requirements of a set in position order
	GetRequirements(ctx context.Context, setID string) ([]*domain.Requirement, error)
}
