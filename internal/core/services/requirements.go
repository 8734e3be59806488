package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/veridian-labs/regcore/internal/core/domain"
	"github.com/veridian-labs/regcore/internal/core/ports/driven"
	"github.com/veridian-labs/regcore/internal/core/ports/driving"
)

// Ensure requirementService implements RequirementService
var _ driving.RequirementService = (*requirementService)(nil)

// requirementService decomposes client requirement uploads into discrete
// statements and schema-maps each one. Sets are immutable once processing
// completes.
type requirementService struct {
	store      driven.RequirementStore
	classifier *Classifier
	logger     *slog.Logger
}

// NewRequirementService creates a new RequirementService.
func NewRequirementService(store driven.RequirementStore, classifier *Classifier, logger *slog.Logger) driving.RequirementService {
	if logger == nil {
		logger = slog.Default()
	}
	return &requirementService{
		store:      store,
		classifier: classifier,
		logger:     logger,
	}
}

// SubmitRequirements stores a requirement set and classifies every
// statement against the taxonomy.
func (s *requirementService) SubmitRequirements(ctx context.Context, name string, schemaType domain.SchemaType, statements []driving.RequirementInput) (*domain.RequirementSet, error) {
	if !domain.ValidSchemaType(schemaType) {
		return nil, fmt.Errorf("%w: unsupported schema type %q", domain.ErrInvalidInput, schemaType)
	}
	if len(statements) == 0 {
		return nil, fmt.Errorf("%w: no requirement statements", domain.ErrInvalidInput)
	}

	now := time.Now()
	set := &domain.RequirementSet{
		ID:         domain.GenerateID(),
		Name:       name,
		SchemaType: schemaType,
		Status:     domain.StatusClassifying,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.SaveSet(ctx, set); err != nil {
		return nil, fmt.Errorf("save requirement set: %w", err)
	}

	requirements := make([]*domain.Requirement, 0, len(statements))
	for i, in := range statements {
		text := strings.TrimSpace(in.Text)
		if text == "" {
			continue
		}
		priority := in.Priority
		if priority == "" {
			priority = domain.PriorityMedium
		}
		requirements = append(requirements, &domain.Requirement{
			ID:        domain.GenerateID(),
			SetID:     set.ID,
			Position:  i,
			Text:      text,
			Priority:  priority,
			CreatedAt: now,
		})
	}
	if len(requirements) == 0 {
		return nil, fmt.Errorf("%w: all requirement statements empty", domain.ErrInvalidInput)
	}

	if err := s.store.SaveRequirements(ctx, requirements); err != nil {
		return nil, fmt.Errorf("save requirements: %w", err)
	}

	for _, req := range requirements {
		scores := s.classifier.Classify(req.Text, schemaType)
		if err := s.classifier.ApplyToTarget(ctx, domain.MappingTargetRequirement, req.ID, scores); err != nil {
			set.Status = domain.StatusFailed
			set.UpdatedAt = time.Now()
			_ = s.store.SaveSet(ctx, set)
			return nil, fmt.Errorf("classify requirement %s: %w", req.ID, err)
		}
	}

	set.Status = domain.StatusCompleted
	set.UpdatedAt = time.Now()
	if err := s.store.SaveSet(ctx, set); err != nil {
		return nil, fmt.Errorf("finalize requirement set: %w", err)
	}

	s.logger.Info("requirement set processed", "set_id", set.ID, "requirements", len(requirements))
	return set, nil
}

// GetSet returns a requirement set with its requirements.
func (s *requirementService) GetSet(ctx context.Context, setID string) (*domain.RequirementSet, []*domain.Requirement, error) {
	set, err := s.store.GetSet(ctx, setID)
	if err != nil {
		return nil, nil, err
	}
	requirements, err := s.store.GetRequirements(ctx, setID)
	if err != nil {
		return nil, nil, err
	}
	return set, requirements, nil
}
