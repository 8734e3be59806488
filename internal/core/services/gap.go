package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/veridian-labs/regcore/internal/core/domain"
	"github.com/veridian-labs/regcore/internal/core/ports/driven"
	"github.com/veridian-labs/regcore/internal/core/ports/driving"
)

// Ensure gapService implements GapService
var _ driving.GapService = (*gapService)(nil)

// GapConfig tunes gap analysis.
type GapConfig struct {
	// MinConfidence is the mapping confidence a chunk needs to count as
	// supporting a schema element.
	MinConfidence float64

	// CacheTTL bounds how long a computed result is reused. Results are
	// derived state: cached, never authoritative.
	CacheTTL time.Duration
}

// DefaultGapConfig returns sensible defaults.
func DefaultGapConfig() GapConfig {
	return GapConfig{
		MinConfidence: 0.3,
		CacheTTL:      time.Minute,
	}
}

// gapService compares a requirement set's schema mappings against the
// elements actually covered by the processed corpus. Pure aggregation over
// existing data: no external calls, deterministic for identical inputs.
type gapService struct {
	requirementStore driven.RequirementStore
	schemaStore      driven.SchemaStore
	config           GapConfig

	mu    sync.Mutex
	cache map[string]*cachedGap
}

type cachedGap struct {
	result     *domain.GapAnalysisResult
	computedAt time.Time
}

// NewGapService creates a new GapService.
func NewGapService(requirementStore driven.RequirementStore, schemaStore driven.SchemaStore, config GapConfig) driving.GapService {
	return &gapService{
		requirementStore: requirementStore,
		schemaStore:      schemaStore,
		config:           config,
		cache:            make(map[string]*cachedGap),
	}
}

// Analyze computes coverage for a requirement set.
func (s *gapService) Analyze(ctx context.Context, requirementSetID string) (*domain.GapAnalysisResult, error) {
	if requirementSetID == "" {
		return nil, fmt.Errorf("%w: empty requirement set id", domain.ErrInvalidInput)
	}

	if cached := s.fromCache(requirementSetID); cached != nil {
		return cached, nil
	}

	set, err := s.requirementStore.GetSet(ctx, requirementSetID)
	if err != nil {
		return nil, fmt.Errorf("load requirement set: %w", err)
	}

	requirements, err := s.requirementStore.GetRequirements(ctx, set.ID)
	if err != nil {
		return nil, fmt.Errorf("load requirements: %w", err)
	}

	// Per-element support is memoised: many requirements map to the same
	// elements.
	elementCovered := make(map[string]bool)
	isCovered := func(code string) (bool, error) {
		if covered, ok := elementCovered[code]; ok {
			return covered, nil
		}
		count, err := s.schemaStore.CountChunksForElement(ctx, code, set.SchemaType, s.config.MinConfidence)
		if err != nil {
			return false, err
		}
		elementCovered[code] = count > 0
		return count > 0, nil
	}

	result := &domain.GapAnalysisResult{
		RequirementSetID:  set.ID,
		SchemaType:        set.SchemaType,
		TotalRequirements: len(requirements),
		ComputedAt:        time.Now(),
	}

	missing := make(map[string]bool)
	for _, req := range requirements {
		mappings, err := s.schemaStore.GetMappings(ctx, domain.MappingTargetRequirement, req.ID)
		if err != nil {
			return nil, fmt.Errorf("load mappings for requirement %s: %w", req.ID, err)
		}

		// Covered iff at least one mapped element has at least one
		// supporting chunk above threshold.
		covered := false
		for _, m := range mappings {
			ok, err := isCovered(m.ElementCode)
			if err != nil {
				return nil, fmt.Errorf("check element %s: %w", m.ElementCode, err)
			}
			if ok {
				covered = true
			} else {
				missing[m.ElementCode] = true
			}
		}

		if covered {
			result.CoveredRequirements++
		} else {
			result.UncoveredRequirements = append(result.UncoveredRequirements, req)
		}
	}

	// 0/0 is defined as fully covered: no requirements means nothing is
	// missing, not a division error.
	if result.TotalRequirements == 0 {
		result.CoveragePercent = 100
	} else {
		result.CoveragePercent = int(math.Round(float64(result.CoveredRequirements) / float64(result.TotalRequirements) * 100))
	}

	for code := range missing {
		result.MissingElements = append(result.MissingElements, code)
	}
	sort.Strings(result.MissingElements)

	s.toCache(requirementSetID, result)
	return result, nil
}

func (s *gapService) fromCache(setID string) *domain.GapAnalysisResult {
	if s.config.CacheTTL <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[setID]
	if !ok || time.Since(entry.computedAt) > s.config.CacheTTL {
		return nil
	}
	return entry.result
}

func (s *gapService) toCache(setID string, result *domain.GapAnalysisResult) {
	if s.config.CacheTTL <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[setID] = &cachedGap{result: result, computedAt: time.Now()}
}
