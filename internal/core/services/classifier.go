package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/veridian-labs/regcore/internal/core/domain"
	"github.com/veridian-labs/regcore/internal/core/ports/driven"
)

// ClassifierConfig tunes schema classification.
type ClassifierConfig struct {
	// MinConfidence is the persistence threshold: scores below it are
	// dropped, not stored.
	MinConfidence float64

	// Saturation controls how fast matched term weight converts to
	// confidence: confidence = w / (w + Saturation).
	Saturation float64

	// NameWeight is the weight of a matched element-name term relative to
	// a matched description term.
	NameWeight float64
}

// DefaultClassifierConfig returns sensible defaults.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		MinConfidence: 0.3,
		Saturation:    6.0,
		NameWeight:    3.0,
	}
}

// elementTerms is the precomputed term table for one taxonomy element.
type elementTerms struct {
	element *domain.SchemaElement
	weights map[string]float64
}

// Classifier maps text to schema element codes with confidence. Scoring is
// lexical term overlap against the taxonomy, so results are deterministic
// for identical text and taxonomy version.
type Classifier struct {
	config          ClassifierConfig
	taxonomyVersion string
	byType          map[domain.SchemaType][]elementTerms
	schemaStore     driven.SchemaStore
}

// NewClassifier builds a classifier over the given taxonomy elements.
func NewClassifier(cfg ClassifierConfig, taxonomyVersion string, elements []*domain.SchemaElement, schemaStore driven.SchemaStore) *Classifier {
	byType := make(map[domain.SchemaType][]elementTerms)
	for _, el := range elements {
		weights := make(map[string]float64)
		for _, term := range tokenize(el.Description) {
			if weights[term] < 1 {
				weights[term] = 1
			}
		}
		for _, term := range tokenize(el.Name) {
			weights[term] = cfg.NameWeight
		}
		byType[el.SchemaType] = append(byType[el.SchemaType], elementTerms{element: el, weights: weights})
	}
	// Stable scoring order
	for _, terms := range byType {
		sort.Slice(terms, func(i, j int) bool {
			return terms[i].element.Code < terms[j].element.Code
		})
	}
	return &Classifier{
		config:          cfg,
		taxonomyVersion: taxonomyVersion,
		byType:          byType,
		schemaStore:     schemaStore,
	}
}

// TaxonomyVersion returns the version the classifier scores against.
func (c *Classifier) TaxonomyVersion() string {
	return c.taxonomyVersion
}

// Classify scores text against every element of the schema type, returning
// results at or above MinConfidence, descending by confidence with a
// deterministic code tie-break.
func (c *Classifier) Classify(text string, schemaType domain.SchemaType) []domain.ElementScore {
	terms := tokenSet(tokenize(text))
	var scores []domain.ElementScore

	for _, et := range c.byType[schemaType] {
		var matched float64
		for term, weight := range et.weights {
			if terms[term] {
				matched += weight
			}
		}
		if matched == 0 {
			continue
		}
		confidence := matched / (matched + c.config.Saturation)
		if confidence < c.config.MinConfidence {
			continue
		}
		scores = append(scores, domain.ElementScore{
			ElementCode: et.element.Code,
			Confidence:  confidence,
		})
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Confidence != scores[j].Confidence {
			return scores[i].Confidence > scores[j].Confidence
		}
		return scores[i].ElementCode < scores[j].ElementCode
	})
	return scores
}

// ApplyToTarget persists classification results for a chunk or requirement.
// Prior automatic mappings for the target are superseded first; manual
// mappings are never touched, so a reclassification pass can only add to
// them.
func (c *Classifier) ApplyToTarget(ctx context.Context, targetType domain.MappingTarget, targetID string, scores []domain.ElementScore) error {
	if err := c.schemaStore.SupersedeAutomatic(ctx, targetType, targetID); err != nil {
		return fmt.Errorf("supersede automatic mappings: %w", err)
	}

	for _, score := range scores {
		m := &domain.SchemaMapping{
			ID:              domain.GenerateID(),
			ElementCode:     score.ElementCode,
			TargetType:      targetType,
			TargetID:        targetID,
			Confidence:      score.Confidence,
			MappingType:     domain.MappingTypeAutomatic,
			TaxonomyVersion: c.taxonomyVersion,
			CreatedAt:       time.Now(),
		}
		if err := c.schemaStore.SaveMapping(ctx, m); err != nil {
			return fmt.Errorf("save mapping %s -> %s: %w", targetID, score.ElementCode, err)
		}
	}
	return nil
}

// AddManualMapping records an externally supplied mapping. Manual mappings
// survive every automatic reclassification pass.
func (c *Classifier) AddManualMapping(ctx context.Context, targetType domain.MappingTarget, targetID, elementCode string) (*domain.SchemaMapping, error) {
	if _, err := c.schemaStore.GetElement(ctx, elementCode); err != nil {
		return nil, fmt.Errorf("element %s: %w", elementCode, err)
	}
	m := &domain.SchemaMapping{
		ID:              domain.GenerateID(),
		ElementCode:     elementCode,
		TargetType:      targetType,
		TargetID:        targetID,
		Confidence:      1.0,
		MappingType:     domain.MappingTypeManual,
		TaxonomyVersion: c.taxonomyVersion,
		CreatedAt:       time.Now(),
	}
	if err := c.schemaStore.SaveMapping(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// stopwords excluded from lexical scoring.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "with": true,
	"that": true, "this": true, "from": true, "its": true, "their": true,
	"has": true, "have": true, "was": true, "were": true, "will": true,
	"been": true, "into": true, "over": true, "per": true, "our": true,
	"not": true, "all": true, "any": true, "such": true, "other": true,
	"including": true, "related": true, "used": true,
}

// tokenize lowercases, strips punctuation and drops stopwords and short
// tokens.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) < 3 || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

func tokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}
