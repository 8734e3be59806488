package domain

import "time"

// SchemaElement is a node in a fixed regulatory taxonomy, e.g. an ESRS
// disclosure topic. The taxonomy is loaded at startup and never mutated by
// the retrieval pipeline.
type SchemaElement struct {
	Code        string     `json:"code"`
	Name        string     `json:"name"`
	ParentCode  string     `json:"parent_code,omitempty"`
	Description string     `json:"description"`
	SchemaType  SchemaType `json:"schema_type"`
}

// MappingType distinguishes classifier output from human-supplied mappings.
type MappingType string

const (
	MappingTypeAutomatic MappingType = "automatic"
	MappingTypeManual    MappingType = "manual"
)

// MappingTarget says what kind of entity a mapping attaches to.
type MappingTarget string

const (
	MappingTargetChunk       MappingTarget = "chunk"
	MappingTargetRequirement MappingTarget = "requirement"
)

// SchemaMapping associates a chunk or a processed requirement with a schema
// element. Mappings are superseded, never edited: a reclassification pass
// writes new automatic rows and marks the old automatic ones superseded.
// Manual mappings are never superseded by automatic passes.
type SchemaMapping struct {
	ID              string        `json:"id"`
	ElementCode     string        `json:"element_code"`
	TargetType      MappingTarget `json:"target_type"`
	TargetID        string        `json:"target_id"`
	Confidence      float64       `json:"confidence"`
	MappingType     MappingType   `json:"mapping_type"`
	TaxonomyVersion string        `json:"taxonomy_version"`
	Superseded      bool          `json:"superseded"`
	CreatedAt       time.Time     `json:"created_at"`
}

// ElementScore is a single classifier result before persistence.
type ElementScore struct {
	ElementCode string  `json:"element_code"`
	Confidence  float64 `json:"confidence"`
}
