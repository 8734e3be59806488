package domain

import "time"

// Priority tags a client requirement.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// RequirementSet is an uploaded client requirements document, decomposed
// into discrete requirement statements. Immutable after processing
// completes.
type RequirementSet struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	SchemaType SchemaType       `json:"schema_type"`
	Status     ProcessingStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Requirement is a single processed requirement statement. Schema mappings
// attach to it via SchemaMapping with TargetTypeRequirement.
type Requirement struct {
	ID        string    `json:"id"`
	SetID     string    `json:"set_id"`
	Position  int       `json:"position"`
	Text      string    `json:"text"`
	Priority  Priority  `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
}

// GapAnalysisResult is the derived coverage picture for one requirement set
// against the processed corpus. Recomputed on demand, cached but never
// authoritative.
type GapAnalysisResult struct {
	RequirementSetID string     `json:"requirement_set_id"`
	SchemaType       SchemaType `json:"schema_type"`

	// CoveragePercent = round(covered/total*100); 0/0 is defined as 100.
	CoveragePercent      int `json:"coverage_percent"`
	TotalRequirements    int `json:"total_requirements"`
	CoveredRequirements  int `json:"covered_requirements"`

	// UncoveredRequirements lists the requirements with no supporting chunk.
	UncoveredRequirements []*Requirement `json:"uncovered_requirements"`

	// MissingElements lists schema element codes referenced by the
	// requirements but backed by no chunk above threshold.
	MissingElements []string `json:"missing_elements"`

	ComputedAt time.Time `json:"computed_at"`
}
