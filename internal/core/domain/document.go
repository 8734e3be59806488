package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// GenerateID creates a unique ID for a new entity.
func GenerateID() string {
	return uuid.NewString()
}

// SchemaType identifies the regulatory taxonomy a document is filed under.
type SchemaType string

const (
	SchemaTypeEUESRS SchemaType = "EU-ESRS-CSRD"
	SchemaTypeUKSRD  SchemaType = "UK-SRD"
)

// ValidSchemaType reports whether t is a known taxonomy.
func ValidSchemaType(t SchemaType) bool {
	switch t {
	case SchemaTypeEUESRS, SchemaTypeUKSRD:
		return true
	}
	return false
}

// ProcessingStatus tracks a document through the ingestion pipeline.
// A document is searchable only once it reaches StatusCompleted.
type ProcessingStatus string

const (
	StatusQueued      ProcessingStatus = "queued"
	StatusExtracting  ProcessingStatus = "extracting"
	StatusChunking    ProcessingStatus = "chunking"
	StatusEmbedding   ProcessingStatus = "embedding"
	StatusClassifying ProcessingStatus = "classifying"
	StatusCompleted   ProcessingStatus = "completed"
	StatusFailed      ProcessingStatus = "failed"
)

// IsTerminal reports whether the pipeline is done with the document.
func (s ProcessingStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Document represents an ingested regulatory/sustainability document.
// The ingestion pipeline is the single writer: stages mutate Status and
// FailedStage, nothing else mutates a document after upload.
type Document struct {
	ID             string            `json:"id"`
	Title          string            `json:"title"`
	SourceFilename string            `json:"source_filename"`
	SchemaType     SchemaType        `json:"schema_type"`
	Status         ProcessingStatus  `json:"status"`
	FailedStage    string            `json:"failed_stage,omitempty"`
	Error          string            `json:"error,omitempty"`
	// SourceText is the plain text handed over by the external extraction
	// collaborator.
	SourceText string `json:"source_text,omitempty"`
	// PageBoundaries holds the character offset at which each page starts,
	// ascending. Page numbers for citations are derived from it.
	PageBoundaries []int             `json:"page_boundaries,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// PageForOffset returns the 1-based page number containing the given
// character offset, or 0 when no page boundaries are known.
func (d *Document) PageForOffset(offset int) int {
	if len(d.PageBoundaries) == 0 {
		return 0
	}
	// First boundary whose start is past the offset; the page is the one before it.
	i := sort.SearchInts(d.PageBoundaries, offset+1)
	if i == 0 {
		return 1
	}
	return i
}

// Chunk is the unit of retrieval: a bounded, overlapping segment of a
// document's text. Immutable once created; deleted only with its document.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Position   int       `json:"position"`
	Content    string    `json:"content"`
	Page       int       `json:"page,omitempty"`
	StartChar  int       `json:"start_char"`
	EndChar    int       `json:"end_char"`
	CreatedAt  time.Time `json:"created_at"`
}

// Embedding pairs a chunk with the fixed-dimension vector produced for it.
// An embedding is only comparable with vectors from the same model; the
// model name is checked at query time.
type Embedding struct {
	ChunkID   string    `json:"chunk_id"`
	Model     string    `json:"model"`
	Vector    []float32 `json:"vector"`
	CreatedAt time.Time `json:"created_at"`
}
