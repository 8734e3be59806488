package domain

import "time"

// SearchFilters restrict a vector query before top-k selection.
type SearchFilters struct {
	SchemaType SchemaType       `json:"schema_type,omitempty"`
	DocumentID string           `json:"document_id,omitempty"`
	Status     ProcessingStatus `json:"status,omitempty"`
	// ExcludeDocumentID drops chunks from the named document. Used by
	// find-similar to avoid self-matches.
	ExcludeDocumentID string `json:"exclude_document_id,omitempty"`
	// ElementCodes restricts to chunks with a current schema mapping to any
	// of the given elements. Used for schema-scoped report sections.
	ElementCodes []string `json:"element_codes,omitempty"`
}

// SearchOptions configures a retrieval request.
type SearchOptions struct {
	TopK         int           `json:"top_k"`
	MinRelevance float64       `json:"min_relevance"`
	Filters      SearchFilters `json:"filters,omitempty"`
	Rerank       bool          `json:"rerank"`
}

// DefaultSearchOptions returns sensible defaults.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		TopK:         10,
		MinRelevance: 0.0,
		Rerank:       true,
	}
}

// RankedChunk is a retrieval result. Relevance is the final blended score in
// [0,1]; VectorScore and LexicalScore are its inputs, kept for inspection.
type RankedChunk struct {
	Chunk        *Chunk    `json:"chunk"`
	Document     *Document `json:"document,omitempty"`
	Relevance    float64   `json:"relevance"`
	VectorScore  float64   `json:"vector_score"`
	LexicalScore float64   `json:"lexical_score"`
}

// SearchResult is the outcome of one retrieval pass. An empty Results slice
// means insufficient context; it is a signal, not an error.
type SearchResult struct {
	Query   string         `json:"query"`
	Results []*RankedChunk `json:"results"`
	Took    time.Duration  `json:"took"`
}

// Citation points an answer back at a source chunk.
type Citation struct {
	ChunkID       string  `json:"chunk_id"`
	DocumentID    string  `json:"document_id"`
	DocumentTitle string  `json:"document_title,omitempty"`
	Page          int     `json:"page,omitempty"`
	StartChar     int     `json:"start_char"`
	EndChar       int     `json:"end_char"`
	Relevance     float64 `json:"relevance"`
	Excerpt       string  `json:"excerpt,omitempty"`
}

// RAGResponse is a generated answer with its grounding. Immutable once
// created; history is append-only.
type RAGResponse struct {
	ID         string     `json:"id"`
	Question   string     `json:"question"`
	Answer     string     `json:"answer"`
	Confidence float64    `json:"confidence"`
	Model      string     `json:"model"`
	Citations  []Citation `json:"citations"`
	CreatedAt  time.Time  `json:"created_at"`
}

// InsufficientContextAnswer is the answer text returned when retrieval
// produced no usable grounding. Its presence with confidence 0 is the
// explicit "do not trust this" marker.
const InsufficientContextAnswer = "The available documents do not contain sufficient context to answer this question."
