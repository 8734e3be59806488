package driving

import (
	"context"

	"github.com/veridian-labs/regcore/internal/core/domain"
)

// SearchService performs semantic retrieval over the indexed corpus.
type SearchService interface {
	// Search embeds the query, runs the vector index query and the optional
	// reranking pass. An empty result set signals insufficient context.
	Search(ctx context.Context, query string, opts domain.SearchOptions) (*domain.SearchResult, error)

	// FindSimilar runs the same pipeline using a stored chunk vector as the
	// query. Filters.ExcludeDocumentID can drop same-document matches.
	FindSimilar(ctx context.Context, chunkID string, opts domain.SearchOptions) (*domain.SearchResult, error)
}

// QAService answers natural-language questions with cited evidence.
type QAService interface {
	// Answer retrieves context for the question, generates a grounded
	// answer and scores its confidence. Zero retrieved chunks yields a
	// confidence-0 response with an explicit insufficient-context answer.
	Answer(ctx context.Context, question string, opts AnswerOptions) (*domain.RAGResponse, error)

	// AnswerBatch answers several questions with bounded concurrency,
	// collecting per-question results and errors.
	AnswerBatch(ctx context.Context, questions []string, opts AnswerOptions) []BatchAnswer
}

// AnswerOptions configures a RAG request.
type AnswerOptions struct {
	SchemaType       domain.SchemaType
	ElementCodes     []string
	MaxContextChunks int
	MinRelevance     float64
	Temperature      float64
}

// BatchAnswer is one item of a batch result: a response or an error.
type BatchAnswer struct {
	Question string
	Response *domain.RAGResponse
	Err      error
}
