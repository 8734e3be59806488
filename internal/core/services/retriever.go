package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/veridian-labs/regcore/internal/core/domain"
	"github.com/veridian-labs/regcore/internal/core/ports/driven"
	"github.com/veridian-labs/regcore/internal/core/ports/driving"
	"github.com/veridian-labs/regcore/internal/runtime"
)

// Ensure searchService implements SearchService
var _ driving.SearchService = (*searchService)(nil)

// RetrieverConfig tunes candidate selection and reranking.
type RetrieverConfig struct {
	// CandidateMultiplier scales top-k into the candidate pool size:
	// k' = max(TopK * CandidateMultiplier, MinCandidates).
	CandidateMultiplier int
	MinCandidates       int

	// Rerank blend weights. Must sum to 1.
	VectorWeight  float64
	LexicalWeight float64
}

// DefaultRetrieverConfig returns sensible defaults.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		CandidateMultiplier: 3,
		MinCandidates:       20,
		VectorWeight:        0.7,
		LexicalWeight:       0.3,
	}
}

// searchService orchestrates embed-query, vector search, score blending
// and truncation.
type searchService struct {
	index         driven.VectorIndex
	chunkStore    driven.ChunkStore
	documentStore driven.DocumentStore
	services      *runtime.Services // Dynamic AI services
	config        RetrieverConfig
}

// NewSearchService creates a new SearchService.
// The embedding service is accessed dynamically via runtime.Services.
func NewSearchService(
	index driven.VectorIndex,
	chunkStore driven.ChunkStore,
	documentStore driven.DocumentStore,
	services *runtime.Services,
	config RetrieverConfig,
) driving.SearchService {
	return &searchService{
		index:         index,
		chunkStore:    chunkStore,
		documentStore: documentStore,
		services:      services,
		config:        config,
	}
}

// Search performs semantic retrieval with an optional reranking pass.
func (s *searchService) Search(ctx context.Context, query string, opts domain.SearchOptions) (*domain.SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}
	if opts.Filters.SchemaType != "" && !domain.ValidSchemaType(opts.Filters.SchemaType) {
		return nil, fmt.Errorf("%w: unsupported schema type %q", domain.ErrInvalidInput, opts.Filters.SchemaType)
	}

	embeddingService := s.services.EmbeddingService()
	if embeddingService == nil {
		return nil, fmt.Errorf("%w: no embedding service configured", domain.ErrModelUnavailable)
	}

	queryEmbedding, err := embeddingService.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	return s.run(ctx, query, queryEmbedding, embeddingService.Model(), opts, "")
}

// FindSimilar runs the retrieval pipeline using a stored chunk vector as
// the query.
func (s *searchService) FindSimilar(ctx context.Context, chunkID string, opts domain.SearchOptions) (*domain.SearchResult, error) {
	if chunkID == "" {
		return nil, fmt.Errorf("%w: empty chunk id", domain.ErrInvalidInput)
	}

	vector, model, err := s.index.GetVector(ctx, chunkID)
	if err != nil {
		return nil, fmt.Errorf("load vector for chunk %s: %w", chunkID, err)
	}

	chunk, err := s.chunkStore.Get(ctx, chunkID)
	if err != nil {
		return nil, fmt.Errorf("load chunk %s: %w", chunkID, err)
	}

	// The target chunk always matches itself; exclude it before top-k so
	// callers still receive a full page of results.
	return s.run(ctx, chunk.Content, vector, model, opts, chunkID)
}

// run executes the shared pipeline: candidate query, enrichment, rerank,
// threshold, truncate.
func (s *searchService) run(ctx context.Context, queryText string, queryEmbedding []float32, model string, opts domain.SearchOptions, excludeChunkID string) (*domain.SearchResult, error) {
	start := time.Now()

	if opts.TopK <= 0 {
		opts.TopK = DefaultSearchTopK
	}
	if opts.TopK > MaxSearchTopK {
		opts.TopK = MaxSearchTopK
	}

	// Only completed documents are searchable; a stricter caller filter wins.
	if opts.Filters.Status == "" {
		opts.Filters.Status = domain.StatusCompleted
	}

	candidateK := opts.TopK * s.config.CandidateMultiplier
	if candidateK < s.config.MinCandidates {
		candidateK = s.config.MinCandidates
	}

	matches, err := s.index.Query(ctx, queryEmbedding, model, candidateK, opts.Filters)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	ranked, err := s.enrich(ctx, matches)
	if err != nil {
		return nil, err
	}

	if opts.Rerank {
		s.rerank(queryText, ranked)
	} else {
		for _, rc := range ranked {
			rc.Relevance = rc.VectorScore
		}
	}

	sortRanked(ranked)

	// Threshold then truncate
	out := ranked[:0]
	for _, rc := range ranked {
		if excludeChunkID != "" && rc.Chunk.ID == excludeChunkID {
			continue
		}
		if rc.Relevance < opts.MinRelevance {
			continue
		}
		out = append(out, rc)
		if len(out) == opts.TopK {
			break
		}
	}

	return &domain.SearchResult{
		Query:   queryText,
		Results: out,
		Took:    time.Since(start),
	}, nil
}

// enrich loads chunk and document records for the raw index matches.
func (s *searchService) enrich(ctx context.Context, matches []driven.VectorMatch) ([]*domain.RankedChunk, error) {
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ChunkID
	}

	chunks, err := s.chunkStore.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	byID := make(map[string]*domain.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	docs := make(map[string]*domain.Document)
	ranked := make([]*domain.RankedChunk, 0, len(matches))
	for _, m := range matches {
		chunk, ok := byID[m.ChunkID]
		if !ok {
			// Index entry without a chunk row; skip rather than fail the search.
			continue
		}
		doc, ok := docs[chunk.DocumentID]
		if !ok {
			doc, _ = s.documentStore.Get(ctx, chunk.DocumentID)
			docs[chunk.DocumentID] = doc
		}
		ranked = append(ranked, &domain.RankedChunk{
			Chunk:       chunk,
			Document:    doc,
			VectorScore: m.Relevance,
			Relevance:   m.Relevance,
		})
	}
	return ranked, nil
}

// rerank recomputes each candidate's relevance as a blend of vector
// similarity and lexical term overlap with the query.
func (s *searchService) rerank(queryText string, ranked []*domain.RankedChunk) {
	queryTerms := tokenize(queryText)
	if len(queryTerms) == 0 {
		for _, rc := range ranked {
			rc.Relevance = rc.VectorScore
		}
		return
	}
	querySet := tokenSet(queryTerms)

	for _, rc := range ranked {
		chunkSet := tokenSet(tokenize(rc.Chunk.Content))
		matched := 0
		for term := range querySet {
			if chunkSet[term] {
				matched++
			}
		}
		rc.LexicalScore = float64(matched) / float64(len(querySet))
		rc.Relevance = s.config.VectorWeight*rc.VectorScore + s.config.LexicalWeight*rc.LexicalScore
		if rc.Relevance > 1 {
			rc.Relevance = 1
		}
		if rc.Relevance < 0 {
			rc.Relevance = 0
		}
	}
}

// sortRanked orders by descending relevance; equal scores fall back to
// chunk creation order, then ID, so ordering is stable and deterministic.
func sortRanked(ranked []*domain.RankedChunk) {
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Relevance != ranked[j].Relevance {
			return ranked[i].Relevance > ranked[j].Relevance
		}
		ci, cj := ranked[i].Chunk, ranked[j].Chunk
		if !ci.CreatedAt.Equal(cj.CreatedAt) {
			return ci.CreatedAt.Before(cj.CreatedAt)
		}
		if ci.Position != cj.Position {
			return ci.Position < cj.Position
		}
		return ci.ID < cj.ID
	})
}

// Search limits.
const (
	DefaultSearchTopK = 10
	MaxSearchTopK     = 100
)
