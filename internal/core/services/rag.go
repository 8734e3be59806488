package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veridian-labs/regcore/internal/core/domain"
	"github.com/veridian-labs/regcore/internal/core/ports/driven"
	"github.com/veridian-labs/regcore/internal/core/ports/driving"
	"github.com/veridian-labs/regcore/internal/runtime"
)

// Ensure qaService implements QAService
var _ driving.QAService = (*qaService)(nil)

// ConfidencePolicy blends the confidence signals of an answer. The formula
// is a tunable policy, not a constant: inputs stay explicit so the blend is
// independently testable.
type ConfidencePolicy struct {
	// RelevanceWeight applies to the average relevance of the chunks that
	// made it into the prompt.
	RelevanceWeight float64

	// SufficiencyWeight applies to used/requested chunk-count sufficiency.
	SufficiencyWeight float64

	// CertaintyWeight applies to the model-reported certainty. Providers
	// that report none have this weight folded into RelevanceWeight.
	CertaintyWeight float64
}

// DefaultConfidencePolicy returns the documented default blend.
func DefaultConfidencePolicy() ConfidencePolicy {
	return ConfidencePolicy{
		RelevanceWeight:   0.60,
		SufficiencyWeight: 0.25,
		CertaintyWeight:   0.15,
	}
}

// Score computes the bounded [0,1] confidence for an answer.
// avgRelevance is the mean relevance of used chunks; used/requested is the
// chunk-count sufficiency; certainty is the optional model-reported signal.
func (p ConfidencePolicy) Score(avgRelevance float64, used, requested int, certainty *float64) float64 {
	if used == 0 {
		return 0
	}

	sufficiency := 1.0
	if requested > 0 && used < requested {
		sufficiency = float64(used) / float64(requested)
	}

	relevanceWeight := p.RelevanceWeight
	score := p.SufficiencyWeight * sufficiency
	if certainty != nil {
		score += p.CertaintyWeight * clamp01(*certainty)
	} else {
		relevanceWeight += p.CertaintyWeight
	}
	score += relevanceWeight * clamp01(avgRelevance)

	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// QAConfig tunes the RAG orchestrator.
type QAConfig struct {
	// PromptTokenBudget bounds the assembled context. Chunks are added in
	// descending relevance order and never truncated mid-chunk.
	PromptTokenBudget int

	// MaxConcurrent bounds batch fan-out against the model services.
	MaxConcurrent int

	// DefaultMaxContextChunks is used when the caller does not set one.
	DefaultMaxContextChunks int

	Policy ConfidencePolicy
}

// DefaultQAConfig returns sensible defaults.
func DefaultQAConfig() QAConfig {
	return QAConfig{
		PromptTokenBudget:       3000,
		MaxConcurrent:           4,
		DefaultMaxContextChunks: 6,
		Policy:                  DefaultConfidencePolicy(),
	}
}

// qaService is the RAG orchestrator: retrieve, assemble, generate, score,
// cite.
type qaService struct {
	retriever driving.SearchService
	services  *runtime.Services
	responses driven.ResponseStore
	config    QAConfig
	logger    *slog.Logger
}

// NewQAService creates a new QAService.
func NewQAService(
	retriever driving.SearchService,
	services *runtime.Services,
	responses driven.ResponseStore,
	config QAConfig,
	logger *slog.Logger,
) driving.QAService {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 1
	}
	return &qaService{
		retriever: retriever,
		services:  services,
		responses: responses,
		config:    config,
		logger:    logger,
	}
}

// Answer produces a grounded, cited answer for one question.
func (s *qaService) Answer(ctx context.Context, question string, opts driving.AnswerOptions) (*domain.RAGResponse, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: empty question", domain.ErrInvalidInput)
	}

	llm := s.services.LLMService()
	if llm == nil {
		return nil, fmt.Errorf("%w: no generative model configured", domain.ErrModelUnavailable)
	}

	maxChunks := opts.MaxContextChunks
	if maxChunks <= 0 {
		maxChunks = s.config.DefaultMaxContextChunks
	}

	// Step 1: retrieve
	searchResult, err := s.retriever.Search(ctx, question, domain.SearchOptions{
		TopK:         maxChunks,
		MinRelevance: opts.MinRelevance,
		Rerank:       true,
		Filters: domain.SearchFilters{
			SchemaType:   opts.SchemaType,
			ElementCodes: opts.ElementCodes,
		},
	})
	if err != nil {
		return nil, err
	}

	// Step 2: insufficient context is a result, not an error. Never
	// fabricate an answer over nothing.
	if len(searchResult.Results) == 0 {
		resp := &domain.RAGResponse{
			ID:         domain.GenerateID(),
			Question:   question,
			Answer:     domain.InsufficientContextAnswer,
			Confidence: 0,
			Model:      llm.Model(),
			Citations:  []domain.Citation{},
			CreatedAt:  time.Now(),
		}
		s.saveResponse(ctx, resp)
		return resp, nil
	}

	// Step 3: assemble the prompt under the token budget, whole chunks only
	used := s.selectContext(searchResult.Results, question)
	prompt := s.buildPrompt(question, used)

	// Step 4: generate
	generation, err := llm.Generate(ctx, prompt, driven.GenerateOptions{
		Temperature: opts.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	// Step 5: confidence from what was actually used
	var relevanceSum float64
	for _, rc := range used {
		relevanceSum += rc.Relevance
	}
	avgRelevance := relevanceSum / float64(len(used))
	confidence := s.config.Policy.Score(avgRelevance, len(used), maxChunks, generation.Certainty)

	// Step 6: citations from the chunks actually included in the prompt
	citations := make([]domain.Citation, 0, len(used))
	for _, rc := range used {
		citations = append(citations, buildCitation(rc))
	}

	resp := &domain.RAGResponse{
		ID:         domain.GenerateID(),
		Question:   question,
		Answer:     strings.TrimSpace(generation.Text),
		Confidence: confidence,
		Model:      llm.Model(),
		Citations:  citations,
		CreatedAt:  time.Now(),
	}
	s.saveResponse(ctx, resp)
	return resp, nil
}

// AnswerBatch answers questions with bounded concurrency, collecting every
// result and error instead of aborting on the first failure.
func (s *qaService) AnswerBatch(ctx context.Context, questions []string, opts driving.AnswerOptions) []driving.BatchAnswer {
	answers := make([]driving.BatchAnswer, len(questions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxConcurrent)

	for i, q := range questions {
		g.Go(func() error {
			resp, err := s.Answer(gctx, q, opts)
			answers[i] = driving.BatchAnswer{Question: q, Response: resp, Err: err}
			// Per-item errors are part of the result set, never a batch abort.
			return nil
		})
	}
	_ = g.Wait()

	return answers
}

// selectContext picks chunks in descending relevance order until the token
// budget is exhausted. A chunk that does not fit whole is skipped, never
// truncated.
func (s *qaService) selectContext(ranked []*domain.RankedChunk, question string) []*domain.RankedChunk {
	budget := s.config.PromptTokenBudget - estimateTokens(question) - promptOverheadTokens

	var used []*domain.RankedChunk
	for _, rc := range ranked {
		cost := estimateTokens(rc.Chunk.Content) + citationHeaderTokens
		if cost > budget {
			continue
		}
		used = append(used, rc)
		budget -= cost
	}

	// Always ground on at least the best chunk, budget notwithstanding.
	if len(used) == 0 && len(ranked) > 0 {
		used = ranked[:1]
	}
	return used
}

// buildPrompt renders the grounded prompt: instructions, numbered sources,
// question.
func (s *qaService) buildPrompt(question string, used []*domain.RankedChunk) string {
	var b strings.Builder
	b.WriteString("You are a regulatory compliance analyst. Answer the question using only the numbered source excerpts below. Cite sources as [1], [2] and so on. If the excerpts do not contain the answer, say so.\n\n")

	for i, rc := range used {
		title := "unknown document"
		if rc.Document != nil {
			title = rc.Document.Title
		}
		if rc.Chunk.Page > 0 {
			fmt.Fprintf(&b, "[%d] %s, p.%d:\n%s\n\n", i+1, title, rc.Chunk.Page, rc.Chunk.Content)
		} else {
			fmt.Fprintf(&b, "[%d] %s:\n%s\n\n", i+1, title, rc.Chunk.Content)
		}
	}

	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}

func (s *qaService) saveResponse(ctx context.Context, resp *domain.RAGResponse) {
	if s.responses == nil {
		return
	}
	if err := s.responses.Save(ctx, resp); err != nil {
		s.logger.Warn("failed to save RAG response", "response_id", resp.ID, "error", err)
	}
}

func buildCitation(rc *domain.RankedChunk) domain.Citation {
	c := domain.Citation{
		ChunkID:    rc.Chunk.ID,
		DocumentID: rc.Chunk.DocumentID,
		Page:       rc.Chunk.Page,
		StartChar:  rc.Chunk.StartChar,
		EndChar:    rc.Chunk.EndChar,
		Relevance:  rc.Relevance,
		Excerpt:    excerpt(rc.Chunk.Content, 160),
	}
	if rc.Document != nil {
		c.DocumentTitle = rc.Document.Title
	}
	return c
}

func excerpt(text string, max int) string {
	text = strings.TrimSpace(text)
	if len(text) <= max {
		return text
	}
	cut := strings.LastIndex(text[:max], " ")
	if cut <= 0 {
		cut = max
	}
	return text[:cut] + "..."
}

// Rough token estimate: four characters per token.
func estimateTokens(text string) int {
	return len(text) / 4
}

const (
	promptOverheadTokens = 80
	citationHeaderTokens = 12
)
