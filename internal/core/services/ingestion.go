package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/veridian-labs/regcore/internal/core/domain"
	"github.com/veridian-labs/regcore/internal/core/ports/driven"
	"github.com/veridian-labs/regcore/internal/core/ports/driving"
	"github.com/veridian-labs/regcore/internal/chunker"
	"github.com/veridian-labs/regcore/internal/runtime"
)

// Ensure ingestionService implements IngestionService
var _ driving.IngestionService = (*ingestionService)(nil)

// Pipeline stage identifiers, recorded on the document when a stage fails.
const (
	StageChunking    = "chunking"
	StageEmbedding   = "embedding"
	StageClassifying = "classifying"
	StageIndexing    = "indexing"
)

const (
	documentLockPrefix = "document:"
	documentLockTTL    = 10 * time.Minute
	embedBatchSize     = 32
)

// IngestionConfig holds dependencies for the ingestion pipeline.
type IngestionConfig struct {
	DocumentStore driven.DocumentStore
	ChunkStore    driven.ChunkStore
	VectorIndex   driven.VectorIndex
	TaskQueue     driven.TaskQueue
	Lock          driven.DistributedLock
	Services      *runtime.Services
	Classifier    *Classifier
	ChunkerConfig chunker.Config
	Logger        *slog.Logger
}

// ingestionService coordinates the document pipeline:
// chunk -> embed -> classify -> index, with status transitions persisted at
// every stage. The document store is only ever written by one pipeline run
// per document, enforced by a document-scoped distributed lock.
type ingestionService struct {
	documentStore driven.DocumentStore
	chunkStore    driven.ChunkStore
	vectorIndex   driven.VectorIndex
	taskQueue     driven.TaskQueue
	lock          driven.DistributedLock
	services      *runtime.Services
	classifier    *Classifier
	chunks        *chunker.Chunker
	logger        *slog.Logger
}

// NewIngestionService creates a new ingestion service.
func NewIngestionService(cfg IngestionConfig) driving.IngestionService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ingestionService{
		documentStore: cfg.DocumentStore,
		chunkStore:    cfg.ChunkStore,
		vectorIndex:   cfg.VectorIndex,
		taskQueue:     cfg.TaskQueue,
		lock:          cfg.Lock,
		services:      cfg.Services,
		classifier:    cfg.Classifier,
		chunks:        chunker.New(cfg.ChunkerConfig),
		logger:        logger,
	}
}

// SubmitDocument registers an extracted document and queues its pipeline
// run.
func (s *ingestionService) SubmitDocument(ctx context.Context, in driving.ExtractedDocument) (*domain.Document, error) {
	if !domain.ValidSchemaType(in.SchemaType) {
		return nil, fmt.Errorf("%w: unsupported schema type %q", domain.ErrInvalidInput, in.SchemaType)
	}
	if in.Text == "" {
		return nil, fmt.Errorf("%w: empty document text", domain.ErrInvalidInput)
	}

	text := in.Text
	if len(in.PageBoundaries) == 0 {
		// Offsets only stay valid against the stored text, so whitespace
		// normalisation is skipped when page boundaries reference the raw
		// extraction.
		text = chunker.NormalizeText(text)
	}

	now := time.Now()
	doc := &domain.Document{
		ID:             domain.GenerateID(),
		Title:          in.Title,
		SourceFilename: in.SourceFilename,
		SchemaType:     in.SchemaType,
		Status:         domain.StatusQueued,
		SourceText:     text,
		PageBoundaries: in.PageBoundaries,
		Metadata:       in.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.documentStore.Save(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}

	if err := s.taskQueue.Enqueue(ctx, domain.NewProcessDocumentTask(doc.ID)); err != nil {
		return nil, fmt.Errorf("enqueue processing task: %w", err)
	}

	s.logger.Info("document submitted", "document_id", doc.ID, "schema_type", doc.SchemaType)
	return doc, nil
}

// ProcessDocument runs the pipeline for one document. At most one run per
// document is active at a time; a concurrent attempt is rejected with
// ErrProcessingInProgress rather than interleaved.
func (s *ingestionService) ProcessDocument(ctx context.Context, documentID string) error {
	lockName := documentLockPrefix + documentID
	acquired, err := s.lock.Acquire(ctx, lockName, documentLockTTL)
	if err != nil {
		return fmt.Errorf("acquire document lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("%w: document %s", domain.ErrProcessingInProgress, documentID)
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx), lockName); err != nil {
			s.logger.Warn("failed to release document lock", "document_id", documentID, "error", err)
		}
	}()

	doc, err := s.documentStore.Get(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}

	startTime := time.Now()
	s.logger.Info("processing document", "document_id", doc.ID, "schema_type", doc.SchemaType)

	// Stage: chunking. A re-run replaces the previous chunk set; index
	// entries go first so none outlives its chunk row.
	if err := s.setStatus(ctx, doc.ID, domain.StatusChunking); err != nil {
		return err
	}
	segments := s.chunks.Chunk(doc.SourceText)
	if len(segments) == 0 {
		return s.failStage(ctx, doc.ID, StageChunking, errors.New("no chunks produced"))
	}

	if err := s.vectorIndex.DeleteByDocument(ctx, doc.ID); err != nil {
		return s.failStage(ctx, doc.ID, StageChunking, err)
	}
	if err := s.chunkStore.DeleteByDocument(ctx, doc.ID); err != nil {
		return s.failStage(ctx, doc.ID, StageChunking, err)
	}

	now := time.Now()
	chunks := make([]*domain.Chunk, len(segments))
	for i, seg := range segments {
		chunks[i] = &domain.Chunk{
			ID:         domain.GenerateID(),
			DocumentID: doc.ID,
			Position:   seg.Position,
			Content:    seg.Content,
			Page:       doc.PageForOffset(seg.StartOffset),
			StartChar:  seg.StartOffset,
			EndChar:    seg.EndOffset,
			CreatedAt:  now,
		}
	}
	if err := s.chunkStore.SaveBatch(ctx, chunks); err != nil {
		return s.failStage(ctx, doc.ID, StageChunking, err)
	}

	// Stage: embedding
	if err := s.setStatus(ctx, doc.ID, domain.StatusEmbedding); err != nil {
		return err
	}
	embeddingService := s.services.EmbeddingService()
	if embeddingService == nil {
		return s.failStage(ctx, doc.ID, StageEmbedding, domain.ErrModelUnavailable)
	}

	entries, embedErrs := s.embedChunks(ctx, embeddingService, doc, chunks)
	if len(entries) == 0 {
		return s.failStage(ctx, doc.ID, StageEmbedding, fmt.Errorf("all %d chunks failed to embed", len(chunks)))
	}
	for _, itemErr := range embedErrs {
		// Partial-failure tolerance: a bad item does not invalidate its
		// siblings, but it is reported.
		s.logger.Warn("chunk failed to embed", "document_id", doc.ID, "error", itemErr)
	}

	if err := s.vectorIndex.UpsertBatch(ctx, entries); err != nil {
		return s.failStage(ctx, doc.ID, StageIndexing, err)
	}

	// Stage: classifying
	if err := s.setStatus(ctx, doc.ID, domain.StatusClassifying); err != nil {
		return err
	}
	if err := s.classifyChunks(ctx, doc, chunks); err != nil {
		return s.failStage(ctx, doc.ID, StageClassifying, err)
	}

	// Only now does the document become searchable: vector queries filter
	// on completed status, so no partially-indexed document leaks out.
	if err := s.setStatus(ctx, doc.ID, domain.StatusCompleted); err != nil {
		return err
	}

	s.logger.Info("document processed",
		"document_id", doc.ID,
		"chunks", len(chunks),
		"embedded", len(entries),
		"embed_errors", len(embedErrs),
		"duration", time.Since(startTime),
	)
	return nil
}

// Reclassify re-runs schema classification for a completed document.
// Manual mappings survive; prior automatic mappings are superseded.
func (s *ingestionService) Reclassify(ctx context.Context, documentID string) error {
	doc, err := s.documentStore.Get(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if doc.Status != domain.StatusCompleted {
		return fmt.Errorf("%w: document %s is %s, not completed", domain.ErrInvalidInput, doc.ID, doc.Status)
	}

	chunks, err := s.chunkStore.GetByDocument(ctx, doc.ID)
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}
	return s.classifyChunks(ctx, doc, chunks)
}

// DeleteDocument removes a document with its chunks, mappings and index
// entries. Index entries are removed first so none outlives its chunk row.
func (s *ingestionService) DeleteDocument(ctx context.Context, documentID string) error {
	if err := s.vectorIndex.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete index entries: %w", err)
	}
	if err := s.documentStore.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	s.logger.Info("document deleted", "document_id", documentID)
	return nil
}

// embedChunks embeds chunks in batches with per-item fault isolation: a
// failing batch is retried item by item, and only the failing items are
// dropped.
func (s *ingestionService) embedChunks(ctx context.Context, embeddingService driven.EmbeddingService, doc *domain.Document, chunks []*domain.Chunk) ([]driven.VectorEntry, []error) {
	var entries []driven.VectorEntry
	var itemErrs []error
	model := embeddingService.Model()

	appendEntry := func(chunk *domain.Chunk, vector []float32) {
		entries = append(entries, driven.VectorEntry{
			ChunkID:    chunk.ID,
			DocumentID: doc.ID,
			SchemaType: doc.SchemaType,
			Model:      model,
			Vector:     vector,
		})
	}

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		vectors, err := embeddingService.Embed(ctx, texts)
		if err == nil && len(vectors) == len(batch) {
			for i, c := range batch {
				appendEntry(c, vectors[i])
			}
			continue
		}

		// Batch failed; isolate the bad items.
		for _, c := range batch {
			vector, itemErr := embeddingService.EmbedQuery(ctx, c.Content)
			if itemErr != nil {
				itemErrs = append(itemErrs, fmt.Errorf("chunk %s: %w", c.ID, itemErr))
				continue
			}
			appendEntry(c, vector)
		}
	}

	return entries, itemErrs
}

func (s *ingestionService) classifyChunks(ctx context.Context, doc *domain.Document, chunks []*domain.Chunk) error {
	for _, chunk := range chunks {
		scores := s.classifier.Classify(chunk.Content, doc.SchemaType)
		if err := s.classifier.ApplyToTarget(ctx, domain.MappingTargetChunk, chunk.ID, scores); err != nil {
			return fmt.Errorf("classify chunk %s: %w", chunk.ID, err)
		}
	}
	return nil
}

func (s *ingestionService) setStatus(ctx context.Context, documentID string, status domain.ProcessingStatus) error {
	if err := s.documentStore.UpdateStatus(ctx, documentID, status, "", ""); err != nil {
		return fmt.Errorf("update status to %s: %w", status, err)
	}
	return nil
}

// failStage marks the document failed with the stage identifier and
// returns the wrapped error. Pipeline errors become state, not panics.
func (s *ingestionService) failStage(ctx context.Context, documentID, stage string, err error) error {
	s.logger.Error("pipeline stage failed", "document_id", documentID, "stage", stage, "error", err)
	if updateErr := s.documentStore.UpdateStatus(context.WithoutCancel(ctx), documentID, domain.StatusFailed, stage, err.Error()); updateErr != nil {
		s.logger.Error("failed to mark document failed", "document_id", documentID, "error", updateErr)
	}
	return fmt.Errorf("%w: stage %s: %v", domain.ErrProcessingFailed, stage, err)
}
