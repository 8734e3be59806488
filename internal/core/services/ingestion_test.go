package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/veridian-labs/regcore/internal/chunker"
	"github.com/veridian-labs/regcore/internal/core/domain"
	"github.com/veridian-labs/regcore/internal/core/ports/driven/mocks"
	"github.com/veridian-labs/regcore/internal/core/ports/driving"
	"github.com/veridian-labs/regcore/internal/runtime"
	"github.com/veridian-labs/regcore/internal/taxonomy"
)

type ingestionFixture struct {
	documentStore *mocks.MockDocumentStore
	chunkStore    *mocks.MockChunkStore
	vectorIndex   *mocks.MockVectorIndex
	taskQueue     *mocks.MockTaskQueue
	lock          *mocks.MockDistributedLock
	schemaStore   *mocks.MockSchemaStore
	embedding     *mocks.MockEmbeddingService
	services      *runtime.Services
	svc           driving.IngestionService
}

func newIngestionFixture() *ingestionFixture {
	f := &ingestionFixture{
		documentStore: mocks.NewMockDocumentStore(),
		chunkStore:    mocks.NewMockChunkStore(),
		vectorIndex:   mocks.NewMockVectorIndex(),
		taskQueue:     mocks.NewMockTaskQueue(),
		lock:          mocks.NewMockDistributedLock(),
		schemaStore:   mocks.NewMockSchemaStore(),
		embedding:     mocks.NewMockEmbeddingService(),
	}
	_ = f.schemaStore.SeedElements(context.Background(), taxonomy.All())
	f.services = runtime.NewServices(domain.NewRuntimeConfig("redis"))
	f.services.SetEmbeddingService(f.embedding)

	classifier := NewClassifier(DefaultClassifierConfig(), taxonomy.Version, taxonomy.All(), f.schemaStore)
	f.svc = NewIngestionService(IngestionConfig{
		DocumentStore: f.documentStore,
		ChunkStore:    f.chunkStore,
		VectorIndex:   f.vectorIndex,
		TaskQueue:     f.taskQueue,
		Lock:          f.lock,
		Services:      f.services,
		Classifier:    classifier,
		ChunkerConfig: chunker.Config{MaxChars: 200, Overlap: 40, PreserveSentences: true, PreserveParagraphs: true},
	})
	return f
}

func sampleDocument() driving.ExtractedDocument {
	return driving.ExtractedDocument{
		Title:          "Climate Disclosures 2025",
		SourceFilename: "climate-2025.pdf",
		SchemaType:     domain.SchemaTypeEUESRS,
		Text: "The company discloses gross Scope 1, Scope 2 and Scope 3 greenhouse gas emissions " +
			"in tonnes of CO2 equivalent. The transition plan targets a 42% reduction by 2030. " +
			"Energy consumption from fossil sources declined year over year. " +
			"Water withdrawal in areas of high water stress is reported separately. " +
			"Board oversight of sustainability matters is described in the governance section.",
	}
}

func TestSubmitDocument_QueuesProcessing(t *testing.T) {
	f := newIngestionFixture()

	doc, err := f.svc.SubmitDocument(context.Background(), sampleDocument())
	if err != nil {
		t.Fatalf("SubmitDocument failed: %v", err)
	}

	if doc.Status != domain.StatusQueued {
		t.Errorf("status = %s, want %s", doc.Status, domain.StatusQueued)
	}
	task := f.taskQueue.LastEnqueued()
	if task == nil {
		t.Fatal("no task enqueued")
	}
	if task.Type != domain.TaskTypeProcessDocument {
		t.Errorf("task type = %s, want %s", task.Type, domain.TaskTypeProcessDocument)
	}
	if task.DocumentID() != doc.ID {
		t.Errorf("task document = %s, want %s", task.DocumentID(), doc.ID)
	}
}

func TestSubmitDocument_InvalidInput(t *testing.T) {
	f := newIngestionFixture()

	tests := []struct {
		name string
		in   driving.ExtractedDocument
	}{
		{name: "bad schema type", in: driving.ExtractedDocument{SchemaType: "XX", Text: "text"}},
		{name: "empty text", in: driving.ExtractedDocument{SchemaType: domain.SchemaTypeEUESRS}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SubmitDocument(context.Background(), tt.in)
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestProcessDocument_CompletesPipeline(t *testing.T) {
	f := newIngestionFixture()
	ctx := context.Background()

	doc, err := f.svc.SubmitDocument(ctx, sampleDocument())
	if err != nil {
		t.Fatalf("SubmitDocument failed: %v", err)
	}

	if err := f.svc.ProcessDocument(ctx, doc.ID); err != nil {
		t.Fatalf("ProcessDocument failed: %v", err)
	}

	stored, err := f.documentStore.Get(ctx, doc.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.Status != domain.StatusCompleted {
		t.Errorf("status = %s, want %s", stored.Status, domain.StatusCompleted)
	}

	chunks, err := f.chunkStore.GetByDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetByDocument failed: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("no chunks persisted")
	}
	if f.vectorIndex.Count() != len(chunks) {
		t.Errorf("index entries = %d, want %d", f.vectorIndex.Count(), len(chunks))
	}

	// Chunk offsets must reconstruct the stored text exactly.
	for _, c := range chunks {
		if stored.SourceText[c.StartChar:c.EndChar] != c.Content {
			t.Errorf("chunk %d offsets do not match content", c.Position)
		}
	}

	// The document lock is released after the run.
	if f.lock.IsHeld("document:" + doc.ID) {
		t.Error("document lock still held after processing")
	}
}

func TestProcessDocument_RejectsConcurrentRun(t *testing.T) {
	f := newIngestionFixture()
	ctx := context.Background()

	doc, _ := f.svc.SubmitDocument(ctx, sampleDocument())
	f.lock.SetDenyAll(true)

	err := f.svc.ProcessDocument(ctx, doc.ID)
	if !errors.Is(err, domain.ErrProcessingInProgress) {
		t.Errorf("expected ErrProcessingInProgress, got %v", err)
	}
}

func TestProcessDocument_EmbeddingFailureRecordsStage(t *testing.T) {
	f := newIngestionFixture()
	ctx := context.Background()

	doc, _ := f.svc.SubmitDocument(ctx, sampleDocument())
	f.services.SetEmbeddingService(nil)

	err := f.svc.ProcessDocument(ctx, doc.ID)
	if !errors.Is(err, domain.ErrProcessingFailed) {
		t.Fatalf("expected ErrProcessingFailed, got %v", err)
	}

	stored, _ := f.documentStore.Get(ctx, doc.ID)
	if stored.Status != domain.StatusFailed {
		t.Errorf("status = %s, want %s", stored.Status, domain.StatusFailed)
	}
	if stored.FailedStage != StageEmbedding {
		t.Errorf("failed stage = %q, want %q", stored.FailedStage, StageEmbedding)
	}
	if stored.Error == "" {
		t.Error("error message not recorded")
	}
}

func TestProcessDocument_BatchFailureFallsBackPerItem(t *testing.T) {
	f := newIngestionFixture()
	ctx := context.Background()

	doc, _ := f.svc.SubmitDocument(ctx, sampleDocument())

	// The batch call fails once; per-item embedding then succeeds, so the
	// run still completes.
	f.embedding.SetFailNext(true)
	if err := f.svc.ProcessDocument(ctx, doc.ID); err != nil {
		t.Fatalf("ProcessDocument failed: %v", err)
	}

	stored, _ := f.documentStore.Get(ctx, doc.ID)
	if stored.Status != domain.StatusCompleted {
		t.Errorf("status = %s, want %s", stored.Status, domain.StatusCompleted)
	}
}

func TestProcessDocument_ReprocessReplacesChunks(t *testing.T) {
	f := newIngestionFixture()
	ctx := context.Background()

	doc, _ := f.svc.SubmitDocument(ctx, sampleDocument())
	if err := f.svc.ProcessDocument(ctx, doc.ID); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	firstChunks, _ := f.chunkStore.GetByDocument(ctx, doc.ID)

	if err := f.svc.ProcessDocument(ctx, doc.ID); err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	secondChunks, _ := f.chunkStore.GetByDocument(ctx, doc.ID)

	if len(secondChunks) != len(firstChunks) {
		t.Errorf("chunk count changed across runs: %d vs %d", len(secondChunks), len(firstChunks))
	}
	for _, old := range firstChunks {
		for _, cur := range secondChunks {
			if cur.ID == old.ID {
				t.Fatalf("chunk %s survived reprocessing", old.ID)
			}
		}
	}
	if f.vectorIndex.Count() != len(secondChunks) {
		t.Errorf("stale index entries remain: %d entries, %d chunks", f.vectorIndex.Count(), len(secondChunks))
	}
}

func TestReclassify_RequiresCompletedDocument(t *testing.T) {
	f := newIngestionFixture()
	ctx := context.Background()

	doc, _ := f.svc.SubmitDocument(ctx, sampleDocument())

	err := f.svc.Reclassify(ctx, doc.ID)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for a queued document, got %v", err)
	}
}

func TestReclassify_ManualMappingsSurvive(t *testing.T) {
	f := newIngestionFixture()
	ctx := context.Background()

	doc, _ := f.svc.SubmitDocument(ctx, sampleDocument())
	if err := f.svc.ProcessDocument(ctx, doc.ID); err != nil {
		t.Fatalf("ProcessDocument failed: %v", err)
	}

	chunks, _ := f.chunkStore.GetByDocument(ctx, doc.ID)
	if len(chunks) == 0 {
		t.Fatal("no chunks")
	}
	target := chunks[0].ID

	classifier := NewClassifier(DefaultClassifierConfig(), taxonomy.Version, taxonomy.All(), f.schemaStore)
	if _, err := classifier.AddManualMapping(ctx, domain.MappingTargetChunk, target, "ESRS-G1"); err != nil {
		t.Fatalf("AddManualMapping failed: %v", err)
	}

	if err := f.svc.Reclassify(ctx, doc.ID); err != nil {
		t.Fatalf("Reclassify failed: %v", err)
	}

	mappings, _ := f.schemaStore.GetMappings(ctx, domain.MappingTargetChunk, target)
	found := false
	for _, m := range mappings {
		if m.MappingType == domain.MappingTypeManual && m.ElementCode == "ESRS-G1" {
			found = true
		}
	}
	if !found {
		t.Error("manual mapping did not survive reclassification")
	}
}

func TestDeleteDocument_RemovesIndexEntries(t *testing.T) {
	f := newIngestionFixture()
	ctx := context.Background()

	doc, _ := f.svc.SubmitDocument(ctx, sampleDocument())
	if err := f.svc.ProcessDocument(ctx, doc.ID); err != nil {
		t.Fatalf("ProcessDocument failed: %v", err)
	}

	if err := f.svc.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("DeleteDocument failed: %v", err)
	}
	if f.vectorIndex.Count() != 0 {
		t.Errorf("index entries remain after delete: %d", f.vectorIndex.Count())
	}
	if _, err := f.documentStore.Get(ctx, doc.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("document still present after delete: %v", err)
	}
}

func TestSubmitDocument_NormalizesTextWithoutPageBoundaries(t *testing.T) {
	f := newIngestionFixture()

	in := sampleDocument()
	in.Text = "First paragraph.\r\n\r\n\r\n\r\nSecond  paragraph."
	doc, err := f.svc.SubmitDocument(context.Background(), in)
	if err != nil {
		t.Fatalf("SubmitDocument failed: %v", err)
	}
	if strings.Contains(doc.SourceText, "\r") {
		t.Error("line endings not normalized")
	}
	if strings.Contains(doc.SourceText, "\n\n\n") {
		t.Error("blank runs not collapsed")
	}
}

func TestSubmitDocument_KeepsRawTextWithPageBoundaries(t *testing.T) {
	f := newIngestionFixture()

	in := sampleDocument()
	in.Text = "Page one text.\r\nMore."
	in.PageBoundaries = []int{0}
	doc, err := f.svc.SubmitDocument(context.Background(), in)
	if err != nil {
		t.Fatalf("SubmitDocument failed: %v", err)
	}
	if doc.SourceText != in.Text {
		t.Error("text was altered despite page boundaries referencing raw offsets")
	}
}
