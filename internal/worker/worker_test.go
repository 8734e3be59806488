package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/veridian-labs/regcore/internal/core/domain"
	"github.com/veridian-labs/regcore/internal/core/ports/driven/mocks"
	"github.com/veridian-labs/regcore/internal/core/ports/driving"
)

// stubIngestion implements driving.IngestionService for worker tests
type stubIngestion struct {
	mu        sync.Mutex
	processed []string
	failWith  error
}

func (s *stubIngestion) SubmitDocument(ctx context.Context, doc driving.ExtractedDocument) (*domain.Document, error) {
	return nil, errors.New("not used")
}

func (s *stubIngestion) ProcessDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.processed = append(s.processed, documentID)
	return nil
}

func (s *stubIngestion) Reclassify(ctx context.Context, documentID string) error { return nil }

func (s *stubIngestion) DeleteDocument(ctx context.Context, documentID string) error { return nil }

func (s *stubIngestion) processedDocs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.processed...)
}

// stubReports implements driving.ReportService for worker tests
type stubReports struct {
	mu        sync.Mutex
	generated []string
	failWith  error
}

func (s *stubReports) RequestReport(ctx context.Context, requirementSetID, templateID string) (*domain.ReportJob, error) {
	return nil, errors.New("not used")
}

func (s *stubReports) GenerateReport(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.generated = append(s.generated, jobID)
	return nil
}

func (s *stubReports) CancelJob(ctx context.Context, jobID string) error { return nil }

func (s *stubReports) GetJob(ctx context.Context, jobID string) (*domain.ReportJob, error) {
	return nil, domain.ErrNotFound
}

func (s *stubReports) generatedJobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.generated...)
}

func newTestWorker(queue *mocks.MockTaskQueue, ingestion *stubIngestion, reports *stubReports) *Worker {
	return New(Config{
		TaskQueue:      queue,
		Ingestion:      ingestion,
		Reports:        reports,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Concurrency:    1,
		DequeueTimeout: 1,
	})
}

// waitFor polls cond until it returns true or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestWorkerProcessesDocumentTask(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	ingestion := &stubIngestion{}
	reports := &stubReports{}

	task := domain.NewProcessDocumentTask("doc-1")
	if err := queue.Enqueue(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	w := newTestWorker(queue, ingestion, reports)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	waitFor(t, func() bool {
		got, _ := queue.GetTask(context.Background(), task.ID)
		return got != nil && got.Status == domain.TaskStatusCompleted
	})

	if docs := ingestion.processedDocs(); len(docs) != 1 || docs[0] != "doc-1" {
		t.Errorf("expected doc-1 processed, got %v", docs)
	}
}

func TestWorkerProcessesReportTask(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	ingestion := &stubIngestion{}
	reports := &stubReports{}

	task := domain.NewGenerateReportTask("job-1")
	if err := queue.Enqueue(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	w := newTestWorker(queue, ingestion, reports)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	waitFor(t, func() bool {
		got, _ := queue.GetTask(context.Background(), task.ID)
		return got != nil && got.Status == domain.TaskStatusCompleted
	})

	if jobs := reports.generatedJobs(); len(jobs) != 1 || jobs[0] != "job-1" {
		t.Errorf("expected job-1 generated, got %v", jobs)
	}
}

func TestWorkerNacksRetryableFailure(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	ingestion := &stubIngestion{failWith: fmt.Errorf("%w: embedding gateway down", domain.ErrProcessingFailed)}
	reports := &stubReports{}

	task := domain.NewProcessDocumentTask("doc-1")
	task.MaxAttempts = 1
	if err := queue.Enqueue(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	w := newTestWorker(queue, ingestion, reports)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	waitFor(t, func() bool {
		got, _ := queue.GetTask(context.Background(), task.ID)
		return got != nil && got.Status == domain.TaskStatusFailed
	})

	got, err := queue.GetTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Error == "" {
		t.Error("expected failure reason on task")
	}
}

func TestWorkerAcksPermanentRejection(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	ingestion := &stubIngestion{failWith: fmt.Errorf("document gone: %w", domain.ErrNotFound)}
	reports := &stubReports{}

	task := domain.NewProcessDocumentTask("doc-1")
	if err := queue.Enqueue(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	w := newTestWorker(queue, ingestion, reports)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	// Permanent rejections are acked, not retried
	waitFor(t, func() bool {
		got, _ := queue.GetTask(context.Background(), task.ID)
		return got != nil && got.Status == domain.TaskStatusCompleted
	})

	got, _ := queue.GetTask(context.Background(), task.ID)
	if got.Attempts != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", got.Attempts)
	}
}

func TestWorkerUnknownTaskType(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	ingestion := &stubIngestion{}
	reports := &stubReports{}

	task := domain.NewTask(domain.TaskType("defragment_index"), nil)
	task.MaxAttempts = 1
	if err := queue.Enqueue(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	w := newTestWorker(queue, ingestion, reports)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	waitFor(t, func() bool {
		got, _ := queue.GetTask(context.Background(), task.ID)
		return got != nil && got.Status == domain.TaskStatusFailed
	})
}

func TestWorkerStopIsIdempotent(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	w := newTestWorker(queue, &stubIngestion{}, &stubReports{})

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	w.Stop()
	w.Stop()

	health := w.Health(context.Background())
	if health.Running {
		t.Error("expected worker to report not running after stop")
	}
	if !health.QueueHealth {
		t.Error("expected healthy queue")
	}
}

func TestWorkerHealth(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	w := newTestWorker(queue, &stubIngestion{}, &stubReports{})

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	health := w.Health(context.Background())
	if !health.Running {
		t.Error("expected worker to report running")
	}
	if !health.QueueHealth {
		t.Error("expected healthy queue")
	}
}
