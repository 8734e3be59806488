package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/veridian-labs/regcore/internal/core/domain"
	"github.com/veridian-labs/regcore/internal/core/ports/driven/mocks"
	"github.com/veridian-labs/regcore/internal/core/ports/driving"
)

// stubGap returns a canned gap analysis.
type stubGap struct {
	result *domain.GapAnalysisResult
	err    error
}

func (s *stubGap) Analyze(ctx context.Context, requirementSetID string) (*domain.GapAnalysisResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

// stubQA answers per question, with per-question failure injection.
type stubQA struct {
	failOn  map[string]bool
	answers []string
}

func (s *stubQA) Answer(ctx context.Context, question string, opts driving.AnswerOptions) (*domain.RAGResponse, error) {
	if s.failOn[question] {
		return nil, errors.New("generation failed")
	}
	s.answers = append(s.answers, question)
	return &domain.RAGResponse{
		ID:         domain.GenerateID(),
		Question:   question,
		Answer:     "answer to: " + question,
		Confidence: 0.8,
		Citations:  []domain.Citation{{ChunkID: "chunk-1", DocumentID: "doc-1"}},
		CreatedAt:  time.Now(),
	}, nil
}

func (s *stubQA) AnswerBatch(ctx context.Context, questions []string, opts driving.AnswerOptions) []driving.BatchAnswer {
	out := make([]driving.BatchAnswer, len(questions))
	for i, q := range questions {
		resp, err := s.Answer(ctx, q, opts)
		out[i] = driving.BatchAnswer{Question: q, Response: resp, Err: err}
	}
	return out
}

type reportFixture struct {
	reportStore      *mocks.MockReportStore
	requirementStore *mocks.MockRequirementStore
	taskQueue        *mocks.MockTaskQueue
	renderer         *mocks.MockReportRenderer
	gap              *stubGap
	qa               *stubQA
	svc              driving.ReportService
}

func newReportFixture() *reportFixture {
	f := &reportFixture{
		reportStore:      mocks.NewMockReportStore(),
		requirementStore: mocks.NewMockRequirementStore(),
		taskQueue:        mocks.NewMockTaskQueue(),
		renderer:         mocks.NewMockReportRenderer(),
		gap: &stubGap{result: &domain.GapAnalysisResult{
			CoveragePercent: 70, TotalRequirements: 10, CoveredRequirements: 7,
		}},
		qa: &stubQA{failOn: map[string]bool{}},
	}
	f.svc = NewReportService(ReportConfig{
		ReportStore:      f.reportStore,
		RequirementStore: f.requirementStore,
		TaskQueue:        f.taskQueue,
		Renderer:         f.renderer,
		Gap:              f.gap,
		QA:               f.qa,
	})
	return f
}

func (f *reportFixture) seedSetAndTemplate(t *testing.T) (*domain.RequirementSet, *domain.ReportTemplate) {
	t.Helper()
	ctx := context.Background()

	set := &domain.RequirementSet{
		ID:         "set-1",
		Name:       "Client requirements",
		SchemaType: domain.SchemaTypeEUESRS,
		Status:     domain.StatusCompleted,
		CreatedAt:  time.Now(),
	}
	if err := f.requirementStore.SaveSet(ctx, set); err != nil {
		t.Fatalf("save set: %v", err)
	}

	tpl := &domain.ReportTemplate{
		ID:         "tpl-1",
		Name:       "CSRD readiness report",
		SchemaType: domain.SchemaTypeEUESRS,
		Sections: []domain.TemplateSection{
			{ID: "sec-1", Title: "Climate", Question: "What climate disclosures exist?", ElementCodes: []string{"ESRS-E1"}},
			{ID: "sec-2", Title: "Workforce", Question: "What workforce disclosures exist?", ElementCodes: []string{"ESRS-S1"}},
			{ID: "sec-3", Title: "Governance", Question: "What governance disclosures exist?", ElementCodes: []string{"ESRS-G1"}},
		},
	}
	if err := f.reportStore.SaveTemplate(ctx, tpl); err != nil {
		t.Fatalf("save template: %v", err)
	}
	return set, tpl
}

func TestRequestReport_QueuesJob(t *testing.T) {
	f := newReportFixture()
	f.seedSetAndTemplate(t)

	job, err := f.svc.RequestReport(context.Background(), "set-1", "tpl-1")
	if err != nil {
		t.Fatalf("RequestReport failed: %v", err)
	}
	if job.State != domain.ReportStateQueued {
		t.Errorf("state = %s, want %s", job.State, domain.ReportStateQueued)
	}

	task := f.taskQueue.LastEnqueued()
	if task == nil || task.Type != domain.TaskTypeGenerateReport {
		t.Fatalf("generate_report task not enqueued: %+v", task)
	}
	if task.JobID() != job.ID {
		t.Errorf("task job = %s, want %s", task.JobID(), job.ID)
	}
}

func TestRequestReport_SchemaMismatch(t *testing.T) {
	f := newReportFixture()
	_, tpl := f.seedSetAndTemplate(t)
	tpl.SchemaType = domain.SchemaTypeUKSRD
	_ = f.reportStore.SaveTemplate(context.Background(), tpl)

	_, err := f.svc.RequestReport(context.Background(), "set-1", "tpl-1")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestGenerateReport_Completes(t *testing.T) {
	f := newReportFixture()
	_, tpl := f.seedSetAndTemplate(t)
	ctx := context.Background()

	job, _ := f.svc.RequestReport(ctx, "set-1", "tpl-1")
	if err := f.svc.GenerateReport(ctx, job.ID); err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}

	final, err := f.svc.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if final.State != domain.ReportStateCompleted {
		t.Fatalf("state = %s, want %s (error: %s)", final.State, domain.ReportStateCompleted, final.Error)
	}
	if final.Progress != 100 {
		t.Errorf("progress = %d, want 100", final.Progress)
	}
	if final.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
	if final.Gap == nil || final.Gap.CoveragePercent != 70 {
		t.Error("gap analysis not attached to the job")
	}

	// Sections come out in template order with citations attached.
	if len(final.Sections) != len(tpl.Sections) {
		t.Fatalf("sections = %d, want %d", len(final.Sections), len(tpl.Sections))
	}
	for i, sec := range final.Sections {
		if sec.SectionID != tpl.Sections[i].ID {
			t.Errorf("section %d = %s, want %s", i, sec.SectionID, tpl.Sections[i].ID)
		}
		if len(sec.Citations) == 0 {
			t.Errorf("section %s has no citations", sec.SectionID)
		}
	}

	if f.renderer.CallCount() != 1 {
		t.Errorf("renderer called %d times, want 1", f.renderer.CallCount())
	}

	// Every intermediate state was persisted.
	states := f.reportStore.SavedStates()
	for _, want := range []domain.ReportState{
		domain.ReportStateQueued,
		domain.ReportStateProcessingRequirements,
		domain.ReportStateGeneratingContent,
		domain.ReportStateCompilingReport,
		domain.ReportStateCreatingPDF,
		domain.ReportStateCompleted,
	} {
		found := false
		for _, s := range states {
			if s == want {
				found = true
			}
		}
		if !found {
			t.Errorf("state %s was never persisted", want)
		}
	}
}

func TestGenerateReport_SectionFailureFailsJob(t *testing.T) {
	f := newReportFixture()
	f.seedSetAndTemplate(t)
	ctx := context.Background()

	f.qa.failOn["What workforce disclosures exist?"] = true

	job, _ := f.svc.RequestReport(ctx, "set-1", "tpl-1")
	err := f.svc.GenerateReport(ctx, job.ID)
	if err == nil {
		t.Fatal("expected error")
	}

	final, _ := f.svc.GetJob(ctx, job.ID)
	if final.State != domain.ReportStateFailed {
		t.Fatalf("state = %s, want %s", final.State, domain.ReportStateFailed)
	}
	if final.CurrentStep != "section:sec-2" {
		t.Errorf("CurrentStep = %q, want %q", final.CurrentStep, "section:sec-2")
	}
	if final.Error == "" {
		t.Error("error message not recorded")
	}
	// The first section's work is retained on the failed job.
	if len(final.Sections) != 1 || final.Sections[0].SectionID != "sec-1" {
		t.Errorf("completed sections not retained: %+v", final.Sections)
	}
	if f.renderer.CallCount() != 0 {
		t.Error("renderer called despite section failure")
	}
}

func TestGenerateReport_CancellationObservedAtSectionBoundary(t *testing.T) {
	f := newReportFixture()
	f.seedSetAndTemplate(t)
	ctx := context.Background()

	job, _ := f.svc.RequestReport(ctx, "set-1", "tpl-1")

	// Flag cancellation once the first section has been persisted; the
	// compiler must stop before starting the next one.
	f.reportStore.SetSaveHook(func(j *domain.ReportJob) {
		if len(j.Sections) == 1 {
			_ = f.reportStore.MarkCancelled(ctx, j.ID)
		}
	})

	err := f.svc.GenerateReport(ctx, job.ID)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if !strings.Contains(err.Error(), domain.ErrJobCancelled.Error()) {
		t.Errorf("error does not report cancellation: %v", err)
	}

	final, _ := f.svc.GetJob(ctx, job.ID)
	if final.State != domain.ReportStateFailed {
		t.Errorf("state = %s, want %s", final.State, domain.ReportStateFailed)
	}
	if len(f.qa.answers) != 1 {
		t.Errorf("sections generated after cancellation: %d answers", len(f.qa.answers))
	}
}

func TestGenerateReport_RenderFailureKeepsSections(t *testing.T) {
	f := newReportFixture()
	_, tpl := f.seedSetAndTemplate(t)
	ctx := context.Background()

	f.renderer.SetFailNext(true)

	job, _ := f.svc.RequestReport(ctx, "set-1", "tpl-1")
	err := f.svc.GenerateReport(ctx, job.ID)
	if err == nil {
		t.Fatal("expected render error")
	}

	final, _ := f.svc.GetJob(ctx, job.ID)
	if final.State != domain.ReportStateFailed {
		t.Errorf("state = %s, want %s", final.State, domain.ReportStateFailed)
	}
	if final.CurrentStep != "creating pdf" {
		t.Errorf("CurrentStep = %q, want %q", final.CurrentStep, "creating pdf")
	}
	// The compiled textual report survives the render failure.
	if len(final.Sections) != len(tpl.Sections) {
		t.Errorf("sections lost on render failure: %d, want %d", len(final.Sections), len(tpl.Sections))
	}
}

func TestGenerateReport_UnprocessedRequirementSet(t *testing.T) {
	f := newReportFixture()
	set, _ := f.seedSetAndTemplate(t)
	ctx := context.Background()

	job, _ := f.svc.RequestReport(ctx, "set-1", "tpl-1")

	set.Status = domain.StatusClassifying
	_ = f.requirementStore.SaveSet(ctx, set)

	err := f.svc.GenerateReport(ctx, job.ID)
	if err == nil {
		t.Fatal("expected error for unprocessed requirement set")
	}

	final, _ := f.svc.GetJob(ctx, job.ID)
	if final.State != domain.ReportStateFailed {
		t.Errorf("state = %s, want %s", final.State, domain.ReportStateFailed)
	}
	if final.CurrentStep != "requirements" {
		t.Errorf("CurrentStep = %q, want %q", final.CurrentStep, "requirements")
	}
}

func TestGenerateReport_TerminalJobIsNoOp(t *testing.T) {
	f := newReportFixture()
	f.seedSetAndTemplate(t)
	ctx := context.Background()

	job, _ := f.svc.RequestReport(ctx, "set-1", "tpl-1")
	if err := f.svc.GenerateReport(ctx, job.ID); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	before, _ := f.svc.GetJob(ctx, job.ID)

	// A re-delivered task for a finished job changes nothing.
	if err := f.svc.GenerateReport(ctx, job.ID); err != nil {
		t.Fatalf("re-run errored: %v", err)
	}
	after, _ := f.svc.GetJob(ctx, job.ID)
	if after.State != before.State || after.UpdatedAt != before.UpdatedAt {
		t.Error("terminal job was modified by a re-delivered task")
	}
	if f.renderer.CallCount() != 1 {
		t.Errorf("renderer called again on terminal job")
	}
}

func TestCancelJob_TerminalJobRejected(t *testing.T) {
	f := newReportFixture()
	f.seedSetAndTemplate(t)
	ctx := context.Background()

	job, _ := f.svc.RequestReport(ctx, "set-1", "tpl-1")
	if err := f.svc.GenerateReport(ctx, job.ID); err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}

	err := f.svc.CancelJob(ctx, job.ID)
	if !errors.Is(err, domain.ErrJobTerminal) {
		t.Errorf("expected ErrJobTerminal, got %v", err)
	}
}

func TestReportStateMachine_Transitions(t *testing.T) {
	tests := []struct {
		state   domain.ReportState
		event   domain.ReportEvent
		want    domain.ReportState
		wantErr bool
	}{
		{domain.ReportStateQueued, domain.ReportEventPickup, domain.ReportStateProcessingRequirements, false},
		{domain.ReportStateProcessingRequirements, domain.ReportEventRequirementsReady, domain.ReportStateGeneratingContent, false},
		{domain.ReportStateGeneratingContent, domain.ReportEventSectionsGenerated, domain.ReportStateCompilingReport, false},
		{domain.ReportStateCompilingReport, domain.ReportEventCompiled, domain.ReportStateCreatingPDF, false},
		{domain.ReportStateCreatingPDF, domain.ReportEventRendered, domain.ReportStateCompleted, false},
		{domain.ReportStateQueued, domain.ReportEventFail, domain.ReportStateFailed, false},
		{domain.ReportStateCreatingPDF, domain.ReportEventFail, domain.ReportStateFailed, false},
		{domain.ReportStateQueued, domain.ReportEventRendered, domain.ReportStateQueued, true},
		{domain.ReportStateCompleted, domain.ReportEventPickup, domain.ReportStateCompleted, true},
		{domain.ReportStateFailed, domain.ReportEventFail, domain.ReportStateFailed, true},
	}

	for _, tt := range tests {
		got, err := domain.Transition(tt.state, tt.event)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Transition(%s, %s): expected error", tt.state, tt.event)
			}
			continue
		}
		if err != nil {
			t.Errorf("Transition(%s, %s): %v", tt.state, tt.event, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Transition(%s, %s) = %s, want %s", tt.state, tt.event, got, tt.want)
		}
	}
}
