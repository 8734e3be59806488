package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/veridian-labs/regcore/internal/core/domain"
	"github.com/veridian-labs/regcore/internal/core/ports/driven"
	"github.com/veridian-labs/regcore/internal/core/ports/driving"
)

// Ensure reportService implements ReportService
var _ driving.ReportService = (*reportService)(nil)

// ReportConfig holds dependencies for the report compiler.
type ReportConfig struct {
	ReportStore      driven.ReportStore
	RequirementStore driven.RequirementStore
	TaskQueue        driven.TaskQueue
	Renderer         driven.ReportRenderer
	Gap              driving.GapService
	QA               driving.QAService
	Logger           *slog.Logger
}

// reportService drives a report job through its state machine:
// Queued -> ProcessingRequirements -> GeneratingContent -> CompilingReport
// -> CreatingPDF -> Completed, Failed from any non-terminal state. The job
// is persisted after every transition; terminal states are immutable.
type reportService struct {
	reportStore      driven.ReportStore
	requirementStore driven.RequirementStore
	taskQueue        driven.TaskQueue
	renderer         driven.ReportRenderer
	gap              driving.GapService
	qa               driving.QAService
	logger           *slog.Logger
}

// NewReportService creates a new ReportService.
func NewReportService(cfg ReportConfig) driving.ReportService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &reportService{
		reportStore:      cfg.ReportStore,
		requirementStore: cfg.RequirementStore,
		taskQueue:        cfg.TaskQueue,
		renderer:         cfg.Renderer,
		gap:              cfg.Gap,
		qa:               cfg.QA,
		logger:           logger,
	}
}

// RequestReport validates the inputs, creates a queued job and enqueues
// its generation task.
func (s *reportService) RequestReport(ctx context.Context, requirementSetID, templateID string) (*domain.ReportJob, error) {
	set, err := s.requirementStore.GetSet(ctx, requirementSetID)
	if err != nil {
		return nil, fmt.Errorf("load requirement set: %w", err)
	}
	tpl, err := s.reportStore.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	if tpl.SchemaType != set.SchemaType {
		return nil, fmt.Errorf("%w: template schema %s does not match requirement set schema %s",
			domain.ErrInvalidInput, tpl.SchemaType, set.SchemaType)
	}
	if len(tpl.Sections) == 0 {
		return nil, fmt.Errorf("%w: template %s has no sections", domain.ErrInvalidInput, tpl.ID)
	}

	job := domain.NewReportJob(set.ID, tpl.ID, set.SchemaType)
	if err := s.reportStore.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("save report job: %w", err)
	}
	if err := s.taskQueue.Enqueue(ctx, domain.NewGenerateReportTask(job.ID)); err != nil {
		return nil, fmt.Errorf("enqueue report task: %w", err)
	}

	s.logger.Info("report requested", "job_id", job.ID, "template_id", tpl.ID)
	return job, nil
}

// CancelJob flags a running job. The compiler checks the flag at each
// section boundary, never mid-generation-call.
func (s *reportService) CancelJob(ctx context.Context, jobID string) error {
	job, err := s.reportStore.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.State.IsTerminal() {
		return fmt.Errorf("%w: job %s", domain.ErrJobTerminal, jobID)
	}
	return s.reportStore.MarkCancelled(ctx, jobID)
}

// GetJob returns the job with its progress and sections.
func (s *reportService) GetJob(ctx context.Context, jobID string) (*domain.ReportJob, error) {
	return s.reportStore.GetJob(ctx, jobID)
}

// GenerateReport drives one job to a terminal state. Called by the worker.
func (s *reportService) GenerateReport(ctx context.Context, jobID string) error {
	job, err := s.reportStore.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load report job: %w", err)
	}
	if job.State.IsTerminal() {
		// Re-delivered task for a finished job; nothing to do.
		return nil
	}

	startTime := time.Now()
	s.logger.Info("generating report", "job_id", job.ID)

	// Queued -> ProcessingRequirements
	if err := s.transition(ctx, job, domain.ReportEventPickup, "processing requirements", 5); err != nil {
		return err
	}

	set, err := s.requirementStore.GetSet(ctx, job.RequirementSetID)
	if err != nil {
		return s.fail(ctx, job, "requirements", err)
	}
	if set.Status != domain.StatusCompleted {
		return s.fail(ctx, job, "requirements", fmt.Errorf("requirement set %s is %s, not completed", set.ID, set.Status))
	}

	gap, err := s.gap.Analyze(ctx, set.ID)
	if err != nil {
		return s.fail(ctx, job, "gap analysis", err)
	}
	job.Gap = gap

	tpl, err := s.reportStore.GetTemplate(ctx, job.TemplateID)
	if err != nil {
		return s.fail(ctx, job, "template", err)
	}

	// ProcessingRequirements -> GeneratingContent
	if err := s.transition(ctx, job, domain.ReportEventRequirementsReady, "generating content", domain.ProgressForSections(0, len(tpl.Sections))); err != nil {
		return err
	}

	// One schema-scoped RAG query per template section. Any section
	// failure fails the whole job naming the section: a partial report is
	// never silently returned as complete.
	job.Sections = make([]*domain.ReportSection, 0, len(tpl.Sections))
	for i, section := range tpl.Sections {
		// Cancellation is observed at section boundaries only.
		if cancelled, err := s.isCancelled(ctx, job.ID); err != nil {
			return s.fail(ctx, job, sectionStep(section), err)
		} else if cancelled {
			return s.fail(ctx, job, sectionStep(section), domain.ErrJobCancelled)
		}

		job.CurrentStep = sectionStep(section)
		if err := s.reportStore.SaveJob(ctx, job); err != nil {
			return s.fail(ctx, job, sectionStep(section), err)
		}

		resp, err := s.qa.Answer(ctx, section.Question, driving.AnswerOptions{
			SchemaType:   job.SchemaType,
			ElementCodes: section.ElementCodes,
		})
		if err != nil {
			return s.fail(ctx, job, sectionStep(section), err)
		}

		job.Sections = append(job.Sections, &domain.ReportSection{
			SectionID:  section.ID,
			Title:      section.Title,
			Body:       resp.Answer,
			Confidence: resp.Confidence,
			Citations:  resp.Citations,
		})
		job.Progress = domain.ProgressForSections(i+1, len(tpl.Sections))
		if err := s.reportStore.SaveJob(ctx, job); err != nil {
			return s.fail(ctx, job, sectionStep(section), err)
		}
	}

	// GeneratingContent -> CompilingReport. Sections are already in
	// template order with citations attached; compiling fixes the final
	// ordering invariant.
	if err := s.transition(ctx, job, domain.ReportEventSectionsGenerated, "compiling report", 90); err != nil {
		return err
	}
	if len(job.Sections) != len(tpl.Sections) {
		return s.fail(ctx, job, "compiling report", fmt.Errorf("expected %d sections, compiled %d", len(tpl.Sections), len(job.Sections)))
	}

	// CompilingReport -> CreatingPDF, delegated to the external renderer.
	// A render failure fails the job but the compiled sections stay on the
	// record: the textual report is not invalidated.
	if err := s.transition(ctx, job, domain.ReportEventCompiled, "creating pdf", 95); err != nil {
		return err
	}
	if s.renderer != nil {
		if _, err := s.renderer.Render(ctx, job); err != nil {
			return s.fail(ctx, job, "creating pdf", err)
		}
	}

	// CreatingPDF -> Completed
	job.CurrentStep = ""
	job.Progress = 100
	if err := s.transition(ctx, job, domain.ReportEventRendered, "", 100); err != nil {
		return err
	}

	s.logger.Info("report completed",
		"job_id", job.ID,
		"sections", len(job.Sections),
		"duration", time.Since(startTime),
	)
	return nil
}

// transition applies an event and persists the job.
func (s *reportService) transition(ctx context.Context, job *domain.ReportJob, event domain.ReportEvent, step string, progress int) error {
	if err := job.Apply(event); err != nil {
		return err
	}
	job.CurrentStep = step
	if progress > job.Progress {
		job.Progress = progress
	}
	if err := s.reportStore.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("persist job state %s: %w", job.State, err)
	}
	return nil
}

// fail moves the job to Failed with the failing step identified.
func (s *reportService) fail(ctx context.Context, job *domain.ReportJob, step string, cause error) error {
	s.logger.Error("report job failed", "job_id", job.ID, "step", step, "error", cause)
	if err := job.Fail(step, cause.Error()); err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	if err := s.reportStore.SaveJob(context.WithoutCancel(ctx), job); err != nil {
		s.logger.Error("failed to persist failed job", "job_id", job.ID, "error", err)
	}
	return fmt.Errorf("report job %s failed at %s: %w", job.ID, step, cause)
}

func (s *reportService) isCancelled(ctx context.Context, jobID string) (bool, error) {
	current, err := s.reportStore.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	return current.Cancelled, nil
}

func sectionStep(section domain.TemplateSection) string {
	return "section:" + section.ID
}
