package driving

import (
	"context"

	"github.com/veridian-labs/regcore/internal/core/domain"
)

// GapService computes requirement coverage against the processed corpus.
type GapService interface {
	// Analyze compares a requirement set's schema mappings against the
	// elements actually covered by completed documents.
	Analyze(ctx context.Context, requirementSetID string) (*domain.GapAnalysisResult, error)
}

// ReportService manages compliance report generation jobs.
type ReportService interface {
	// RequestReport creates a queued report job and enqueues its task.
	RequestReport(ctx context.Context, requirementSetID, templateID string) (*domain.ReportJob, error)

	// GenerateReport drives the job state machine to a terminal state.
	// Called by the worker.
	GenerateReport(ctx context.Context, jobID string) error

	// CancelJob flags a running job; it stops at the next section boundary.
	CancelJob(ctx context.Context, jobID string) error

	// GetJob returns the job with its progress and sections.
	GetJob(ctx context.Context, jobID string) (*domain.ReportJob, error)
}
