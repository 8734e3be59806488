package driven

import (
	"context"

	"github.com/veridian-labs/regcore/internal/core/domain"
)

// ReportStore handles report job and template persistence (PostgreSQL).
// Jobs are persisted after every state transition.
type ReportStore interface {
	// SaveJob creates or updates a report job
	SaveJob(ctx context.Context, job *domain.ReportJob) error

	// GetJob retrieves a report job by ID
	GetJob(ctx context.Context, id string) (*domain.ReportJob, error)

	// ListJobs retrieves jobs filtered by state (empty means all)
	ListJobs(ctx context.Context, state domain.ReportState, limit, offset int) ([]*domain.ReportJob, error)

	// MarkCancelled sets the cancellation flag on a job. The compiler
	// observes it at the next section boundary.
	MarkCancelled(ctx context.Context, id string) error

	// SaveTemplate creates or updates a report template
	SaveTemplate(ctx context.Context, tpl *domain.ReportTemplate) error

	// GetTemplate retrieves a template by ID
	GetTemplate(ctx context.Context, id string) (*domain.ReportTemplate, error)
}

// ResponseStore keeps the append-only history of generated answers.
type ResponseStore interface {
	// Save appends a RAG response. Responses are immutable once created.
	Save(ctx context.Context, resp *domain.RAGResponse) error

	// Get retrieves a response by ID
	Get(ctx context.Context, id string) (*domain.RAGResponse, error)

	// List retrieves recent responses, newest first
	List(ctx context.Context, limit, offset int) ([]*domain.RAGResponse, error)
}

// ReportRenderer converts a compiled report into a binary document.
// Rendering is an external collaborator: its failure does not invalidate
// the already-generated textual report.
type ReportRenderer interface {
	// Render produces the binary report (PDF) from compiled sections
	Render(ctx context.Context, job *domain.ReportJob) ([]byte, error)
}
