package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/veridian-labs/regcore/internal/core/domain"
	"github.com/veridian-labs/regcore/internal/core/ports/driven"
)

// Verify interface compliance
var (
	_ driven.ReportStore   = (*ReportStore)(nil)
	_ driven.ResponseStore = (*ResponseStore)(nil)
)

// ReportStore implements driven.ReportStore using PostgreSQL
type ReportStore struct {
	db *DB
}

// NewReportStore creates a new ReportStore
func NewReportStore(db *DB) *ReportStore {
	return &ReportStore{db: db}
}

// SaveJob creates or updates a report job. The cancelled flag is OR-ed with
// the stored value so a concurrent MarkCancelled is never overwritten by a
// stale in-memory job.
func (s *ReportStore) SaveJob(ctx context.Context, job *domain.ReportJob) error {
	sections, err := json.Marshal(job.Sections)
	if err != nil {
		return fmt.Errorf("failed to marshal sections: %w", err)
	}
	gap, err := json.Marshal(job.Gap)
	if err != nil {
		return fmt.Errorf("failed to marshal gap result: %w", err)
	}

	query := `
		INSERT INTO report_jobs (id, requirement_set_id, template_id, schema_type, state, current_step, progress, error, cancelled, sections, gap, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			current_step = EXCLUDED.current_step,
			progress = EXCLUDED.progress,
			error = EXCLUDED.error,
			cancelled = report_jobs.cancelled OR EXCLUDED.cancelled,
			sections = EXCLUDED.sections,
			gap = EXCLUDED.gap,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at
	`

	_, err = s.db.ExecContext(ctx, query,
		job.ID,
		job.RequirementSetID,
		job.TemplateID,
		job.SchemaType,
		job.State,
		job.CurrentStep,
		job.Progress,
		job.Error,
		job.Cancelled,
		sections,
		gap,
		job.CreatedAt,
		job.UpdatedAt,
		NullTime(job.CompletedAt),
	)
	return err
}

// GetJob retrieves a report job by ID
func (s *ReportStore) GetJob(ctx context.Context, id string) (*domain.ReportJob, error) {
	query := jobSelect + ` WHERE id = $1`

	job, err := scanReportJob(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return job, err
}

// ListJobs retrieves jobs filtered by state (empty means all), newest first
func (s *ReportStore) ListJobs(ctx context.Context, state domain.ReportState, limit, offset int) ([]*domain.ReportJob, error) {
	query := jobSelect + `
		WHERE ($1 = '' OR state = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, query, string(state), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.ReportJob
	for rows.Next() {
		job, err := scanReportJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// MarkCancelled sets the cancellation flag on a job
func (s *ReportStore) MarkCancelled(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE report_jobs SET cancelled = TRUE, updated_at = $2 WHERE id = $1`,
		id, time.Now())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SaveTemplate creates or updates a report template
func (s *ReportStore) SaveTemplate(ctx context.Context, tpl *domain.ReportTemplate) error {
	sections, err := json.Marshal(tpl.Sections)
	if err != nil {
		return fmt.Errorf("failed to marshal template sections: %w", err)
	}

	query := `
		INSERT INTO report_templates (id, name, schema_type, sections)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			schema_type = EXCLUDED.schema_type,
			sections = EXCLUDED.sections
	`
	_, err = s.db.ExecContext(ctx, query, tpl.ID, tpl.Name, tpl.SchemaType, sections)
	return err
}

// GetTemplate retrieves a template by ID
func (s *ReportStore) GetTemplate(ctx context.Context, id string) (*domain.ReportTemplate, error) {
	query := `SELECT id, name, schema_type, sections FROM report_templates WHERE id = $1`

	var tpl domain.ReportTemplate
	var sections []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(&tpl.ID, &tpl.Name, &tpl.SchemaType, &sections)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(sections) > 0 {
		if err := json.Unmarshal(sections, &tpl.Sections); err != nil {
			return nil, fmt.Errorf("failed to unmarshal template sections: %w", err)
		}
	}
	return &tpl, nil
}

const jobSelect = `
	SELECT id, requirement_set_id, template_id, schema_type, state, current_step, progress, error, cancelled, sections, gap, created_at, updated_at, completed_at
	FROM report_jobs
`

func scanReportJob(row scanner) (*domain.ReportJob, error) {
	var job domain.ReportJob
	var sections, gap []byte
	var completedAt sql.NullTime

	err := row.Scan(
		&job.ID,
		&job.RequirementSetID,
		&job.TemplateID,
		&job.SchemaType,
		&job.State,
		&job.CurrentStep,
		&job.Progress,
		&job.Error,
		&job.Cancelled,
		&sections,
		&gap,
		&job.CreatedAt,
		&job.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(sections) > 0 {
		if err := json.Unmarshal(sections, &job.Sections); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sections: %w", err)
		}
	}
	if len(gap) > 0 {
		if err := json.Unmarshal(gap, &job.Gap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal gap result: %w", err)
		}
	}
	job.CompletedAt = TimePtr(completedAt)
	return &job, nil
}

// ResponseStore implements driven.ResponseStore using PostgreSQL.
// Rows are append-only; there is no update path.
type ResponseStore struct {
	db *DB
}

// NewResponseStore creates a new ResponseStore
func NewResponseStore(db *DB) *ResponseStore {
	return &ResponseStore{db: db}
}

// Save appends a RAG response
func (s *ResponseStore) Save(ctx context.Context, resp *domain.RAGResponse) error {
	citations, err := json.Marshal(resp.Citations)
	if err != nil {
		return fmt.Errorf("failed to marshal citations: %w", err)
	}

	query := `
		INSERT INTO rag_responses (id, question, answer, confidence, model, citations, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.db.ExecContext(ctx, query,
		resp.ID,
		resp.Question,
		resp.Answer,
		resp.Confidence,
		resp.Model,
		citations,
		resp.CreatedAt,
	)
	return err
}

// Get retrieves a response by ID
func (s *ResponseStore) Get(ctx context.Context, id string) (*domain.RAGResponse, error) {
	query := `
		SELECT id, question, answer, confidence, model, citations, created_at
		FROM rag_responses
		WHERE id = $1
	`

	resp, err := scanResponse(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return resp, err
}

// List retrieves recent responses, newest first
func (s *ResponseStore) List(ctx context.Context, limit, offset int) ([]*domain.RAGResponse, error) {
	query := `
		SELECT id, question, answer, confidence, model, citations, created_at
		FROM rag_responses
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var responses []*domain.RAGResponse
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}
	return responses, rows.Err()
}

func scanResponse(row scanner) (*domain.RAGResponse, error) {
	var resp domain.RAGResponse
	var citations []byte

	err := row.Scan(
		&resp.ID,
		&resp.Question,
		&resp.Answer,
		&resp.Confidence,
		&resp.Model,
		&citations,
		&resp.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(citations) > 0 {
		if err := json.Unmarshal(citations, &resp.Citations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal citations: %w", err)
		}
	}
	return &resp, nil
}
