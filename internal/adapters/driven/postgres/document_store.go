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
var _ driven.DocumentStore = (*DocumentStore)(nil)

// DocumentStore implements driven.DocumentStore using PostgreSQL.
// Vectors live in chunk_vectors (or an external index), not here.
type DocumentStore struct {
	db *DB
}

// NewDocumentStore creates a new DocumentStore
func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// Save creates or updates a document
func (s *DocumentStore) Save(ctx context.Context, doc *domain.Document) error {
	boundaries, err := json.Marshal(doc.PageBoundaries)
	if err != nil {
		return fmt.Errorf("failed to marshal page boundaries: %w", err)
	}
	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO documents (id, title, source_filename, schema_type, status, failed_stage, error, source_text, page_boundaries, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			source_filename = EXCLUDED.source_filename,
			schema_type = EXCLUDED.schema_type,
			status = EXCLUDED.status,
			failed_stage = EXCLUDED.failed_stage,
			error = EXCLUDED.error,
			source_text = EXCLUDED.source_text,
			page_boundaries = EXCLUDED.page_boundaries,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		doc.ID,
		doc.Title,
		doc.SourceFilename,
		doc.SchemaType,
		doc.Status,
		doc.FailedStage,
		doc.Error,
		doc.SourceText,
		boundaries,
		metadata,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	return err
}

// Get retrieves a document by ID
func (s *DocumentStore) Get(ctx context.Context, id string) (*domain.Document, error) {
	query := `
		SELECT id, title, source_filename, schema_type, status, failed_stage, error, source_text, page_boundaries, metadata, created_at, updated_at
		FROM documents
		WHERE id = $1
	`
	return scanDocument(s.db.QueryRowContext(ctx, query, id))
}

// List retrieves documents filtered by schema type and status.
// Zero values mean no filter.
func (s *DocumentStore) List(ctx context.Context, schemaType domain.SchemaType, status domain.ProcessingStatus, limit, offset int) ([]*domain.Document, error) {
	query := `
		SELECT id, title, source_filename, schema_type, status, failed_stage, error, source_text, page_boundaries, metadata, created_at, updated_at
		FROM documents
		WHERE ($1 = '' OR schema_type = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at ASC
		LIMIT $3 OFFSET $4
	`
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, query, string(schemaType), string(status), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// UpdateStatus moves a document to a new processing status.
// failedStage and errMsg are recorded only for StatusFailed; any other
// status clears them.
func (s *DocumentStore) UpdateStatus(ctx context.Context, id string, status domain.ProcessingStatus, failedStage, errMsg string) error {
	if status != domain.StatusFailed {
		failedStage = ""
		errMsg = ""
	}

	query := `
		UPDATE documents
		SET status = $2, failed_stage = $3, error = $4, updated_at = $5
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query, id, status, failedStage, errMsg, time.Now())
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

// Delete deletes a document. Chunks, vectors and mappings cascade via
// foreign keys; mappings to chunks are removed explicitly since they
// reference the taxonomy, not the chunk table.
func (s *DocumentStore) Delete(ctx context.Context, id string) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM schema_mappings
			WHERE target_type = $1
			  AND target_id IN (SELECT id FROM chunks WHERE document_id = $2)
		`, domain.MappingTargetChunk, id)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
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
	})
}

// Count returns document count by status (empty status counts all)
func (s *DocumentStore) Count(ctx context.Context, status domain.ProcessingStatus) (int, error) {
	query := `SELECT COUNT(*) FROM documents WHERE ($1 = '' OR status = $1)`

	var count int
	err := s.db.QueryRowContext(ctx, query, string(status)).Scan(&count)
	return count, err
}

// scanner abstracts sql.Row and sql.Rows for shared scan code
type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*domain.Document, error) {
	var doc domain.Document
	var boundaries, metadata []byte

	err := row.Scan(
		&doc.ID,
		&doc.Title,
		&doc.SourceFilename,
		&doc.SchemaType,
		&doc.Status,
		&doc.FailedStage,
		&doc.Error,
		&doc.SourceText,
		&boundaries,
		&metadata,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if len(boundaries) > 0 {
		if err := json.Unmarshal(boundaries, &doc.PageBoundaries); err != nil {
			return nil, fmt.Errorf("failed to unmarshal page boundaries: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &doc, nil
}
