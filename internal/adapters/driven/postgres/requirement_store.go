package postgres

import (
	"context"
	"database/sql"

	"github.com/veridian-labs/regcore/internal/core/domain"
	"github.com/veridian-labs/regcore/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.RequirementStore = (*RequirementStore)(nil)

// RequirementStore implements driven.RequirementStore using PostgreSQL
type RequirementStore struct {
	db *DB
}

// NewRequirementStore creates a new RequirementStore
func NewRequirementStore(db *DB) *RequirementStore {
	return &RequirementStore{db: db}
}

// SaveSet creates or updates a requirement set
func (s *RequirementStore) SaveSet(ctx context.Context, set *domain.RequirementSet) error {
	query := `
		INSERT INTO requirement_sets (id, name, schema_type, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		set.ID,
		set.Name,
		set.SchemaType,
		set.Status,
		set.CreatedAt,
		set.UpdatedAt,
	)
	return err
}

// GetSet retrieves a requirement set by ID
func (s *RequirementStore) GetSet(ctx context.Context, id string) (*domain.RequirementSet, error) {
	query := `
		SELECT id, name, schema_type, status, created_at, updated_at
		FROM requirement_sets
		WHERE id = $1
	`

	var set domain.RequirementSet
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&set.ID,
		&set.Name,
		&set.SchemaType,
		&set.Status,
		&set.CreatedAt,
		&set.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &set, nil
}

// SaveRequirements saves the decomposed requirement statements of a set in
// one transaction
func (s *RequirementStore) SaveRequirements(ctx context.Context, reqs []*domain.Requirement) error {
	if len(reqs) == 0 {
		return nil
	}

	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO requirements (id, set_id, position, text, priority, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				text = EXCLUDED.text,
				priority = EXCLUDED.priority,
				position = EXCLUDED.position
		`

		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, req := range reqs {
			if _, err := stmt.ExecContext(ctx, req.ID, req.SetID, req.Position, req.Text, req.Priority, req.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetRequirements retrieves all requirements of a set in position order
func (s *RequirementStore) GetRequirements(ctx context.Context, setID string) ([]*domain.Requirement, error) {
	query := `
		SELECT id, set_id, position, text, priority, created_at
		FROM requirements
		WHERE set_id = $1
		ORDER BY position ASC
	`

	rows, err := s.db.QueryContext(ctx, query, setID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []*domain.Requirement
	for rows.Next() {
		var req domain.Requirement
		if err := rows.Scan(&req.ID, &req.SetID, &req.Position, &req.Text, &req.Priority, &req.CreatedAt); err != nil {
			return nil, err
		}
		reqs = append(reqs, &req)
	}
	return reqs, rows.Err()
}
