package postgres

import (
	"context"
	"database/sql"

	"github.com/veridian-labs/regcore/internal/core/domain"
	"github.com/veridian-labs/regcore/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SchemaStore = (*SchemaStore)(nil)

// SchemaStore implements driven.SchemaStore using PostgreSQL
type SchemaStore struct {
	db *DB
}

// NewSchemaStore creates a new SchemaStore
func NewSchemaStore(db *DB) *SchemaStore {
	return &SchemaStore{db: db}
}

// SeedElements inserts taxonomy elements if absent. Existing elements are
// left untouched so a redeploy never rewrites mapped codes.
func (s *SchemaStore) SeedElements(ctx context.Context, elements []*domain.SchemaElement) error {
	if len(elements) == 0 {
		return nil
	}

	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO schema_elements (code, name, parent_code, description, schema_type)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (code) DO NOTHING
		`

		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, el := range elements {
			if _, err := stmt.ExecContext(ctx, el.Code, el.Name, el.ParentCode, el.Description, el.SchemaType); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetElement retrieves an element by code
func (s *SchemaStore) GetElement(ctx context.Context, code string) (*domain.SchemaElement, error) {
	query := `
		SELECT code, name, parent_code, description, schema_type
		FROM schema_elements
		WHERE code = $1
	`

	var el domain.SchemaElement
	err := s.db.QueryRowContext(ctx, query, code).Scan(&el.Code, &el.Name, &el.ParentCode, &el.Description, &el.SchemaType)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &el, nil
}

// ListElements retrieves all elements for a schema type
func (s *SchemaStore) ListElements(ctx context.Context, schemaType domain.SchemaType) ([]*domain.SchemaElement, error) {
	query := `
		SELECT code, name, parent_code, description, schema_type
		FROM schema_elements
		WHERE schema_type = $1
		ORDER BY code ASC
	`

	rows, err := s.db.QueryContext(ctx, query, schemaType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var elements []*domain.SchemaElement
	for rows.Next() {
		var el domain.SchemaElement
		if err := rows.Scan(&el.Code, &el.Name, &el.ParentCode, &el.Description, &el.SchemaType); err != nil {
			return nil, err
		}
		elements = append(elements, &el)
	}
	return elements, rows.Err()
}

// SaveMapping persists one schema mapping
func (s *SchemaStore) SaveMapping(ctx context.Context, m *domain.SchemaMapping) error {
	query := `
		INSERT INTO schema_mappings (id, element_code, target_type, target_id, confidence, mapping_type, taxonomy_version, superseded, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			confidence = EXCLUDED.confidence,
			superseded = EXCLUDED.superseded
	`

	_, err := s.db.ExecContext(ctx, query,
		m.ID,
		m.ElementCode,
		m.TargetType,
		m.TargetID,
		m.Confidence,
		m.MappingType,
		m.TaxonomyVersion,
		m.Superseded,
		m.CreatedAt,
	)
	return err
}

// GetMappings returns current (non-superseded) mappings for a target
func (s *SchemaStore) GetMappings(ctx context.Context, targetType domain.MappingTarget, targetID string) ([]*domain.SchemaMapping, error) {
	query := `
		SELECT id, element_code, target_type, target_id, confidence, mapping_type, taxonomy_version, superseded, created_at
		FROM schema_mappings
		WHERE target_type = $1 AND target_id = $2 AND NOT superseded
		ORDER BY confidence DESC
	`

	rows, err := s.db.QueryContext(ctx, query, targetType, targetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []*domain.SchemaMapping
	for rows.Next() {
		var m domain.SchemaMapping
		err := rows.Scan(
			&m.ID,
			&m.ElementCode,
			&m.TargetType,
			&m.TargetID,
			&m.Confidence,
			&m.MappingType,
			&m.TaxonomyVersion,
			&m.Superseded,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, &m)
	}
	return mappings, rows.Err()
}

// SupersedeAutomatic marks all current automatic mappings for a target as
// superseded. Manual mappings are untouched.
func (s *SchemaStore) SupersedeAutomatic(ctx context.Context, targetType domain.MappingTarget, targetID string) error {
	query := `
		UPDATE schema_mappings
		SET superseded = TRUE
		WHERE target_type = $1 AND target_id = $2 AND mapping_type = $3 AND NOT superseded
	`
	_, err := s.db.ExecContext(ctx, query, targetType, targetID, domain.MappingTypeAutomatic)
	return err
}

// CountChunksForElement counts non-superseded chunk mappings for an element
// with confidence >= minConfidence, restricted to chunks of completed
// documents of the given schema type.
func (s *SchemaStore) CountChunksForElement(ctx context.Context, elementCode string, schemaType domain.SchemaType, minConfidence float64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM schema_mappings m
		JOIN chunks c ON c.id = m.target_id
		JOIN documents d ON d.id = c.document_id
		WHERE m.element_code = $1
		  AND m.target_type = $2
		  AND NOT m.superseded
		  AND m.confidence >= $3
		  AND d.schema_type = $4
		  AND d.status = $5
	`

	var count int
	err := s.db.QueryRowContext(ctx, query,
		elementCode,
		domain.MappingTargetChunk,
		minConfidence,
		schemaType,
		domain.StatusCompleted,
	).Scan(&count)
	return count, err
}
