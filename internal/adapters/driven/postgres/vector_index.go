package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/veridian-labs/regcore/internal/core/domain"
	"github.com/veridian-labs/regcore/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.VectorIndex = (*VectorIndex)(nil)

// VectorIndex implements driven.VectorIndex on pgvector. Vectors live in
// the same database as chunks, so the never-outlive-the-chunk invariant is
// a plain foreign key and filtered queries are single statements.
type VectorIndex struct {
	db *DB
}

// NewVectorIndex creates a new pgvector-backed index
func NewVectorIndex(db *DB) *VectorIndex {
	return &VectorIndex{db: db}
}

// Upsert stores or replaces the vector for a chunk
func (v *VectorIndex) Upsert(ctx context.Context, entry driven.VectorEntry) error {
	_, err := v.db.ExecContext(ctx, upsertVectorQuery,
		entry.ChunkID,
		entry.DocumentID,
		entry.SchemaType,
		entry.Model,
		pgvector.NewVector(entry.Vector),
	)
	return err
}

// UpsertBatch stores multiple vectors in one transaction
func (v *VectorIndex) UpsertBatch(ctx context.Context, entries []driven.VectorEntry) error {
	if len(entries) == 0 {
		return nil
	}

	return v.db.Transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertVectorQuery)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, entry := range entries {
			_, err = stmt.ExecContext(ctx,
				entry.ChunkID,
				entry.DocumentID,
				entry.SchemaType,
				entry.Model,
				pgvector.NewVector(entry.Vector),
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

const upsertVectorQuery = `
	INSERT INTO chunk_vectors (chunk_id, document_id, schema_type, model, vec)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (chunk_id) DO UPDATE SET
		document_id = EXCLUDED.document_id,
		schema_type = EXCLUDED.schema_type,
		model = EXCLUDED.model,
		vec = EXCLUDED.vec
`

// Query returns the k nearest entries produced by the given model, ordered
// by descending cosine similarity. All filters are applied in the WHERE
// clause, before LIMIT, so k always yields up to k matching results.
func (v *VectorIndex) Query(ctx context.Context, vector []float32, model string, k int, filters domain.SearchFilters) ([]driven.VectorMatch, error) {
	if k <= 0 {
		return nil, nil
	}

	// <=> is pgvector cosine distance; similarity = 1 - distance.
	query := `
		SELECT cv.chunk_id, cv.document_id, 1 - (cv.vec <=> $1) AS similarity
		FROM chunk_vectors cv
		JOIN documents d ON d.id = cv.document_id
		WHERE cv.model = $2
		  AND ($3 = '' OR cv.schema_type = $3)
		  AND ($4 = '' OR cv.document_id = $4)
		  AND ($5 = '' OR cv.document_id <> $5)
		  AND ($6 = '' OR d.status = $6)
		  AND (cardinality($7::text[]) = 0 OR EXISTS (
			SELECT 1 FROM schema_mappings m
			WHERE m.target_type = $8
			  AND m.target_id = cv.chunk_id
			  AND NOT m.superseded
			  AND m.element_code = ANY($7)
		  ))
		ORDER BY cv.vec <=> $1 ASC
		LIMIT $9
	`

	rows, err := v.db.QueryContext(ctx, query,
		pgvector.NewVector(vector),
		model,
		string(filters.SchemaType),
		filters.DocumentID,
		filters.ExcludeDocumentID,
		string(filters.Status),
		pq.Array(filters.ElementCodes),
		domain.MappingTargetChunk,
		k,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []driven.VectorMatch
	for rows.Next() {
		var m driven.VectorMatch
		if err := rows.Scan(&m.ChunkID, &m.DocumentID, &m.Similarity); err != nil {
			return nil, err
		}
		m.Relevance = (m.Similarity + 1) / 2
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// GetVector returns the stored vector and model for a chunk
func (v *VectorIndex) GetVector(ctx context.Context, chunkID string) ([]float32, string, error) {
	var vec pgvector.Vector
	var model string
	err := v.db.QueryRowContext(ctx,
		`SELECT vec, model FROM chunk_vectors WHERE chunk_id = $1`, chunkID,
	).Scan(&vec, &model)
	if err == sql.ErrNoRows {
		return nil, "", domain.ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	return vec.Slice(), model, nil
}

// DeleteByDocument removes all index entries for a document
func (v *VectorIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := v.db.ExecContext(ctx, `DELETE FROM chunk_vectors WHERE document_id = $1`, documentID)
	return err
}

// HealthCheck verifies the index is available
func (v *VectorIndex) HealthCheck(ctx context.Context) error {
	return v.db.PingContext(ctx)
}
