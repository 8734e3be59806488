package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/veridian-labs/regcore/internal/core/domain"
	"github.com/veridian-labs/regcore/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ChunkStore = (*ChunkStore)(nil)

// ChunkStore implements driven.ChunkStore using PostgreSQL
type ChunkStore struct {
	db *DB
}

// NewChunkStore creates a new ChunkStore
func NewChunkStore(db *DB) *ChunkStore {
	return &ChunkStore{db: db}
}

// SaveBatch saves chunks in a transaction
func (s *ChunkStore) SaveBatch(ctx context.Context, chunks []*domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO chunks (id, document_id, position, content, page, start_char, end_char, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				content = EXCLUDED.content,
				position = EXCLUDED.position,
				page = EXCLUDED.page,
				start_char = EXCLUDED.start_char,
				end_char = EXCLUDED.end_char
		`

		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, chunk := range chunks {
			_, err = stmt.ExecContext(ctx,
				chunk.ID,
				chunk.DocumentID,
				chunk.Position,
				chunk.Content,
				chunk.Page,
				chunk.StartChar,
				chunk.EndChar,
				chunk.CreatedAt,
			)
			if err != nil {
				return err
			}
		}

		return nil
	})
}

// Get retrieves a chunk by ID
func (s *ChunkStore) Get(ctx context.Context, id string) (*domain.Chunk, error) {
	query := `
		SELECT id, document_id, position, content, page, start_char, end_char, created_at
		FROM chunks
		WHERE id = $1
	`

	chunk, err := scanChunk(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return chunk, err
}

// GetMany retrieves chunks by ID, preserving the given order.
// Missing IDs are skipped silently.
func (s *ChunkStore) GetMany(ctx context.Context, ids []string) ([]*domain.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, document_id, position, content, page, start_char, end_char, created_at
		FROM chunks
		WHERE id = ANY($1)
	`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]*domain.Chunk, len(ids))
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		byID[chunk.ID] = chunk
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	chunks := make([]*domain.Chunk, 0, len(ids))
	for _, id := range ids {
		if chunk, ok := byID[id]; ok {
			chunks = append(chunks, chunk)
		}
	}
	return chunks, nil
}

// GetByDocument retrieves all chunks for a document in position order
func (s *ChunkStore) GetByDocument(ctx context.Context, documentID string) ([]*domain.Chunk, error) {
	query := `
		SELECT id, document_id, position, content, page, start_char, end_char, created_at
		FROM chunks
		WHERE document_id = $1
		ORDER BY position ASC
	`

	rows, err := s.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*domain.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// DeleteByDocument deletes all chunks for a document.
// Vectors cascade via the chunk_vectors foreign key.
func (s *ChunkStore) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	return err
}

func scanChunk(row scanner) (*domain.Chunk, error) {
	var chunk domain.Chunk
	err := row.Scan(
		&chunk.ID,
		&chunk.DocumentID,
		&chunk.Position,
		&chunk.Content,
		&chunk.Page,
		&chunk.StartChar,
		&chunk.EndChar,
		&chunk.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}
