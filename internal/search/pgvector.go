package search

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgvector "github.com/pgvector/pgvector-go"
)

// DB is the database interface used by [PgVectorStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgVectorStore is a [VectorStore] backed by a PostgreSQL table with a
// pgvector HNSW index.
type PgVectorStore struct {
	db DB
}

var _ VectorStore = (*PgVectorStore)(nil)

// NewPgVectorStore creates a store on the given connection or pool. Call
// [PgVectorStore.Migrate] before issuing queries.
func NewPgVectorStore(db DB) *PgVectorStore {
	return &PgVectorStore{db: db}
}

// schema returns the DDL with the embedding dimension substituted. The vector
// dimension is baked into the column type at schema creation time and must
// match the configured embeddings model.
func schema(dimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS transcript_chunks (
    meeting_id  TEXT         NOT NULL,
    sequence    INTEGER      NOT NULL,
    content     TEXT         NOT NULL,
    embedding   vector(%d),
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (meeting_id, sequence)
);

CREATE INDEX IF NOT EXISTS idx_transcript_chunks_embedding
    ON transcript_chunks USING hnsw (embedding vector_cosine_ops);
`, dimensions)
}

// Migrate creates the transcript_chunks table and pgvector index. It is
// idempotent and safe to call on every application start. dimensions must
// match the embeddings provider; changing it after the first migration
// requires a manual schema update.
func (s *PgVectorStore) Migrate(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("search: invalid embedding dimensions %d", dimensions)
	}
	if _, err := s.db.Exec(ctx, schema(dimensions)); err != nil {
		return fmt.Errorf("search: migrate: %w", err)
	}
	return nil
}

// Upsert implements [VectorStore].
func (s *PgVectorStore) Upsert(ctx context.Context, e Entry) error {
	const q = `
		INSERT INTO transcript_chunks (meeting_id, sequence, content, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (meeting_id, sequence) DO UPDATE SET
		    content   = EXCLUDED.content,
		    embedding = EXCLUDED.embedding`

	_, err := s.db.Exec(ctx, q, e.MeetingID, e.Sequence, e.Text, pgvector.NewVector(e.Embedding))
	if err != nil {
		return fmt.Errorf("upsert transcript chunk: %w", err)
	}
	return nil
}

// Nearest implements [VectorStore]. Results are ordered by ascending cosine
// distance (most similar first).
func (s *PgVectorStore) Nearest(ctx context.Context, meetingID string, embedding []float32, topK int) ([]Match, error) {
	const q = `
		SELECT sequence, content, embedding <=> $2 AS distance
		FROM   transcript_chunks
		WHERE  meeting_id = $1
		ORDER  BY distance
		LIMIT  $3`

	rows, err := s.db.Query(ctx, q, meetingID, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("nearest transcript chunks: %w", err)
	}

	matches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Match, error) {
		var m Match
		if err := row.Scan(&m.Sequence, &m.Text, &m.Distance); err != nil {
			return Match{}, err
		}
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan transcript chunks: %w", err)
	}
	if matches == nil {
		matches = []Match{}
	}
	return matches, nil
}
