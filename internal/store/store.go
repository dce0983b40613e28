package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/finore/finore/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// ErrNoChunks is returned by LatestDataHash when nothing has been indexed yet
// for the requested source tag.
var ErrNoChunks = errors.New("no chunks for source")

// Store provides methods to interact with the database.
type Store struct {
	pool *pgxpool.Pool
}

// ChunkStore defines the methods that the Store must implement.
type ChunkStore interface {
	Migrate(ctx context.Context, dim int) error
	InsertBatch(ctx context.Context, chunks []models.Chunk) error
	DeleteBySource(ctx context.Context, sourceTag string) error
	Search(ctx context.Context, queryVec []float32, threshold float64, topK int) ([]models.SearchResult, error)
	LatestDataHash(ctx context.Context, sourceTag string) (string, error)
}

// New creates a new Store instance connected to the given database URL.
func New(ctx context.Context, url string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{pool: p}, nil
}

func (s *Store) Close() { s.pool.Close() }

// Migrate applies necessary database migrations and schema setup. The seq
// column carries insertion order; search tie-breaks depend on it.
func (s *Store) Migrate(ctx context.Context, dim int) error {
	q := `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS document_chunks (
  id              TEXT PRIMARY KEY,
  seq             BIGSERIAL,
  content         TEXT NOT NULL,
  source          TEXT NOT NULL,
  row_index       INT NOT NULL DEFAULT 0,
  sheet_reference TEXT NOT NULL DEFAULT '',
  data_hash       TEXT NOT NULL DEFAULT '',
  embedding       vector(%d),
  indexed_at      TIMESTAMP WITH TIME ZONE DEFAULT now()
);

CREATE INDEX IF NOT EXISTS document_chunks_source_idx
  ON document_chunks (source);

CREATE INDEX IF NOT EXISTS document_chunks_hash_idx
  ON document_chunks (data_hash);

CREATE INDEX IF NOT EXISTS document_chunks_embedding_idx
  ON document_chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
`
	_, err := s.pool.Exec(ctx, fmt.Sprintf(q, dim))
	return err
}

// InsertBatch inserts a batch of chunks inside a single transaction. Any
// failure rolls the whole batch back; there is no partial insert.
func (s *Store) InsertBatch(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert batch: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const q = `
		INSERT INTO document_chunks (
			id, content, source, row_index, sheet_reference, data_hash, embedding, indexed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	for _, c := range chunks {
		_, err := tx.Exec(ctx, q,
			c.ID, c.Content, c.Metadata.Source, c.Metadata.RowIndex,
			c.Metadata.SheetRef, c.Metadata.DataHash,
			pgvector.NewVector(c.Embedding), c.Metadata.IndexedAt,
		)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit(ctx)
}

// DeleteBySource removes every chunk whose source tag matches.
func (s *Store) DeleteBySource(ctx context.Context, sourceTag string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM document_chunks WHERE source = $1`, sourceTag)
	return err
}

// Search returns chunks whose cosine similarity to queryVec is at least
// threshold, best first. Equal similarities keep insertion order.
func (s *Store) Search(ctx context.Context, queryVec []float32, threshold float64, topK int) ([]models.SearchResult, error) {
	const q = `
		SELECT id, content, source, row_index, sheet_reference, data_hash, indexed_at,
		       1 - (embedding <=> $1) AS similarity
		FROM document_chunks
		WHERE embedding IS NOT NULL
		  AND 1 - (embedding <=> $1) >= $2
		ORDER BY similarity DESC, seq ASC
		LIMIT $3`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(queryVec), threshold, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SearchResult
	for rows.Next() {
		var c models.Chunk
		var sim float64
		if err := rows.Scan(
			&c.ID, &c.Content, &c.Metadata.Source, &c.Metadata.RowIndex,
			&c.Metadata.SheetRef, &c.Metadata.DataHash, &c.Metadata.IndexedAt,
			&sim,
		); err != nil {
			return nil, err
		}
		out = append(out, models.SearchResult{Chunk: c, Similarity: sim})
	}
	return out, rows.Err()
}

// LatestDataHash returns the data hash recorded with the most recently
// indexed chunk for the source tag.
func (s *Store) LatestDataHash(ctx context.Context, sourceTag string) (string, error) {
	const q = `
		SELECT data_hash FROM document_chunks
		WHERE source = $1
		ORDER BY indexed_at DESC, seq DESC
		LIMIT 1`

	var hash string
	err := s.pool.QueryRow(ctx, q, sourceTag).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNoChunks
		}
		return "", err
	}
	return hash, nil
}

// Ping checks the database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}
