// Package store persists documents and their embeddings in PostgreSQL with
// pgvector, and answers cosine nearest-neighbor queries over them.
//
// One store holds vectors of exactly one dimensionality, fixed at
// construction; mixing dimensionalities in a corpus is invalid and rejected
// at ingestion. The distance metric is fixed at cosine for the corpus
// lifetime (the ivfflat index in db/migrations is built with
// vector_cosine_ops).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

var (
	// ErrEmptyContent indicates a document with no textual content.
	ErrEmptyContent = errors.New("document content is empty")

	// ErrDimensionMismatch indicates an embedding whose length differs from
	// the corpus dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrBatchShapeMismatch indicates documents and embeddings of unequal length.
	ErrBatchShapeMismatch = errors.New("documents and embeddings differ in length")
)

// Store manages documents with vector search in PostgreSQL + pgvector.
// Safe for concurrent use; the pool provides connection-level serialization
// and inserts on distinct ids never conflict.
type Store struct {
	pool   *pgxpool.Pool
	dims   int
	logger *slog.Logger
}

// New creates a Store over an existing connection pool.
// dims is the fixed embedding dimensionality of the corpus.
func New(pool *pgxpool.Pool, dims int, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}
	if dims < 1 {
		return nil, fmt.Errorf("dims must be positive, got %d", dims)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{pool: pool, dims: dims, logger: logger}, nil
}

// Dimensions returns the fixed embedding dimensionality of the corpus.
func (s *Store) Dimensions() int { return s.dims }

// Insert persists one document with its embedding and returns the assigned id.
// The row carries both document and embedding, so they are created together
// or not at all.
func (s *Store) Insert(ctx context.Context, doc Document, embedding []float32) (string, error) {
	if err := s.validate(doc, embedding); err != nil {
		return "", err
	}

	id := uuid.NewString()
	metadataJSON, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return "", err
	}

	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx, insertSQL,
		id,
		doc.Content,
		metadataJSON,
		nullIfEmpty(doc.SourceURL),
		pgvector.NewVector(embedding),
		createdAt,
	)
	if err != nil {
		return "", fmt.Errorf("inserting document: %w", err)
	}

	s.logger.Debug("inserted document", "id", id, "content_length", len(doc.Content))
	return id, nil
}

// InsertBatch persists documents with their embeddings in one transaction and
// returns the assigned ids in input order. The batch is all-or-nothing: any
// failure rolls back every row.
func (s *Store) InsertBatch(ctx context.Context, docs []Document, embeddings [][]float32) ([]string, error) {
	if len(docs) != len(embeddings) {
		return nil, fmt.Errorf("%w: %d documents, %d embeddings",
			ErrBatchShapeMismatch, len(docs), len(embeddings))
	}
	if len(docs) == 0 {
		return nil, nil
	}

	// Validate everything before touching the database.
	for i, doc := range docs {
		if err := s.validate(doc, embeddings[i]); err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Warn("batch insert rollback", "error", err)
		}
	}()

	ids := make([]string, 0, len(docs))
	now := time.Now().UTC()
	for i, doc := range docs {
		metadataJSON, err := marshalMetadata(doc.Metadata)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}

		createdAt := doc.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}

		id := uuid.NewString()
		if _, err := tx.Exec(ctx, insertSQL,
			id,
			doc.Content,
			metadataJSON,
			nullIfEmpty(doc.SourceURL),
			pgvector.NewVector(embeddings[i]),
			createdAt,
		); err != nil {
			return nil, fmt.Errorf("inserting document %d: %w", i, err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing batch insert: %w", err)
	}

	s.logger.Debug("inserted document batch", "count", len(ids))
	return ids, nil
}

// NearestNeighbors returns up to k matches ordered by descending cosine
// similarity; ties are broken by ascending document id, which keeps the
// ordering stable when distances are equal. Matches below minSimilarity are
// excluded by the store, not the caller.
func (s *Store) NearestNeighbors(ctx context.Context, embedding []float32, k int, minSimilarity float32) ([]Match, error) {
	if len(embedding) != s.dims {
		return nil, fmt.Errorf("%w: got %d, corpus uses %d", ErrDimensionMismatch, len(embedding), s.dims)
	}
	if k < 1 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	rows, err := s.pool.Query(ctx, searchSQL, pgvector.NewVector(embedding), minSimilarity, k)
	if err != nil {
		return nil, fmt.Errorf("searching documents: %w", err)
	}
	defer rows.Close()

	matches := make([]Match, 0, k)
	for rows.Next() {
		var (
			doc       Document
			metadata  []byte
			sourceURL *string
			distance  float64
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &metadata, &sourceURL, &doc.CreatedAt, &distance); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}

		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
				s.logger.Warn("unparseable document metadata", "id", doc.ID, "error", err)
				doc.Metadata = map[string]any{}
			}
		}
		if sourceURL != nil {
			doc.SourceURL = *sourceURL
		}

		matches = append(matches, Match{
			Document:   doc,
			Similarity: clamp01(1 - float32(distance)),
			Distance:   float32(distance),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading matches: %w", err)
	}

	return matches, nil
}

// Delete removes a document and its embedding. Returns false when no row
// matched the id.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("deleting document %q: %w", id, err)
	}

	deleted := tag.RowsAffected() > 0
	if deleted {
		s.logger.Debug("deleted document", "id", id)
	}
	return deleted, nil
}

// Count returns the number of documents in the corpus.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM documents`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return count, nil
}

const insertSQL = `
INSERT INTO documents (id, content, metadata, source_url, embedding, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

// Similarity filtering, ordering, and the id tiebreak all live in SQL so the
// database index drives the search.
const searchSQL = `
SELECT id, content, metadata, source_url, created_at, embedding <=> $1 AS distance
FROM documents
WHERE 1 - (embedding <=> $1) >= $2
ORDER BY embedding <=> $1, id
LIMIT $3`

func (s *Store) validate(doc Document, embedding []float32) error {
	if doc.Content == "" {
		return ErrEmptyContent
	}
	if len(embedding) != s.dims {
		return fmt.Errorf("%w: got %d, corpus uses %d", ErrDimensionMismatch, len(embedding), s.dims)
	}
	return nil
}

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return []byte(`{}`), nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}
	return data, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func clamp01(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
