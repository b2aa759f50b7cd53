// Package pgvec backs the vector store with PostgreSQL and the
// pgvector extension, for deployments where several agent processes
// share one memory corpus.
package pgvec

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/sirupsen/logrus"

	"github.com/utakata/mnemosyne/internal/llm"
	"github.com/utakata/mnemosyne/internal/vector"
	"github.com/utakata/mnemosyne/pkg/types"
)

// Store implements vector.Store on PostgreSQL with pgvector.
type Store struct {
	db       *sql.DB
	embedder llm.EmbeddingGenerator
	logger   *logrus.Logger
}

// Open connects to the database and prepares the schema. The pgvector
// extension must be installable by the connecting role.
func Open(dsn string, embedder llm.EmbeddingGenerator, logger *logrus.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvec: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pgvec: ping: %w", err)
	}
	if _, err := db.Exec(`CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pgvec: enable pgvector extension: %w", err)
	}
	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS documents (
			id         TEXT PRIMARY KEY,
			content    TEXT NOT NULL,
			metadata   JSONB NOT NULL DEFAULT '{}',
			embedding  vector(%d) NOT NULL,
			created_at TIMESTAMPTZ DEFAULT now(),
			updated_at TIMESTAMPTZ DEFAULT now()
		)`, embedder.Dims())
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pgvec: apply schema: %w", err)
	}
	logger.WithField("dims", embedder.Dims()).Info("vector: postgres store opened")
	return &Store{db: db, embedder: embedder, logger: logger}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) AddDocuments(ctx context.Context, docs []types.Document) ([]string, error) {
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		emb, err := s.embedder.Embed(ctx, doc.Content)
		if err != nil {
			return ids, fmt.Errorf("pgvec: embed document: %w", err)
		}
		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return ids, fmt.Errorf("pgvec: marshal metadata: %w", err)
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO documents (id, content, metadata, embedding)
			VALUES ($1, $2, $3, $4)`,
			doc.ID, doc.Content, meta, pgvector.NewVector(emb))
		if err != nil {
			return ids, fmt.Errorf("pgvec: insert document: %w", err)
		}
		ids = append(ids, doc.ID)
	}
	return ids, nil
}

func (s *Store) UpdateDocument(ctx context.Context, id string, doc types.Document) error {
	emb, err := s.embedder.Embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("pgvec: embed document: %w", err)
	}
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("pgvec: marshal metadata: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET content = $1, metadata = $2, embedding = $3, updated_at = now()
		WHERE id = $4`,
		doc.Content, meta, pgvector.NewVector(emb), id)
	if err != nil {
		return fmt.Errorf("pgvec: update document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return vector.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteDocuments(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
			return fmt.Errorf("pgvec: delete document: %w", err)
		}
	}
	return nil
}

func (s *Store) DocumentsByIDs(ctx context.Context, ids []string) ([]types.Document, error) {
	out := make([]types.Document, 0, len(ids))
	for _, id := range ids {
		var doc types.Document
		var meta []byte
		err := s.db.QueryRowContext(ctx,
			`SELECT id, content, metadata FROM documents WHERE id = $1`, id).
			Scan(&doc.ID, &doc.Content, &meta)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return out, fmt.Errorf("pgvec: fetch document: %w", err)
		}
		if err := json.Unmarshal(meta, &doc.Metadata); err != nil {
			s.logger.WithError(err).WithField("id", id).Warn("pgvec: corrupt metadata")
		}
		out = append(out, doc)
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("pgvec: count: %w", err)
	}
	return n, nil
}

// Search orders by pgvector cosine distance and lets the database do
// the heavy lifting. Metadata filters become JSONB containment checks.
func (s *Store) Search(ctx context.Context, query string, k int, filters map[string]string) ([]vector.Result, error) {
	if k <= 0 {
		return nil, nil
	}
	qv, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("pgvec: embed query: %w", err)
	}
	args := []any{pgvector.NewVector(qv)}
	where := ""
	if len(filters) > 0 {
		filterJSON, err := json.Marshal(filters)
		if err != nil {
			return nil, fmt.Errorf("pgvec: marshal filters: %w", err)
		}
		where = "WHERE metadata @> $2"
		args = append(args, filterJSON)
	}
	args = append(args, k)
	q := fmt.Sprintf(`
		SELECT id, content, metadata, embedding <=> $1 AS distance
		FROM documents
		%s
		ORDER BY embedding <=> $1
		LIMIT $%d`, where, len(args))
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvec: query: %w", err)
	}
	defer rows.Close()

	var out []vector.Result
	for rows.Next() {
		var doc types.Document
		var meta []byte
		var distance float64
		if err := rows.Scan(&doc.ID, &doc.Content, &meta, &distance); err != nil {
			return nil, fmt.Errorf("pgvec: scan row: %w", err)
		}
		if err := json.Unmarshal(meta, &doc.Metadata); err != nil {
			s.logger.WithError(err).WithField("id", doc.ID).Warn("pgvec: corrupt metadata")
		}
		out = append(out, vector.Result{Document: doc, Score: 1 / (1 + distance)})
	}
	return out, rows.Err()
}
