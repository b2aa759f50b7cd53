// Package sqlitevec backs the vector store with a single SQLite file.
// Embeddings are serialized as little-endian float32 BLOBs and scored
// in process, which is plenty for the corpus sizes a single agent
// accumulates.
package sqlitevec

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/utakata/mnemosyne/internal/llm"
	"github.com/utakata/mnemosyne/internal/vector"
	"github.com/utakata/mnemosyne/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	metadata   TEXT NOT NULL DEFAULT '{}',
	embedding  BLOB NOT NULL,
	dimension  INTEGER NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// Store implements vector.Store on a SQLite database.
type Store struct {
	db       *sql.DB
	embedder llm.EmbeddingGenerator
	logger   *logrus.Logger
}

// Open opens or creates the database at path. Use ":memory:" for an
// ephemeral store.
func Open(path string, embedder llm.EmbeddingGenerator, logger *logrus.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitevec: open %s: %w", path, err)
	}
	// Concurrent writers trip over SQLite; a single connection keeps
	// access serialized.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitevec: apply schema: %w", err)
	}
	logger.WithField("path", path).Info("vector: sqlite store opened")
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
			return ids, fmt.Errorf("sqlitevec: embed document: %w", err)
		}
		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return ids, fmt.Errorf("sqlitevec: marshal metadata: %w", err)
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO documents (id, content, metadata, embedding, dimension)
			VALUES (?, ?, ?, ?, ?)`,
			doc.ID, doc.Content, string(meta), serializeEmbedding(emb), len(emb))
		if err != nil {
			return ids, fmt.Errorf("sqlitevec: insert document: %w", err)
		}
		ids = append(ids, doc.ID)
	}
	return ids, nil
}

func (s *Store) UpdateDocument(ctx context.Context, id string, doc types.Document) error {
	emb, err := s.embedder.Embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("sqlitevec: embed document: %w", err)
	}
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("sqlitevec: marshal metadata: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET content = ?, metadata = ?, embedding = ?, dimension = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		doc.Content, string(meta), serializeEmbedding(emb), len(emb), id)
	if err != nil {
		return fmt.Errorf("sqlitevec: update document: %w", err)
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
		if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
			return fmt.Errorf("sqlitevec: delete document: %w", err)
		}
	}
	return nil
}

func (s *Store) DocumentsByIDs(ctx context.Context, ids []string) ([]types.Document, error) {
	out := make([]types.Document, 0, len(ids))
	for _, id := range ids {
		var doc types.Document
		var meta string
		err := s.db.QueryRowContext(ctx,
			`SELECT id, content, metadata FROM documents WHERE id = ?`, id).
			Scan(&doc.ID, &doc.Content, &meta)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return out, fmt.Errorf("sqlitevec: fetch document: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
			s.logger.WithError(err).WithField("id", id).Warn("sqlitevec: corrupt metadata")
		}
		out = append(out, doc)
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlitevec: count: %w", err)
	}
	return n, nil
}

// Search scores every stored embedding against the query in process
// and returns the top k matches.
func (s *Store) Search(ctx context.Context, query string, k int, filters map[string]string) ([]vector.Result, error) {
	if k <= 0 {
		return nil, nil
	}
	qv, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sqlitevec: embed query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, content, metadata, embedding FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("sqlitevec: scan documents: %w", err)
	}
	defer rows.Close()

	var out []vector.Result
	for rows.Next() {
		var doc types.Document
		var meta string
		var blob []byte
		if err := rows.Scan(&doc.ID, &doc.Content, &meta, &blob); err != nil {
			return nil, fmt.Errorf("sqlitevec: scan row: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
			s.logger.WithError(err).WithField("id", doc.ID).Warn("sqlitevec: corrupt metadata")
			continue
		}
		if !matches(doc, filters) {
			continue
		}
		emb, err := deserializeEmbedding(blob)
		if err != nil {
			s.logger.WithError(err).WithField("id", doc.ID).Warn("sqlitevec: corrupt embedding")
			continue
		}
		out = append(out, vector.Result{Document: doc, Score: score(qv, emb)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Document.ID < out[j].Document.ID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func matches(doc types.Document, filters map[string]string) bool {
	for k, v := range filters {
		if doc.MetaString(k) != v {
			return false
		}
	}
	return true
}

func score(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	distance := 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
	return 1 / (1 + distance)
}

// serializeEmbedding packs the vector as little-endian float32 bytes.
func serializeEmbedding(emb []float32) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, emb)
	return buf.Bytes()
}

func deserializeEmbedding(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(blob))
	}
	emb := make([]float32, len(blob)/4)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, &emb); err != nil {
		return nil, err
	}
	return emb, nil
}
