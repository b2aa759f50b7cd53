package vector

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"github.com/sirupsen/logrus"

	"github.com/utakata/mnemosyne/internal/llm"
	"github.com/utakata/mnemosyne/pkg/types"
)

// ChromemStore backs the Store interface with an embedded chromem-go
// database persisted under a directory.
type ChromemStore struct {
	db     *chromem.DB
	col    *chromem.Collection
	logger *logrus.Logger
}

// OpenChromemStore opens or creates the named collection at path.
func OpenChromemStore(path, collection string, embedder llm.EmbeddingGenerator, logger *logrus.Logger) (*ChromemStore, error) {
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("vector: open chromem db: %w", err)
	}
	embedFn := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	}
	col, err := db.GetOrCreateCollection(collection, nil, embedFn)
	if err != nil {
		return nil, fmt.Errorf("vector: open collection %q: %w", collection, err)
	}
	logger.WithFields(logrus.Fields{
		"path": path, "collection": collection, "documents": col.Count(),
	}).Info("vector: chromem store loaded")
	return &ChromemStore{db: db, col: col, logger: logger}, nil
}

func (s *ChromemStore) AddDocuments(ctx context.Context, docs []types.Document) ([]string, error) {
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		err := s.col.AddDocument(ctx, chromem.Document{
			ID:       doc.ID,
			Content:  doc.Content,
			Metadata: stringifyMetadata(doc.Metadata),
		})
		if err != nil {
			return ids, fmt.Errorf("vector: add document: %w", err)
		}
		ids = append(ids, doc.ID)
	}
	return ids, nil
}

func (s *ChromemStore) Search(ctx context.Context, query string, k int, filters map[string]string) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}
	// chromem rejects nResults larger than the collection.
	if n := s.col.Count(); k > n {
		if n == 0 {
			return nil, nil
		}
		k = n
	}
	var where map[string]string
	if len(filters) > 0 {
		where = filters
	}
	hits, err := s.col.Query(ctx, query, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("vector: query: %w", err)
	}
	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		out = append(out, Result{
			Document: types.Document{
				ID:       h.ID,
				Content:  h.Content,
				Metadata: anyMetadata(h.Metadata),
			},
			Score: distanceScore(1 - float64(h.Similarity)),
		})
	}
	return out, nil
}

// UpdateDocument is delete-then-add; chromem has no in-place update.
func (s *ChromemStore) UpdateDocument(ctx context.Context, id string, doc types.Document) error {
	if _, err := s.col.GetByID(ctx, id); err != nil {
		return ErrNotFound
	}
	if err := s.col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("vector: delete for update: %w", err)
	}
	err := s.col.AddDocument(ctx, chromem.Document{
		ID:       id,
		Content:  doc.Content,
		Metadata: stringifyMetadata(doc.Metadata),
	})
	if err != nil {
		return fmt.Errorf("vector: re-add updated document: %w", err)
	}
	return nil
}

func (s *ChromemStore) DeleteDocuments(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if _, err := s.col.GetByID(ctx, id); err != nil {
			continue
		}
		if err := s.col.Delete(ctx, nil, nil, id); err != nil {
			return fmt.Errorf("vector: delete document: %w", err)
		}
	}
	return nil
}

func (s *ChromemStore) DocumentsByIDs(ctx context.Context, ids []string) ([]types.Document, error) {
	out := make([]types.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := s.col.GetByID(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, types.Document{
			ID:       doc.ID,
			Content:  doc.Content,
			Metadata: anyMetadata(doc.Metadata),
		})
	}
	return out, nil
}

func (s *ChromemStore) Count(ctx context.Context) (int, error) {
	return s.col.Count(), nil
}

func (s *ChromemStore) Close() error { return nil }

func stringifyMetadata(meta map[string]any) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func anyMetadata(meta map[string]string) map[string]any {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
