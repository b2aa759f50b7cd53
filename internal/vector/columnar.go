package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/utakata/mnemosyne/internal/llm"
	"github.com/utakata/mnemosyne/pkg/types"
)

// ColumnarOptions tunes the spreading-activation search.
type ColumnarOptions struct {
	// SearchIterations is how many activation rounds to run, default 2.
	SearchIterations int
	// TagFanout is how many similar theme tags each seed activates,
	// default 2.
	TagFanout int
}

func (o *ColumnarOptions) defaults() {
	if o.SearchIterations <= 0 {
		o.SearchIterations = 2
	}
	if o.TagFanout <= 0 {
		o.TagFanout = 2
	}
}

// ColumnarStore keeps documents, theme tags and embeddings in parallel
// JSON files under a directory. Documents carrying "subject" or
// "object" metadata are grouped under those theme tags; search spreads
// activation from the query through similar tags to their documents,
// then expands to the subjects and objects of whatever it kept.
type ColumnarStore struct {
	mu       sync.RWMutex
	dir      string
	opts     ColumnarOptions
	embedder llm.EmbeddingGenerator
	logger   *logrus.Logger

	docs        map[string]types.Document
	contentVecs map[string][]float32
	tags        map[string][]string // theme tag -> document IDs
	tagVecs     map[string][]float32
	untagged    []string // document IDs without a subject
}

type columnarStats struct {
	Documents int `json:"documents"`
	Tags      int `json:"tags"`
}

// OpenColumnarStore loads the store from dir, creating it if empty.
// Corrupt files are logged and start empty rather than failing.
func OpenColumnarStore(dir string, opts ColumnarOptions, embedder llm.EmbeddingGenerator, logger *logrus.Logger) (*ColumnarStore, error) {
	opts.defaults()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("vector: create store dir: %w", err)
	}
	s := &ColumnarStore{
		dir:         dir,
		opts:        opts,
		embedder:    embedder,
		logger:      logger,
		docs:        make(map[string]types.Document),
		contentVecs: make(map[string][]float32),
		tags:        make(map[string][]string),
		tagVecs:     make(map[string][]float32),
	}
	s.loadColumn("documents.json", &s.docs)
	s.loadColumn("content_embeddings.json", &s.contentVecs)
	s.loadColumn("tags.json", &s.tags)
	s.loadColumn("tag_embeddings.json", &s.tagVecs)
	s.rebuildUntagged()
	logger.WithFields(logrus.Fields{
		"dir": dir, "documents": len(s.docs), "tags": len(s.tags),
	}).Info("vector: columnar store loaded")
	return s, nil
}

func (s *ColumnarStore) loadColumn(name string, v any) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.WithError(err).WithField("file", name).Warn("vector: cannot read column")
		}
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.WithError(err).WithField("file", name).Warn("vector: corrupt column, starting empty")
	}
}

func (s *ColumnarStore) rebuildUntagged() {
	tagged := make(map[string]bool)
	for _, ids := range s.tags {
		for _, id := range ids {
			tagged[id] = true
		}
	}
	s.untagged = s.untagged[:0]
	for id := range s.docs {
		if !tagged[id] {
			s.untagged = append(s.untagged, id)
		}
	}
	sort.Strings(s.untagged)
}

func (s *ColumnarStore) saveLocked() error {
	columns := map[string]any{
		"documents.json":          s.docs,
		"content_embeddings.json": s.contentVecs,
		"tags.json":               s.tags,
		"tag_embeddings.json":     s.tagVecs,
		"stats.json":              columnarStats{Documents: len(s.docs), Tags: len(s.tags)},
	}
	for name, v := range columns {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("vector: marshal %s: %w", name, err)
		}
		path := filepath.Join(s.dir, name)
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			return fmt.Errorf("vector: write %s: %w", name, err)
		}
		if err := os.Rename(tmp, path); err != nil {
			return fmt.Errorf("vector: rename %s: %w", name, err)
		}
	}
	return nil
}

func (s *ColumnarStore) AddDocuments(ctx context.Context, docs []types.Document) ([]string, error) {
	ids := make([]string, 0, len(docs))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range docs {
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		vec, err := s.embedder.Embed(ctx, doc.Content)
		if err != nil {
			return ids, fmt.Errorf("vector: embed document: %w", err)
		}
		s.docs[doc.ID] = doc
		s.contentVecs[doc.ID] = vec
		if err := s.tagLocked(ctx, doc); err != nil {
			return ids, err
		}
		ids = append(ids, doc.ID)
	}
	if err := s.saveLocked(); err != nil {
		return ids, err
	}
	return ids, nil
}

// docThemes returns the document's theme tags, subject then object,
// deduplicated.
func docThemes(doc types.Document) []string {
	var themes []string
	for _, key := range []string{"subject", "object"} {
		name := doc.MetaString(key)
		if name == "" || (len(themes) > 0 && themes[0] == name) {
			continue
		}
		themes = append(themes, name)
	}
	return themes
}

// tagLocked files the document under its subject and object theme tags,
// embedding each tag name the first time it appears.
func (s *ColumnarStore) tagLocked(ctx context.Context, doc types.Document) error {
	themes := docThemes(doc)
	if len(themes) == 0 {
		s.untagged = append(s.untagged, doc.ID)
		return nil
	}
	for _, theme := range themes {
		if _, ok := s.tagVecs[theme]; !ok {
			vec, err := s.embedder.Embed(ctx, theme)
			if err != nil {
				return fmt.Errorf("vector: embed tag %q: %w", theme, err)
			}
			s.tagVecs[theme] = vec
		}
		s.tags[theme] = append(s.tags[theme], doc.ID)
	}
	return nil
}

func (s *ColumnarStore) untagLocked(id string) {
	var themes []string
	if doc, ok := s.docs[id]; ok {
		themes = docThemes(doc)
	}
	if len(themes) == 0 {
		for i, uid := range s.untagged {
			if uid == id {
				s.untagged = append(s.untagged[:i], s.untagged[i+1:]...)
				break
			}
		}
		return
	}
	for _, theme := range themes {
		ids := s.tags[theme]
		for i, did := range ids {
			if did == id {
				ids = append(ids[:i], ids[i+1:]...)
				break
			}
		}
		if len(ids) == 0 {
			delete(s.tags, theme)
			delete(s.tagVecs, theme)
		} else {
			s.tags[theme] = ids
		}
	}
}

func (s *ColumnarStore) UpdateDocument(ctx context.Context, id string, doc types.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return ErrNotFound
	}
	vec, err := s.embedder.Embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("vector: embed document: %w", err)
	}
	s.untagLocked(id)
	doc.ID = id
	s.docs[id] = doc
	s.contentVecs[id] = vec
	if err := s.tagLocked(ctx, doc); err != nil {
		return err
	}
	return s.saveLocked()
}

func (s *ColumnarStore) DeleteDocuments(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if _, ok := s.docs[id]; !ok {
			continue
		}
		s.untagLocked(id)
		delete(s.docs, id)
		delete(s.contentVecs, id)
	}
	return s.saveLocked()
}

func (s *ColumnarStore) DocumentsByIDs(ctx context.Context, ids []string) ([]types.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := s.docs[id]; ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *ColumnarStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

func (s *ColumnarStore) Close() error { return nil }

// Search runs spreading activation. The query embedding activates its
// most similar theme tags; their documents are scored against the
// query, and the kept documents' subjects and objects seed the next
// round. Untagged documents are always candidates in the first round.
func (s *ColumnarStore) Search(ctx context.Context, query string, k int, filters map[string]string) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}
	qv, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vector: embed query: %w", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	visited := make(map[string]bool)
	scored := make(map[string]Result)
	seedVecs := [][]float32{qv}

	for iter := 0; iter < s.opts.SearchIterations && len(seedVecs) > 0; iter++ {
		candidates := make(map[string]bool)
		for _, sv := range seedVecs {
			for _, tag := range s.topTagsLocked(sv, visited) {
				visited[tag] = true
				for _, id := range s.tags[tag] {
					candidates[id] = true
				}
			}
		}
		if iter == 0 {
			for _, id := range s.untagged {
				candidates[id] = true
			}
		}

		kept := s.scoreLocked(qv, candidates, k, filters)
		seedVecs = seedVecs[:0]
		for _, res := range kept {
			scored[res.Document.ID] = res
			for _, key := range []string{"subject", "object"} {
				name := res.Document.MetaString(key)
				if name == "" || visited[name] {
					continue
				}
				if vec, ok := s.tagVecs[name]; ok {
					seedVecs = append(seedVecs, vec)
				}
			}
		}
	}

	out := make([]Result, 0, len(scored))
	for _, res := range scored {
		out = append(out, res)
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

// topTagsLocked returns the TagFanout unvisited tags most similar to
// the seed vector.
func (s *ColumnarStore) topTagsLocked(seed []float32, visited map[string]bool) []string {
	type tagDist struct {
		tag  string
		dist float64
	}
	dists := make([]tagDist, 0, len(s.tagVecs))
	for tag, vec := range s.tagVecs {
		if visited[tag] {
			continue
		}
		dists = append(dists, tagDist{tag: tag, dist: cosineDistance(seed, vec)})
	}
	sort.SliceStable(dists, func(i, j int) bool {
		if dists[i].dist != dists[j].dist {
			return dists[i].dist < dists[j].dist
		}
		return dists[i].tag < dists[j].tag
	})
	if len(dists) > s.opts.TagFanout {
		dists = dists[:s.opts.TagFanout]
	}
	out := make([]string, len(dists))
	for i, d := range dists {
		out[i] = d.tag
	}
	return out
}

// scoreLocked scores candidate documents against the query vector and
// returns the top k that pass the metadata filters.
func (s *ColumnarStore) scoreLocked(qv []float32, candidates map[string]bool, k int, filters map[string]string) []Result {
	out := make([]Result, 0, len(candidates))
	for id := range candidates {
		doc := s.docs[id]
		if !matchesFilters(doc, filters) {
			continue
		}
		dist := cosineDistance(qv, s.contentVecs[id])
		out = append(out, Result{Document: doc, Score: distanceScore(dist)})
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
	return out
}
