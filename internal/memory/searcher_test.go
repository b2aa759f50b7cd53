package memory

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utakata/mnemosyne/internal/fetcher"
	"github.com/utakata/mnemosyne/internal/graph"
	"github.com/utakata/mnemosyne/internal/vector"
	"github.com/utakata/mnemosyne/pkg/types"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// scriptedGenerator returns canned responses in order, optionally
// blocking on a gate to expose concurrency.
type scriptedGenerator struct {
	mu        sync.Mutex
	responses []string
	prompts   []string
	err       error
	gate      chan struct{}
}

func (g *scriptedGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	if g.gate != nil {
		<-g.gate
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	if len(g.responses) == 0 {
		return "", nil
	}
	resp := g.responses[0]
	if len(g.responses) > 1 {
		g.responses = g.responses[1:]
	}
	return resp, nil
}

func (g *scriptedGenerator) Model() string { return "scripted" }

// stubStore is an in-memory vector.Store with deterministic search
// results scripted per query.
type stubStore struct {
	mu      sync.Mutex
	docs    map[string]types.Document
	results map[string][]vector.Result // query -> hits
	nextID  int
}

func newStubStore() *stubStore {
	return &stubStore{
		docs:    make(map[string]types.Document),
		results: make(map[string][]vector.Result),
	}
}

func (s *stubStore) AddDocuments(_ context.Context, docs []types.Document) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc.ID == "" {
			s.nextID++
			doc.ID = fmt.Sprintf("doc-%04d", s.nextID)
		}
		s.docs[doc.ID] = doc
		ids = append(ids, doc.ID)
	}
	return ids, nil
}

func (s *stubStore) Search(_ context.Context, query string, k int, _ map[string]string) ([]vector.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hits := s.results[query]
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *stubStore) UpdateDocument(_ context.Context, id string, doc types.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return vector.ErrNotFound
	}
	doc.ID = id
	s.docs[id] = doc
	return nil
}

func (s *stubStore) DeleteDocuments(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.docs, id)
	}
	return nil
}

func (s *stubStore) DocumentsByIDs(_ context.Context, ids []string) ([]types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	out := make([]types.Document, 0, len(sorted))
	for _, id := range sorted {
		if doc, ok := s.docs[id]; ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *stubStore) Count(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs), nil
}

func (s *stubStore) Close() error { return nil }

type stubFetcher struct {
	descriptions map[string]string
	calls        []string
}

func (f *stubFetcher) FetchDescription(_ context.Context, name string) (string, error) {
	f.calls = append(f.calls, name)
	if desc, ok := f.descriptions[name]; ok {
		return desc, nil
	}
	return "", fetcher.ErrNotFound
}

func testRetriever(t *testing.T) *graph.Retriever {
	t.Helper()
	dir := t.TempDir()
	r := graph.OpenRetriever(
		filepath.Join(dir, "graph.json"), filepath.Join(dir, "alias.json"),
		graph.RetrieverOptions{}, testLogger())
	for _, e := range []*types.Entity{
		{ID: "luo_tianyi", Name: "洛天依", Type: types.EntityPerson},
		{ID: "mingyue", Name: "明月", Type: types.EntitySong},
	} {
		require.NoError(t, r.AddEntity(e))
	}
	require.NoError(t, r.AddRelation(&types.Relation{
		SourceID: "mingyue", TargetID: "luo_tianyi", Type: types.RelPerformedBy,
	}))
	return r
}

func newTestSearcher(t *testing.T, store *stubStore, gen *scriptedGenerator, f *stubFetcher) *Searcher {
	t.Helper()
	if f == nil {
		f = &stubFetcher{}
	}
	return NewSearcher(store, testRetriever(t), f, gen, SearcherOptions{}, testLogger())
}

func TestSearch_VectorHitsRenderTimestamps(t *testing.T) {
	store := newStubStore()
	store.results["tianyi songs"] = []vector.Result{
		{Document: types.Document{ID: "m1", Content: "likes 明月",
			Metadata: map[string]any{"timestamp": "2026-08-01 10:00:00"}}, Score: 0.9},
		{Document: types.Document{ID: "m2", Content: "plain fact"}, Score: 0.5},
	}
	gen := &scriptedGenerator{responses: []string{"v_search(query='tianyi songs')"}}

	snippets, usedIDs := newTestSearcher(t, store, gen, nil).Search(context.Background(), "hi", nil)
	require.Len(t, snippets, 2)
	assert.Equal(t, "(2026-08-01 10:00:00) likes 明月", snippets[0])
	assert.Equal(t, "plain fact", snippets[1])
	assert.True(t, usedIDs["m1"])
	assert.True(t, usedIDs["m2"])
}

func TestSearch_DeduplicatesAcrossLines(t *testing.T) {
	store := newStubStore()
	hit := vector.Result{Document: types.Document{ID: "m1", Content: "shared fact"}, Score: 0.9}
	store.results["q1"] = []vector.Result{hit}
	store.results["q2"] = []vector.Result{hit}
	gen := &scriptedGenerator{responses: []string{
		"v_search(query='q1')\nv_search(query='q2')",
	}}

	snippets, usedIDs := newTestSearcher(t, store, gen, nil).Search(context.Background(), "hi", nil)
	assert.Len(t, snippets, 1)
	assert.Len(t, usedIDs, 1)
}

func TestSearch_GraphEntity(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{"g_search_entity(entity_name='《洛天依》')"}}

	snippets, _ := newTestSearcher(t, newStubStore(), gen, nil).Search(context.Background(), "hi", nil)
	require.Len(t, snippets, 1)
	assert.Contains(t, snippets[0], "洛天依")
}

func TestSearch_EntityFallsBackToFetcher(t *testing.T) {
	f := &stubFetcher{descriptions: map[string]string{"初音未来": "虚拟歌手。"}}
	gen := &scriptedGenerator{responses: []string{
		"g_search_entity(entity_name='初音未来')\ng_search_entity(entity_name='unknown one')",
	}}

	snippets, _ := newTestSearcher(t, newStubStore(), gen, f).Search(context.Background(), "hi", nil)
	require.Len(t, snippets, 2)
	assert.Equal(t, "虚拟歌手。", snippets[0])
	assert.Equal(t, "no information found about unknown one.", snippets[1])
}

func TestSearch_GraphQueries(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{strings.Join([]string{
		"get_neighbors(entity_name='luo_tianyi')",
		"get_shared_neighbors(entity_name1='luo_tianyi', entity_name2='mingyue')",
		"find_connections(entity_name1='mingyue', entity_name2='luo_tianyi')",
	}, "\n")}}

	snippets, _ := newTestSearcher(t, newStubStore(), gen, nil).Search(context.Background(), "hi", nil)
	require.Len(t, snippets, 3)
	assert.Contains(t, snippets[0], "mingyue")
	assert.Contains(t, snippets[1], "no shared neighbors")
	assert.Contains(t, snippets[2], "--[performed_by]-->")
}

func TestSearch_SkipsBadLinesAndCommentary(t *testing.T) {
	store := newStubStore()
	store.results["good"] = []vector.Result{
		{Document: types.Document{ID: "m1", Content: "kept"}, Score: 1},
	}
	gen := &scriptedGenerator{responses: []string{strings.Join([]string{
		"not a command",
		"teleport(entity_name='moon')",
		"v_search(query='good')",
		"## planning notes",
		"v_search(query='good')",
	}, "\n")}}

	snippets, _ := newTestSearcher(t, store, gen, nil).Search(context.Background(), "hi", nil)
	require.Len(t, snippets, 1)
	assert.Equal(t, "kept", snippets[0])
}

func TestSearch_PlannerFailureDegradesToNothing(t *testing.T) {
	gen := &scriptedGenerator{err: fmt.Errorf("model down")}

	snippets, usedIDs := newTestSearcher(t, newStubStore(), gen, nil).Search(context.Background(), "hi", nil)
	assert.Empty(t, snippets)
	assert.Empty(t, usedIDs)
}
