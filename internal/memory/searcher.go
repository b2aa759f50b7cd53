package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/utakata/mnemosyne/internal/fetcher"
	"github.com/utakata/mnemosyne/internal/graph"
	"github.com/utakata/mnemosyne/internal/llm"
	"github.com/utakata/mnemosyne/internal/vector"
	"github.com/utakata/mnemosyne/pkg/types"
)

// SearcherOptions bounds how much each plan line may retrieve.
type SearcherOptions struct {
	MaxVectorHits int // hits per v_search line, default 5
	MaxGraphHits  int // entities per graph query, default 5
}

func (o *SearcherOptions) defaults() {
	if o.MaxVectorHits <= 0 {
		o.MaxVectorHits = 5
	}
	if o.MaxGraphHits <= 0 {
		o.MaxGraphHits = 5
	}
}

// Searcher asks the model for a retrieval plan and executes it against
// the vector store, the knowledge graph and the external fetcher.
type Searcher struct {
	store   vector.Store
	graph   *graph.Retriever
	fetcher fetcher.Fetcher
	gen     llm.TextGenerator
	opts    SearcherOptions
	logger  *logrus.Logger
}

func NewSearcher(store vector.Store, g *graph.Retriever, f fetcher.Fetcher, gen llm.TextGenerator, opts SearcherOptions, logger *logrus.Logger) *Searcher {
	opts.defaults()
	return &Searcher{store: store, graph: g, fetcher: f, gen: gen, opts: opts, logger: logger}
}

// Search plans and executes retrieval for the user's input. It returns
// knowledge snippets for the reply prompt and the IDs of every vector
// document that contributed, so the write path can amend them later.
// A failed plan or a failed line degrades to fewer snippets, never to
// an error.
func (s *Searcher) Search(ctx context.Context, input string, history []string) ([]string, map[string]bool) {
	usedIDs := make(map[string]bool)

	prompt := llm.SearchPlanPrompt(input, history, s.opts.MaxVectorHits, s.opts.MaxGraphHits)
	resp, err := s.gen.Complete(ctx, prompt)
	if err != nil {
		s.logger.WithError(err).Warn("memory: search planning failed")
		return nil, usedIDs
	}
	lines, malformed := llm.ParsePlan(resp)
	for _, m := range malformed {
		s.logger.WithField("line", m).Warn("memory: skipping malformed plan line")
	}

	var snippets []string
	for _, line := range lines {
		cmd, err := DecodeCommand(line)
		if err != nil {
			s.logger.WithError(err).WithField("line", line.Name).Warn("memory: skipping plan line")
			continue
		}
		out, err := s.execute(ctx, cmd, usedIDs)
		if err != nil {
			s.logger.WithError(err).WithField("command", line.Name).Warn("memory: plan line failed")
			continue
		}
		snippets = append(snippets, out...)
	}
	return snippets, usedIDs
}

func (s *Searcher) execute(ctx context.Context, cmd Command, usedIDs map[string]bool) ([]string, error) {
	switch c := cmd.(type) {
	case VSearch:
		return s.vectorSearch(ctx, c.Query, usedIDs)
	case GSearchEntity:
		return []string{s.describeEntity(ctx, c.Name)}, nil
	case GetNeighbors:
		out, ok := s.graph.GetNeighbors(c.Entity, types.EntityType(c.NeighborType))
		if !ok {
			return []string{noInformation(c.Entity)}, nil
		}
		return []string{out}, nil
	case GetSharedNeighbors:
		out, ok := s.graph.GetSharedNeighbors(c.A, c.B, types.EntityType(c.NeighborType))
		if !ok {
			return []string{noInformation(c.A + " and " + c.B)}, nil
		}
		return []string{out}, nil
	case FindConnections:
		out, ok := s.graph.FindConnections(c.A, c.B)
		if !ok {
			return []string{noInformation(c.A + " and " + c.B)}, nil
		}
		return []string{out}, nil
	default:
		return nil, fmt.Errorf("unhandled command %T", cmd)
	}
}

func (s *Searcher) vectorSearch(ctx context.Context, query string, usedIDs map[string]bool) ([]string, error) {
	results, err := s.store.Search(ctx, query, s.opts.MaxVectorHits, nil)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, res := range results {
		if usedIDs[res.Document.ID] {
			continue
		}
		usedIDs[res.Document.ID] = true
		if ts := res.Document.MetaString("timestamp"); ts != "" {
			out = append(out, fmt.Sprintf("(%s) %s", ts, res.Document.Content))
		} else {
			out = append(out, res.Document.Content)
		}
	}
	return out, nil
}

// describeEntity prefers the knowledge graph and falls back to the
// external fetcher for names the graph does not know.
func (s *Searcher) describeEntity(ctx context.Context, name string) string {
	if desc, ok := s.graph.DescribeEntity(name); ok {
		return desc
	}
	desc, err := s.fetcher.FetchDescription(ctx, name)
	if err != nil {
		if !errors.Is(err, fetcher.ErrNotFound) {
			s.logger.WithError(err).WithField("entity", name).Warn("memory: external lookup failed")
		}
		return noInformation(name)
	}
	return desc
}

func noInformation(name string) string {
	return fmt.Sprintf("no information found about %s.", name)
}
