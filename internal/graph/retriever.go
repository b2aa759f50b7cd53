package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/utakata/mnemosyne/pkg/types"
)

// graphFile is the on-disk shape of the knowledge graph.
type graphFile struct {
	Entities  []*types.Entity   `json:"entities"`
	Relations []*types.Relation `json:"relations"`
}

// RetrieverOptions tunes graph query rendering.
type RetrieverOptions struct {
	MaxPathDepth int // hops explored by FindConnections, default 3
	MaxPaths     int // paths returned by FindConnections, default 5
	MaxNeighbors int // entities listed per neighbor query, default 10
}

func (o *RetrieverOptions) defaults() {
	if o.MaxPathDepth <= 0 {
		o.MaxPathDepth = 3
	}
	if o.MaxPaths <= 0 {
		o.MaxPaths = 5
	}
	if o.MaxNeighbors <= 0 {
		o.MaxNeighbors = 10
	}
}

// Retriever is the concurrency-safe facade over a Graph, backed by two
// JSON files: the graph itself and the learned alias table.
type Retriever struct {
	mu        sync.RWMutex
	g         *Graph
	graphPath string
	aliasPath string
	opts      RetrieverOptions
	logger    *logrus.Logger
}

// OpenRetriever loads the graph and alias files. Missing or corrupt
// files start an empty graph rather than failing.
func OpenRetriever(graphPath, aliasPath string, opts RetrieverOptions, logger *logrus.Logger) *Retriever {
	opts.defaults()
	r := &Retriever{
		g:         New(logger),
		graphPath: graphPath,
		aliasPath: aliasPath,
		opts:      opts,
		logger:    logger,
	}
	r.mu.Lock()
	r.loadLocked()
	r.mu.Unlock()
	return r
}

func (r *Retriever) loadLocked() {
	g := New(r.logger)
	if data, err := os.ReadFile(r.graphPath); err == nil {
		var gf graphFile
		if err := json.Unmarshal(data, &gf); err != nil {
			r.logger.WithError(err).WithField("path", r.graphPath).
				Warn("graph: corrupt graph file, starting empty")
		} else {
			for _, e := range gf.Entities {
				g.AddEntity(e)
			}
			for _, rel := range gf.Relations {
				if err := g.AddRelation(rel); err != nil {
					r.logger.WithError(err).Warn("graph: dropping relation with missing endpoint")
				}
			}
		}
	} else if !os.IsNotExist(err) {
		r.logger.WithError(err).Warn("graph: cannot read graph file")
	}
	if data, err := os.ReadFile(r.aliasPath); err == nil {
		aliases := make(map[string]string)
		if err := json.Unmarshal(data, &aliases); err != nil {
			r.logger.WithError(err).WithField("path", r.aliasPath).
				Warn("graph: corrupt alias file, starting empty")
		} else {
			g.aliases = aliases
		}
	}
	r.g = g
	r.logger.WithFields(logrus.Fields{
		"entities": g.EntityCount(), "relations": g.RelationCount(), "aliases": len(g.aliases),
	}).Info("graph: loaded")
}

// Reload re-reads both files from disk, replacing the in-memory graph.
func (r *Retriever) Reload() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loadLocked()
}

// Save writes the graph and alias table to disk atomically.
func (r *Retriever) Save() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.saveLocked()
}

func (r *Retriever) saveLocked() error {
	gf := graphFile{}
	for _, e := range r.g.entities {
		gf.Entities = append(gf.Entities, e)
	}
	for _, rel := range r.g.relations {
		gf.Relations = append(gf.Relations, rel)
	}
	sort.Slice(gf.Entities, func(i, j int) bool { return gf.Entities[i].ID < gf.Entities[j].ID })
	sort.Slice(gf.Relations, func(i, j int) bool { return gf.Relations[i].ID < gf.Relations[j].ID })
	if err := writeJSONAtomic(r.graphPath, gf); err != nil {
		return fmt.Errorf("graph: persist graph: %w", err)
	}
	return r.saveAliasesLocked()
}

func (r *Retriever) saveAliasesLocked() error {
	if err := writeJSONAtomic(r.aliasPath, r.g.aliases); err != nil {
		return fmt.Errorf("graph: persist aliases: %w", err)
	}
	return nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// AddEntity inserts an entity and persists the graph.
func (r *Retriever) AddEntity(e *types.Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.g.AddEntity(e)
	return r.saveLocked()
}

// AddRelation inserts a relation and persists the graph.
func (r *Retriever) AddRelation(rel *types.Relation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.g.AddRelation(rel); err != nil {
		return err
	}
	return r.saveLocked()
}

// AddAlias records a known surface form and persists the alias table.
func (r *Retriever) AddAlias(alias, entityID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.g.AddAlias(alias, entityID)
	return r.saveAliasesLocked()
}

// Stats returns entity and relation counts.
func (r *Retriever) Stats() (entities, relations int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.g.EntityCount(), r.g.RelationCount()
}

// resolveLocked resolves a raw name and is the one place a fuzzy match
// is memoized into the alias table and persisted. Callers hold r.mu.
func (r *Retriever) resolveLocked(raw string) (Resolution, bool) {
	res, ok := r.g.ResolveCanonicalID(raw)
	if !ok {
		return Resolution{}, false
	}
	if res.Learned {
		r.g.AddAlias(raw, res.ID)
		r.logger.WithFields(logrus.Fields{"raw": raw, "entity": res.ID}).
			Debug("graph: learned alias from fuzzy match")
		if err := r.saveAliasesLocked(); err != nil {
			r.logger.WithError(err).Warn("graph: could not persist learned alias")
		}
	}
	return res, true
}

// ResolveEntity maps a raw name to a canonical entity ID. Fuzzy matches
// are persisted to the alias table as they are learned.
func (r *Retriever) ResolveEntity(raw string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.resolveLocked(raw)
	if !ok {
		return "", false
	}
	return res.ID, true
}

// DescribeEntity resolves a name and renders the entity's summary line.
func (r *Retriever) DescribeEntity(raw string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.resolveLocked(raw)
	if !ok {
		return "", false
	}
	e := r.g.entities[res.ID]
	return e.Summary(), true
}

// GetNeighbors renders the entities adjacent to raw, optionally
// filtered by neighbor entity type.
func (r *Retriever) GetNeighbors(raw string, neighborType types.EntityType) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.resolveLocked(raw)
	if !ok {
		return "", false
	}
	neighbors := r.g.Neighbors(res.ID, DirBoth, "", neighborType)
	if len(neighbors) == 0 {
		return fmt.Sprintf("%s has no matching neighbors.", res.ID), true
	}
	parts := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		parts = append(parts, fmt.Sprintf("%s (%s)", n.Entity.ID, n.Label))
	}
	sort.Strings(parts)
	if len(parts) > r.opts.MaxNeighbors {
		parts = parts[:r.opts.MaxNeighbors]
	}
	return fmt.Sprintf("neighbors of %s: %s", res.ID, strings.Join(parts, ", ")), true
}

// GetSharedNeighbors renders the entities adjacent to both a and b.
func (r *Retriever) GetSharedNeighbors(rawA, rawB string, neighborType types.EntityType) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	resA, okA := r.resolveLocked(rawA)
	resB, okB := r.resolveLocked(rawB)
	if !okA || !okB {
		return "", false
	}
	seen := make(map[string]bool)
	for _, n := range r.g.Neighbors(resA.ID, DirBoth, "", neighborType) {
		seen[n.Entity.ID] = true
	}
	var shared []string
	for _, n := range r.g.Neighbors(resB.ID, DirBoth, "", neighborType) {
		if seen[n.Entity.ID] {
			shared = append(shared, n.Entity.ID)
			seen[n.Entity.ID] = false
		}
	}
	if len(shared) == 0 {
		return fmt.Sprintf("%s and %s have no shared neighbors.", resA.ID, resB.ID), true
	}
	sort.Strings(shared)
	if len(shared) > r.opts.MaxNeighbors {
		shared = shared[:r.opts.MaxNeighbors]
	}
	return fmt.Sprintf("shared neighbors of %s and %s: %s",
		resA.ID, resB.ID, strings.Join(shared, ", ")), true
}

// FindConnections renders up to MaxPaths undirected paths between two
// entities, shortest first.
func (r *Retriever) FindConnections(rawA, rawB string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	resA, okA := r.resolveLocked(rawA)
	resB, okB := r.resolveLocked(rawB)
	if !okA || !okB {
		return "", false
	}
	paths := r.g.FindPaths(resA.ID, resB.ID, r.opts.MaxPathDepth, true)
	if len(paths) == 0 {
		return fmt.Sprintf("no connection found between %s and %s.", resA.ID, resB.ID), true
	}
	if len(paths) > r.opts.MaxPaths {
		paths = paths[:r.opts.MaxPaths]
	}
	rendered := make([]string, len(paths))
	for i, p := range paths {
		rendered[i] = p.String()
	}
	return strings.Join(rendered, " , "), true
}
