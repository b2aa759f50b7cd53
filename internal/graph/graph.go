// Package graph implements an in-memory knowledge graph with typed
// entities, directed relations and fuzzy name resolution.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/utakata/mnemosyne/pkg/types"
)

// Direction selects which edges Neighbors traverses.
type Direction int

const (
	DirOut Direction = iota
	DirIn
	DirBoth
)

// Neighbor is an adjacent entity together with the relation label that
// reaches it. Incoming edges carry a "<-" prefix on the label.
type Neighbor struct {
	Entity *types.Entity
	Label  string
}

// Resolution is the outcome of resolving a raw surface form to a
// canonical entity ID. Learned is true when the match was fuzzy and the
// caller should persist the new alias.
type Resolution struct {
	ID      string
	Learned bool
}

// Graph holds entities, relations and learned aliases. It is not safe
// for concurrent use; Retriever provides the locked facade.
type Graph struct {
	entities  map[string]*types.Entity
	relations map[string]*types.Relation
	out       map[string][]string // entity ID -> outgoing relation IDs
	in        map[string][]string // entity ID -> incoming relation IDs
	aliases   map[string]string   // surface form -> entity ID
	logger    *logrus.Logger
}

func New(logger *logrus.Logger) *Graph {
	return &Graph{
		entities:  make(map[string]*types.Entity),
		relations: make(map[string]*types.Relation),
		out:       make(map[string][]string),
		in:        make(map[string][]string),
		aliases:   make(map[string]string),
		logger:    logger,
	}
}

// AddEntity inserts a new entity. Duplicate IDs are ignored so that
// re-ingesting a dataset is idempotent.
func (g *Graph) AddEntity(e *types.Entity) {
	if e == nil || e.ID == "" {
		return
	}
	if _, ok := g.entities[e.ID]; ok {
		g.logger.WithField("entity", e.ID).Debug("graph: duplicate entity ignored")
		return
	}
	g.entities[e.ID] = e
}

// UpdateEntity merges properties into an existing entity. Unknown IDs
// are an error; use AddEntity to create.
func (g *Graph) UpdateEntity(id string, props map[string]string) error {
	e, ok := g.entities[id]
	if !ok {
		return fmt.Errorf("graph: unknown entity %q", id)
	}
	if e.Properties == nil {
		e.Properties = make(map[string]string, len(props))
	}
	for k, v := range props {
		e.Properties[k] = v
	}
	return nil
}

// Entity returns the entity with the given ID, if present.
func (g *Graph) Entity(id string) (*types.Entity, bool) {
	e, ok := g.entities[id]
	return e, ok
}

// EntityCount returns the number of entities in the graph.
func (g *Graph) EntityCount() int { return len(g.entities) }

// RelationCount returns the number of relations in the graph.
func (g *Graph) RelationCount() int { return len(g.relations) }

// AddRelation inserts a directed relation. Both endpoints must already
// exist. A relation with the same source, target and type as an
// existing one is ignored.
func (g *Graph) AddRelation(r *types.Relation) error {
	if r == nil {
		return fmt.Errorf("graph: nil relation")
	}
	if _, ok := g.entities[r.SourceID]; !ok {
		return fmt.Errorf("graph: relation source %q does not exist", r.SourceID)
	}
	if _, ok := g.entities[r.TargetID]; !ok {
		return fmt.Errorf("graph: relation target %q does not exist", r.TargetID)
	}
	for _, rid := range g.out[r.SourceID] {
		ex := g.relations[rid]
		if ex.TargetID == r.TargetID && ex.Type == r.Type {
			g.logger.WithFields(logrus.Fields{
				"source": r.SourceID, "target": r.TargetID, "type": r.Type,
			}).Debug("graph: duplicate relation ignored")
			return nil
		}
	}
	if r.ID == "" {
		r.ID = fmt.Sprintf("%s|%s|%s", r.SourceID, r.Type, r.TargetID)
	}
	g.relations[r.ID] = r
	g.out[r.SourceID] = append(g.out[r.SourceID], r.ID)
	g.in[r.TargetID] = append(g.in[r.TargetID], r.ID)
	return nil
}

// AddAlias records a surface form for an entity.
func (g *Graph) AddAlias(alias, entityID string) {
	if alias == "" || alias == entityID {
		return
	}
	g.aliases[alias] = entityID
}

// Neighbors returns entities adjacent to id. relType and neighborType
// filter by relation type and neighbor entity type; empty strings match
// everything.
func (g *Graph) Neighbors(id string, dir Direction, relType types.RelationType, neighborType types.EntityType) []Neighbor {
	var out []Neighbor
	if dir == DirOut || dir == DirBoth {
		for _, rid := range g.out[id] {
			r := g.relations[rid]
			if relType != "" && r.Type != relType {
				continue
			}
			e := g.entities[r.TargetID]
			if neighborType != "" && e.Type != neighborType {
				continue
			}
			out = append(out, Neighbor{Entity: e, Label: string(r.Type)})
		}
	}
	if dir == DirIn || dir == DirBoth {
		for _, rid := range g.in[id] {
			r := g.relations[rid]
			if relType != "" && r.Type != relType {
				continue
			}
			e := g.entities[r.SourceID]
			if neighborType != "" && e.Type != neighborType {
				continue
			}
			out = append(out, Neighbor{Entity: e, Label: "<-" + string(r.Type)})
		}
	}
	return out
}

// EntitiesByType returns all entities of the given type, sorted by ID
// for stable output.
func (g *Graph) EntitiesByType(t types.EntityType) []*types.Entity {
	var out []*types.Entity
	for _, e := range g.entities {
		if e.Type == t {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RelationsBetween returns relations in either direction between a and b.
func (g *Graph) RelationsBetween(a, b string) []*types.Relation {
	var out []*types.Relation
	for _, rid := range g.out[a] {
		if r := g.relations[rid]; r.TargetID == b {
			out = append(out, r)
		}
	}
	for _, rid := range g.out[b] {
		if r := g.relations[rid]; r.TargetID == a {
			out = append(out, r)
		}
	}
	return out
}

// Path is a sequence of entity IDs with the relation labels that join
// them. Labels[i] connects Nodes[i] to Nodes[i+1]; a "<-" prefix marks
// an edge traversed against its direction.
type Path struct {
	Nodes  []string
	Labels []string
}

// String renders the path as "A --[T]--> B" hops joined by spaces, with
// reversed hops shown as "A <--[T]-- B".
func (p Path) String() string {
	if len(p.Nodes) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(p.Nodes[0])
	for i, label := range p.Labels {
		if rest, ok := strings.CutPrefix(label, "<-"); ok {
			b.WriteString(" <--[" + rest + "]-- ")
		} else {
			b.WriteString(" --[" + label + "]--> ")
		}
		b.WriteString(p.Nodes[i+1])
	}
	return b.String()
}

// FindPaths enumerates simple paths from a to b up to maxDepth hops.
// When undirected is true, edges may be traversed either way; reversed
// hops get "<-"-prefixed labels. Paths are sorted by hop count.
func (g *Graph) FindPaths(a, b string, maxDepth int, undirected bool) []Path {
	if _, ok := g.entities[a]; !ok {
		return nil
	}
	if _, ok := g.entities[b]; !ok {
		return nil
	}
	var paths []Path
	visited := map[string]bool{a: true}
	var dfs func(cur string, nodes, labels []string)
	dfs = func(cur string, nodes, labels []string) {
		if cur == b {
			paths = append(paths, Path{
				Nodes:  append([]string(nil), nodes...),
				Labels: append([]string(nil), labels...),
			})
			return
		}
		if len(labels) >= maxDepth {
			return
		}
		step := func(next, label string) {
			if visited[next] {
				return
			}
			visited[next] = true
			dfs(next, append(nodes, next), append(labels, label))
			visited[next] = false
		}
		for _, rid := range g.out[cur] {
			r := g.relations[rid]
			step(r.TargetID, string(r.Type))
		}
		if undirected {
			for _, rid := range g.in[cur] {
				r := g.relations[rid]
				step(r.SourceID, "<-"+string(r.Type))
			}
		}
	}
	dfs(a, []string{a}, nil)
	sort.SliceStable(paths, func(i, j int) bool {
		return len(paths[i].Labels) < len(paths[j].Labels)
	})
	return paths
}

// ResolveCanonicalID maps a raw surface form to a canonical entity ID.
// Lookup order: exact ID, lowercased ID, exact alias, lowercased alias,
// then fuzzy matching by longest common substring. The method never
// mutates the alias table; fuzzy hits come back flagged Learned so the
// caller can memoize and persist them at one place.
func (g *Graph) ResolveCanonicalID(raw string) (Resolution, bool) {
	if raw == "" {
		return Resolution{}, false
	}
	if _, ok := g.entities[raw]; ok {
		return Resolution{ID: raw}, true
	}
	lower := strings.ToLower(raw)
	if _, ok := g.entities[lower]; ok {
		return Resolution{ID: lower}, true
	}
	if id, ok := g.aliases[raw]; ok {
		return Resolution{ID: id}, true
	}
	if id, ok := g.aliases[lower]; ok {
		return Resolution{ID: id}, true
	}

	rawRunes := []rune(lower)
	// Short forms match too easily; require at least 2 common runes,
	// or half the input for longer names.
	threshold := float64(len(rawRunes)) / 2
	if threshold < 2 {
		threshold = 2
	}
	bestID, bestLen := "", 0
	candidate := func(form, id string) {
		n := commonSubstringLen(rawRunes, []rune(strings.ToLower(form)))
		if n > bestLen {
			bestID, bestLen = id, n
		}
	}
	for id, e := range g.entities {
		candidate(id, id)
		if e.Name != "" && e.Name != id {
			candidate(e.Name, id)
		}
	}
	for alias, id := range g.aliases {
		candidate(alias, id)
	}
	if float64(bestLen) >= threshold {
		return Resolution{ID: bestID, Learned: true}, true
	}
	return Resolution{}, false
}

// commonSubstringLen returns the length in runes of the longest common
// substring of a and b.
func commonSubstringLen(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	best := 0
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > best {
					best = cur[j]
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return best
}
