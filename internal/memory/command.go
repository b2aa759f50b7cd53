// Package memory interprets model-authored command plans to read and
// write the agent's long-term memory.
package memory

import (
	"fmt"
	"strings"

	"github.com/utakata/mnemosyne/internal/llm"
)

// Command is one decoded retrieval instruction.
type Command interface {
	commandName() string
}

// VSearch queries the vector store.
type VSearch struct {
	Query string
}

// GSearchEntity looks up a single entity in the knowledge graph.
type GSearchEntity struct {
	Name string
}

// GetNeighbors lists entities adjacent to one entity.
type GetNeighbors struct {
	Entity       string
	NeighborType string
}

// GetSharedNeighbors lists entities adjacent to both given entities.
type GetSharedNeighbors struct {
	A            string
	B            string
	NeighborType string
}

// FindConnections renders paths between two entities.
type FindConnections struct {
	A string
	B string
}

func (VSearch) commandName() string            { return "v_search" }
func (GSearchEntity) commandName() string      { return "g_search_entity" }
func (GetNeighbors) commandName() string       { return "get_neighbors" }
func (GetSharedNeighbors) commandName() string { return "get_shared_neighbors" }
func (FindConnections) commandName() string    { return "find_connections" }

var commandDecoders = map[string]func(llm.PlanLine) (Command, error){
	"v_search": func(line llm.PlanLine) (Command, error) {
		q := line.Arg("query")
		if q == "" {
			return nil, fmt.Errorf("v_search needs a query")
		}
		return VSearch{Query: q}, nil
	},
	"g_search_entity": func(line llm.PlanLine) (Command, error) {
		name := cleanEntityName(line.Arg("entity_name"))
		if name == "" {
			return nil, fmt.Errorf("g_search_entity needs an entity_name")
		}
		return GSearchEntity{Name: name}, nil
	},
	"get_neighbors": func(line llm.PlanLine) (Command, error) {
		name := cleanEntityName(line.Arg("entity_name"))
		if name == "" {
			return nil, fmt.Errorf("get_neighbors needs an entity_name")
		}
		return GetNeighbors{Entity: name, NeighborType: line.Arg("neighbor_type")}, nil
	},
	"get_shared_neighbors": func(line llm.PlanLine) (Command, error) {
		a := cleanEntityName(line.Arg("entity_name1"))
		b := cleanEntityName(line.Arg("entity_name2"))
		if a == "" || b == "" {
			return nil, fmt.Errorf("get_shared_neighbors needs entity_name1 and entity_name2")
		}
		return GetSharedNeighbors{A: a, B: b, NeighborType: line.Arg("neighbor_type")}, nil
	},
	"find_connections": func(line llm.PlanLine) (Command, error) {
		a := cleanEntityName(line.Arg("entity_name1"))
		b := cleanEntityName(line.Arg("entity_name2"))
		if a == "" || b == "" {
			return nil, fmt.Errorf("find_connections needs entity_name1 and entity_name2")
		}
		return FindConnections{A: a, B: b}, nil
	},
}

// DecodeCommand maps a plan line to a retrieval command. Unknown
// function names are an error; the caller decides whether to skip or
// abort.
func DecodeCommand(line llm.PlanLine) (Command, error) {
	decode, ok := commandDecoders[line.Name]
	if !ok {
		return nil, fmt.Errorf("unknown command %q", line.Name)
	}
	return decode(line)
}

// cleanEntityName drops the quoting and title brackets models tend to
// wrap around entity names.
func cleanEntityName(name string) string {
	return strings.Trim(strings.TrimSpace(name), `'"《》`)
}
