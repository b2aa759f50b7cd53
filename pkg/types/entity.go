package types

// EntityType classifies a knowledge graph node.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntitySong         EntityType = "song"
	EntityAlbum        EntityType = "album"
	EntityEvent        EntityType = "event"
	EntityOrganization EntityType = "organization"
	EntityLocation     EntityType = "location"
	EntityWork         EntityType = "work"
	EntityConcept      EntityType = "concept"
)

// ValidEntityTypes lists every accepted entity type, for snapshot validation.
var ValidEntityTypes = []EntityType{
	EntityPerson,
	EntitySong,
	EntityAlbum,
	EntityEvent,
	EntityOrganization,
	EntityLocation,
	EntityWork,
	EntityConcept,
}

// RelationType classifies a directed edge between two entities.
type RelationType string

const (
	RelPerformedBy      RelationType = "performed_by"
	RelComposedBy       RelationType = "composed_by"
	RelWrittenBy        RelationType = "written_by"
	RelAppearsIn        RelationType = "appears_in"
	RelPerformedAt      RelationType = "performed_at"
	RelMemberOf         RelationType = "member_of"
	RelCollaboratedWith RelationType = "collaborated_with"
	RelDerivedFrom      RelationType = "derived_from"
	RelRelatedTo        RelationType = "related_to"
)

// Entity is a typed node in the knowledge graph. Properties carry free-form
// descriptive fields; by convention the "summary" property holds the short
// description surfaced to the language model.
type Entity struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Type       EntityType        `json:"type"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Summary renders the one-line description surfaced to the language
// model: "Name (type): summary", degrading gracefully when fields are
// absent.
func (e *Entity) Summary() string {
	s := e.Name
	if s == "" {
		s = e.ID
	}
	if e.Type != "" {
		s += " (" + string(e.Type) + ")"
	}
	if desc := e.Properties["summary"]; desc != "" {
		s += ": " + desc
	}
	return s
}

// Relation is a typed directed edge between two entities. Both endpoints must
// reference entities that already exist when the relation is inserted.
type Relation struct {
	ID         string            `json:"id"`
	SourceID   string            `json:"source"`
	TargetID   string            `json:"target"`
	Type       RelationType      `json:"type"`
	Properties map[string]string `json:"properties,omitempty"`
	Weight     float64           `json:"weight"`
}
