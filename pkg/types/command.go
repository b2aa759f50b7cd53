package types

import "fmt"

// MemoryUpdateKind distinguishes the write operations recorded in the
// recent-update ring buffer.
type MemoryUpdateKind string

const (
	UpdateAdd   MemoryUpdateKind = "v_add"
	UpdateAmend MemoryUpdateKind = "v_update"
)

// MemoryUpdateCommand records one completed vector store write. The ring of
// recent commands is shown back to the language model so it can amend an
// earlier write instead of duplicating it, and lets it address a target
// document by a short id prefix.
type MemoryUpdateCommand struct {
	Kind    MemoryUpdateKind `json:"type"`
	Content string           `json:"content"`
	UUID    string           `json:"uuid,omitempty"`
}

// String renders the command the way it is quoted in write-plan prompts.
func (c MemoryUpdateCommand) String() string {
	if c.UUID != "" {
		return fmt.Sprintf("%s(uuid='%s', new_document='%s')", c.Kind, c.UUID, c.Content)
	}
	return fmt.Sprintf("%s(document='%s')", c.Kind, c.Content)
}
