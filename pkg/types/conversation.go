// Package types defines the core data structures shared across the mnemosyne
// memory subsystem: conversation items, knowledge graph entities and
// relations, vector store documents, and the recent-write command records.
package types

import (
	"fmt"
	"time"
)

// TimestampLayout is the wall-clock format stored on conversation items.
const TimestampLayout = "2006-01-02 15:04:05"

// ConversationSource identifies who produced a conversation item.
type ConversationSource string

const (
	SourceUser  ConversationSource = "USER"
	SourceAgent ConversationSource = "AGENT"
)

// ContextType identifies the payload kind of a conversation item.
type ContextType string

const (
	ContextText ContextType = "TEXT"
)

// ConversationItem is a single utterance in the conversation log.
// Items are immutable once created.
type ConversationItem struct {
	Timestamp string             `json:"timestamp"`
	Source    ConversationSource `json:"source"`
	Type      ContextType        `json:"type"`
	Content   string             `json:"content"`
}

// NewConversationItem stamps a new item with the current wall-clock time.
func NewConversationItem(source ConversationSource, typ ContextType, content string) ConversationItem {
	return ConversationItem{
		Timestamp: time.Now().Format(TimestampLayout),
		Source:    source,
		Type:      typ,
		Content:   content,
	}
}

// String renders the item as a single "source: content" line for prompts.
func (c ConversationItem) String() string {
	return fmt.Sprintf("%s: %s", c.Source, c.Content)
}

// ContextLine renders the item as a timestamped line for LLM context windows.
func (c ConversationItem) ContextLine() string {
	return fmt.Sprintf("[%s] %s: %s", c.Timestamp, c.Source, c.Content)
}

// ElapsedLabel renders the item's age relative to now, coarsening from
// seconds through minutes, hours and days to the absolute date. The label is
// computed at read time and never stored.
func (c ConversationItem) ElapsedLabel(now time.Time) string {
	ts, err := time.ParseInLocation(TimestampLayout, c.Timestamp, now.Location())
	if err != nil {
		return c.Timestamp
	}
	d := now.Sub(ts)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return ts.Format("2006-01-02")
	}
}
