package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationItem_Rendering(t *testing.T) {
	item := ConversationItem{
		Timestamp: "2026-08-30 12:00:00",
		Source:    SourceUser,
		Type:      ContextText,
		Content:   "早上好",
	}
	assert.Equal(t, "USER: 早上好", item.String())
	assert.Equal(t, "[2026-08-30 12:00:00] USER: 早上好", item.ContextLine())
}

func TestConversationItem_ElapsedLabel(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.Local)
	cases := []struct {
		timestamp string
		want      string
	}{
		{"2026-08-30 11:59:45", "15s ago"},
		{"2026-08-30 11:30:00", "30m ago"},
		{"2026-08-30 06:00:00", "6h ago"},
		{"2026-08-28 12:00:00", "2d ago"},
		{"2026-08-01 12:00:00", "2026-08-01"},
		{"not a timestamp", "not a timestamp"},
	}
	for _, tc := range cases {
		item := ConversationItem{Timestamp: tc.timestamp}
		assert.Equal(t, tc.want, item.ElapsedLabel(now), tc.timestamp)
	}
}

func TestTripleDocument_RoundTrip(t *testing.T) {
	triple := TripleDocument{
		Subject:  "洛天依",
		Relation: "演唱",
		Object:   "普通DISCO",
		Category: "song",
	}
	assert.Equal(t, "洛天依演唱普通DISCO", triple.Content())

	doc := triple.Document()
	assert.Equal(t, "洛天依", doc.MetaString("subject"))
	assert.Equal(t, "普通DISCO", doc.MetaString("object"))

	recovered, ok := TripleFromDocument(doc)
	require.True(t, ok)
	assert.Equal(t, triple, recovered)

	_, ok = TripleFromDocument(Document{Content: "plain memory"})
	assert.False(t, ok)
}

func TestDocument_MetaString(t *testing.T) {
	doc := Document{Metadata: map[string]any{"subject": "言和", "weight": 3}}
	assert.Equal(t, "言和", doc.MetaString("subject"))
	assert.Equal(t, "", doc.MetaString("weight"), "non-string values read as empty")
	assert.Equal(t, "", Document{}.MetaString("subject"))
}

func TestMemoryUpdateCommand_String(t *testing.T) {
	add := MemoryUpdateCommand{Kind: UpdateAdd, Content: "the user likes concerts"}
	assert.Equal(t, "v_add(document='the user likes concerts')", add.String())

	amend := MemoryUpdateCommand{Kind: UpdateAmend, Content: "revised", UUID: "abcd-1234"}
	assert.Equal(t, "v_update(uuid='abcd-1234', new_document='revised')", amend.String())
}

func TestEntity_Summary(t *testing.T) {
	full := &Entity{
		ID: "luo_tianyi", Name: "洛天依", Type: EntityPerson,
		Properties: map[string]string{"summary": "虚拟歌手"},
	}
	assert.Equal(t, "洛天依 (person): 虚拟歌手", full.Summary())

	bare := &Entity{ID: "mingyue", Type: EntitySong}
	assert.Equal(t, "mingyue (song)", bare.Summary())
}
