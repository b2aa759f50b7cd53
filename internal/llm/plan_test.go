package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlan_Basic(t *testing.T) {
	text := "v_search(query='favorite song')\ng_search_entity(entity_name=\"Stardust\")"

	lines, malformed := ParsePlan(text)
	require.Len(t, lines, 2)
	assert.Empty(t, malformed)

	assert.Equal(t, "v_search", lines[0].Name)
	assert.Equal(t, "favorite song", lines[0].Arg("query"))
	assert.Equal(t, "g_search_entity", lines[1].Name)
	assert.Equal(t, "Stardust", lines[1].Arg("entity_name"))
}

func TestParsePlan_CommentaryTerminatesPlan(t *testing.T) {
	text := "v_search(query='a')\n## these lines are commentary\nv_search(query='b')"

	lines, malformed := ParsePlan(text)
	require.Len(t, lines, 1)
	assert.Empty(t, malformed)
	assert.Equal(t, "a", lines[0].Arg("query"))
}

func TestParsePlan_SkipsMalformedLines(t *testing.T) {
	text := "not a call\nv_search(query='ok')\n\nbroken(noequals)"

	lines, malformed := ParsePlan(text)
	require.Len(t, lines, 1)
	assert.Equal(t, "v_search", lines[0].Name)
	assert.Len(t, malformed, 2)
}

func TestParsePlan_MultipleArgs(t *testing.T) {
	text := "get_shared_neighbors(entity_name1='A', entity_name2='B', neighbor_type='song')"

	lines, malformed := ParsePlan(text)
	require.Len(t, lines, 1)
	assert.Empty(t, malformed)
	assert.Equal(t, "A", lines[0].Arg("entity_name1"))
	assert.Equal(t, "B", lines[0].Arg("entity_name2"))
	assert.Equal(t, "song", lines[0].Arg("neighbor_type"))
}

func TestParsePlan_CommaInsideQuotedValue(t *testing.T) {
	text := "v_add(document='likes apples, oranges and pears')"

	lines, malformed := ParsePlan(text)
	require.Len(t, lines, 1)
	assert.Empty(t, malformed)
	assert.Equal(t, "likes apples, oranges and pears", lines[0].Arg("document"))
}

func TestParsePlan_EmptyResponse(t *testing.T) {
	lines, malformed := ParsePlan("## nothing to do")
	assert.Empty(t, lines)
	assert.Empty(t, malformed)
}
