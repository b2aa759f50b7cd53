package graph

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utakata/mnemosyne/pkg/types"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testGraph(t *testing.T) *Graph {
	t.Helper()
	g := New(testLogger())
	for _, e := range []*types.Entity{
		{ID: "luo_tianyi", Name: "洛天依", Type: types.EntityPerson},
		{ID: "yanhe", Name: "言和", Type: types.EntityPerson},
		{ID: "66ccff", Name: "66CCFF", Type: types.EntitySong},
		{ID: "mingyue", Name: "明月", Type: types.EntitySong},
		{ID: "vsinger", Name: "Vsinger", Type: types.EntityOrganization},
	} {
		g.AddEntity(e)
	}
	for _, r := range []*types.Relation{
		{SourceID: "66ccff", TargetID: "luo_tianyi", Type: types.RelPerformedBy},
		{SourceID: "mingyue", TargetID: "luo_tianyi", Type: types.RelPerformedBy},
		{SourceID: "mingyue", TargetID: "yanhe", Type: types.RelPerformedBy},
		{SourceID: "luo_tianyi", TargetID: "vsinger", Type: types.RelMemberOf},
		{SourceID: "yanhe", TargetID: "vsinger", Type: types.RelMemberOf},
	} {
		require.NoError(t, g.AddRelation(r))
	}
	return g
}

func TestAddEntity_DuplicateIgnored(t *testing.T) {
	g := New(testLogger())
	g.AddEntity(&types.Entity{ID: "a", Type: types.EntityPerson})
	g.AddEntity(&types.Entity{ID: "a", Type: types.EntitySong})
	e, ok := g.Entity("a")
	require.True(t, ok)
	assert.Equal(t, types.EntityPerson, e.Type)
	assert.Equal(t, 1, g.EntityCount())
}

func TestUpdateEntity(t *testing.T) {
	g := New(testLogger())
	g.AddEntity(&types.Entity{ID: "a", Type: types.EntityPerson})

	require.NoError(t, g.UpdateEntity("a", map[string]string{"color": "grey"}))
	e, _ := g.Entity("a")
	assert.Equal(t, "grey", e.Properties["color"])

	assert.Error(t, g.UpdateEntity("missing", nil))
}

func TestAddRelation_RequiresEndpoints(t *testing.T) {
	g := New(testLogger())
	g.AddEntity(&types.Entity{ID: "a", Type: types.EntityPerson})

	err := g.AddRelation(&types.Relation{SourceID: "a", TargetID: "ghost", Type: types.RelMemberOf})
	assert.Error(t, err)
	err = g.AddRelation(&types.Relation{SourceID: "ghost", TargetID: "a", Type: types.RelMemberOf})
	assert.Error(t, err)
	assert.Equal(t, 0, g.RelationCount())
}

func TestAddRelation_DuplicateIgnored(t *testing.T) {
	g := testGraph(t)
	before := g.RelationCount()
	require.NoError(t, g.AddRelation(&types.Relation{
		SourceID: "66ccff", TargetID: "luo_tianyi", Type: types.RelPerformedBy,
	}))
	assert.Equal(t, before, g.RelationCount())
}

func TestNeighbors_Directions(t *testing.T) {
	g := testGraph(t)

	out := g.Neighbors("luo_tianyi", DirOut, "", "")
	require.Len(t, out, 1)
	assert.Equal(t, "vsinger", out[0].Entity.ID)
	assert.Equal(t, "member_of", out[0].Label)

	in := g.Neighbors("luo_tianyi", DirIn, "", "")
	require.Len(t, in, 2)
	for _, n := range in {
		assert.Equal(t, "<-performed_by", n.Label)
	}

	both := g.Neighbors("luo_tianyi", DirBoth, "", "")
	assert.Len(t, both, 3)
}

func TestNeighbors_Filters(t *testing.T) {
	g := testGraph(t)

	songs := g.Neighbors("luo_tianyi", DirBoth, "", types.EntitySong)
	assert.Len(t, songs, 2)

	members := g.Neighbors("vsinger", DirIn, types.RelMemberOf, "")
	assert.Len(t, members, 2)

	none := g.Neighbors("vsinger", DirIn, types.RelPerformedBy, "")
	assert.Empty(t, none)
}

func TestEntitiesByType(t *testing.T) {
	g := testGraph(t)
	songs := g.EntitiesByType(types.EntitySong)
	require.Len(t, songs, 2)
	assert.Equal(t, "66ccff", songs[0].ID)
	assert.Equal(t, "mingyue", songs[1].ID)
}

func TestRelationsBetween(t *testing.T) {
	g := testGraph(t)
	rels := g.RelationsBetween("luo_tianyi", "mingyue")
	require.Len(t, rels, 1)
	assert.Equal(t, types.RelPerformedBy, rels[0].Type)

	assert.Empty(t, g.RelationsBetween("66ccff", "mingyue"))
}

func TestFindPaths_SortedByHopCount(t *testing.T) {
	g := testGraph(t)

	paths := g.FindPaths("66ccff", "yanhe", 4, true)
	require.NotEmpty(t, paths)
	// Shortest route goes through luo_tianyi and mingyue in 3 hops.
	for i := 1; i < len(paths); i++ {
		assert.GreaterOrEqual(t, len(paths[i].Labels), len(paths[i-1].Labels))
	}
	assert.Equal(t, "66ccff", paths[0].Nodes[0])
	assert.Equal(t, "yanhe", paths[0].Nodes[len(paths[0].Nodes)-1])
}

func TestFindPaths_DirectedOnly(t *testing.T) {
	g := testGraph(t)
	// Both songs point at performers; without reverse traversal there is
	// no directed route between them.
	assert.Empty(t, g.FindPaths("66ccff", "mingyue", 4, false))
	assert.NotEmpty(t, g.FindPaths("66ccff", "mingyue", 4, true))
}

func TestFindPaths_RespectsMaxDepth(t *testing.T) {
	g := testGraph(t)
	assert.Empty(t, g.FindPaths("66ccff", "yanhe", 2, true))
	assert.NotEmpty(t, g.FindPaths("66ccff", "yanhe", 3, true))
}

func TestPathString_RendersDirection(t *testing.T) {
	p := Path{
		Nodes:  []string{"66ccff", "luo_tianyi", "vsinger"},
		Labels: []string{"performed_by", "member_of"},
	}
	assert.Equal(t, "66ccff --[performed_by]--> luo_tianyi --[member_of]--> vsinger", p.String())

	rev := Path{
		Nodes:  []string{"luo_tianyi", "66ccff"},
		Labels: []string{"<-performed_by"},
	}
	assert.Equal(t, "luo_tianyi <--[performed_by]-- 66ccff", rev.String())
}

func TestResolveCanonicalID_LookupOrder(t *testing.T) {
	g := testGraph(t)
	g.AddAlias("天依", "luo_tianyi")

	res, ok := g.ResolveCanonicalID("luo_tianyi")
	require.True(t, ok)
	assert.Equal(t, Resolution{ID: "luo_tianyi"}, res)

	res, ok = g.ResolveCanonicalID("Luo_Tianyi")
	require.True(t, ok)
	assert.Equal(t, "luo_tianyi", res.ID)
	assert.False(t, res.Learned)

	res, ok = g.ResolveCanonicalID("天依")
	require.True(t, ok)
	assert.Equal(t, "luo_tianyi", res.ID)
	assert.False(t, res.Learned)
}

func TestResolveCanonicalID_FuzzyLearnsAlias(t *testing.T) {
	g := testGraph(t)

	res, ok := g.ResolveCanonicalID("tianyi")
	require.True(t, ok)
	assert.Equal(t, "luo_tianyi", res.ID)
	assert.True(t, res.Learned)

	// Resolution itself never touches the alias table; the caller
	// applies the memoization.
	res, ok = g.ResolveCanonicalID("tianyi")
	require.True(t, ok)
	assert.True(t, res.Learned)

	g.AddAlias("tianyi", res.ID)
	res, ok = g.ResolveCanonicalID("tianyi")
	require.True(t, ok)
	assert.False(t, res.Learned)
}

func TestResolveCanonicalID_FuzzyCJK(t *testing.T) {
	g := testGraph(t)

	// Two of three runes overlap with the entity name 洛天依, clearing
	// the half-length threshold measured in runes.
	res, ok := g.ResolveCanonicalID("天依酱")
	require.True(t, ok)
	assert.Equal(t, "luo_tianyi", res.ID)
	assert.True(t, res.Learned)
}

func TestResolveCanonicalID_RejectsWeakMatches(t *testing.T) {
	g := testGraph(t)

	_, ok := g.ResolveCanonicalID("hatsune")
	assert.False(t, ok)

	// Single-rune overlap never clears the floor of two.
	_, ok = g.ResolveCanonicalID("依")
	assert.False(t, ok)

	_, ok = g.ResolveCanonicalID("")
	assert.False(t, ok)
}

func TestCommonSubstringLen(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "abc", 0},
		{"abc", "abc", 3},
		{"xabcy", "zabcw", 3},
		{"abc", "def", 0},
		{"洛天依", "天依酱", 2},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, commonSubstringLen([]rune(tc.a), []rune(tc.b)), "%q vs %q", tc.a, tc.b)
	}
}
