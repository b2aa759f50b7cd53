package graph

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utakata/mnemosyne/pkg/types"
)

func testRetriever(t *testing.T) *Retriever {
	t.Helper()
	dir := t.TempDir()
	r := OpenRetriever(
		filepath.Join(dir, "knowledge_graph.json"),
		filepath.Join(dir, "alias.json"),
		RetrieverOptions{}, testLogger(),
	)
	for _, e := range []*types.Entity{
		{ID: "luo_tianyi", Name: "洛天依", Type: types.EntityPerson},
		{ID: "yanhe", Name: "言和", Type: types.EntityPerson},
		{ID: "mingyue", Name: "明月", Type: types.EntitySong},
		{ID: "vsinger", Name: "Vsinger", Type: types.EntityOrganization},
	} {
		require.NoError(t, r.AddEntity(e))
	}
	for _, rel := range []*types.Relation{
		{SourceID: "mingyue", TargetID: "luo_tianyi", Type: types.RelPerformedBy},
		{SourceID: "mingyue", TargetID: "yanhe", Type: types.RelPerformedBy},
		{SourceID: "luo_tianyi", TargetID: "vsinger", Type: types.RelMemberOf},
	} {
		require.NoError(t, r.AddRelation(rel))
	}
	return r
}

func TestRetriever_RoundTrip(t *testing.T) {
	r := testRetriever(t)
	require.NoError(t, r.AddAlias("天依", "luo_tianyi"))

	reopened := OpenRetriever(r.graphPath, r.aliasPath, RetrieverOptions{}, testLogger())
	entities, relations := reopened.Stats()
	assert.Equal(t, 4, entities)
	assert.Equal(t, 3, relations)

	id, ok := reopened.ResolveEntity("天依")
	require.True(t, ok)
	assert.Equal(t, "luo_tianyi", id)
}

func TestOpenRetriever_MissingFilesStartEmpty(t *testing.T) {
	dir := t.TempDir()
	r := OpenRetriever(filepath.Join(dir, "g.json"), filepath.Join(dir, "a.json"),
		RetrieverOptions{}, testLogger())
	entities, relations := r.Stats()
	assert.Zero(t, entities)
	assert.Zero(t, relations)
}

func TestOpenRetriever_CorruptGraphStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	graphPath := filepath.Join(dir, "g.json")
	require.NoError(t, os.WriteFile(graphPath, []byte("{not json"), 0o644))

	r := OpenRetriever(graphPath, filepath.Join(dir, "a.json"), RetrieverOptions{}, testLogger())
	entities, _ := r.Stats()
	assert.Zero(t, entities)
}

func TestResolveEntity_PersistsLearnedAlias(t *testing.T) {
	r := testRetriever(t)

	id, ok := r.ResolveEntity("tianyi")
	require.True(t, ok)
	assert.Equal(t, "luo_tianyi", id)

	data, err := os.ReadFile(r.aliasPath)
	require.NoError(t, err)
	aliases := make(map[string]string)
	require.NoError(t, json.Unmarshal(data, &aliases))
	assert.Equal(t, "luo_tianyi", aliases["tianyi"])

	// The second resolution hits the memoized alias; the table does not
	// grow again for the same surface form.
	id, ok = r.ResolveEntity("tianyi")
	require.True(t, ok)
	assert.Equal(t, "luo_tianyi", id)

	data, err = os.ReadFile(r.aliasPath)
	require.NoError(t, err)
	again := make(map[string]string)
	require.NoError(t, json.Unmarshal(data, &again))
	assert.Equal(t, aliases, again)
}

func TestDescribeEntity(t *testing.T) {
	r := testRetriever(t)

	desc, ok := r.DescribeEntity("luo_tianyi")
	require.True(t, ok)
	assert.Contains(t, desc, "洛天依")

	_, ok = r.DescribeEntity("nobody at all")
	assert.False(t, ok)
}

func TestGetNeighbors(t *testing.T) {
	r := testRetriever(t)

	out, ok := r.GetNeighbors("luo_tianyi", "")
	require.True(t, ok)
	assert.Contains(t, out, "vsinger (member_of)")
	assert.Contains(t, out, "mingyue (<-performed_by)")

	out, ok = r.GetNeighbors("luo_tianyi", types.EntitySong)
	require.True(t, ok)
	assert.Contains(t, out, "mingyue")
	assert.NotContains(t, out, "vsinger")

	out, ok = r.GetNeighbors("luo_tianyi", types.EntityLocation)
	require.True(t, ok)
	assert.Contains(t, out, "no matching neighbors")
}

func TestGetSharedNeighbors(t *testing.T) {
	r := testRetriever(t)

	out, ok := r.GetSharedNeighbors("luo_tianyi", "yanhe", "")
	require.True(t, ok)
	assert.Contains(t, out, "mingyue")

	out, ok = r.GetSharedNeighbors("mingyue", "vsinger", types.EntityLocation)
	require.True(t, ok)
	assert.Contains(t, out, "no shared neighbors")
}

func TestFindConnections(t *testing.T) {
	r := testRetriever(t)

	out, ok := r.FindConnections("yanhe", "vsinger")
	require.True(t, ok)
	assert.Equal(t, "yanhe <--[performed_by]-- mingyue --[performed_by]--> luo_tianyi --[member_of]--> vsinger", out)

	out, ok = r.FindConnections("yanhe", "yanhe")
	require.True(t, ok)
	assert.Equal(t, "yanhe", out)
}

func TestFindConnections_TruncatesToMaxPaths(t *testing.T) {
	dir := t.TempDir()
	r := OpenRetriever(filepath.Join(dir, "g.json"), filepath.Join(dir, "a.json"),
		RetrieverOptions{MaxPaths: 1}, testLogger())
	for _, e := range []*types.Entity{
		{ID: "a", Type: types.EntityPerson},
		{ID: "b", Type: types.EntityPerson},
		{ID: "x", Type: types.EntitySong},
		{ID: "y", Type: types.EntitySong},
	} {
		require.NoError(t, r.AddEntity(e))
	}
	for _, rel := range []*types.Relation{
		{SourceID: "a", TargetID: "x", Type: types.RelRelatedTo},
		{SourceID: "x", TargetID: "b", Type: types.RelRelatedTo},
		{SourceID: "a", TargetID: "y", Type: types.RelRelatedTo},
		{SourceID: "y", TargetID: "b", Type: types.RelRelatedTo},
	} {
		require.NoError(t, r.AddRelation(rel))
	}

	out, ok := r.FindConnections("a", "b")
	require.True(t, ok)
	// Two routes exist but only one is rendered.
	assert.NotContains(t, out, " , ")
}

func TestWatcher_ReloadsOnExternalRewrite(t *testing.T) {
	r := testRetriever(t)
	w := NewWatcher(r, testLogger())
	require.NoError(t, w.Start())
	defer w.Stop()

	// Simulate an external process rewriting the graph file with one
	// extra entity.
	var gf graphFile
	data, err := os.ReadFile(r.graphPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &gf))
	gf.Entities = append(gf.Entities, &types.Entity{ID: "stardust", Name: "星尘", Type: types.EntityPerson})
	updated, err := json.Marshal(gf)
	require.NoError(t, err)
	tmp := r.graphPath + ".ext"
	require.NoError(t, os.WriteFile(tmp, updated, 0o644))
	require.NoError(t, os.Rename(tmp, r.graphPath))

	assert.Eventually(t, func() bool {
		entities, _ := r.Stats()
		return entities == 5
	}, 2*time.Second, 20*time.Millisecond)
}
