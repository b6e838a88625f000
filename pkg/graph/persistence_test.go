package graph

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/graphdb/pkg/model"
	"github.com/orneryd/graphdb/pkg/update"
)

func TestSyncAndLoadLocationRoundTrip(t *testing.T) {
	dir := t.TempDir()
	loc := SaveLocation{Dir: filepath.Join(dir, "corpus1")}

	g := NewGraph()
	batch := update.Batch{Events: []update.Event{
		update.NewAddNode("a", "node"),
		update.NewAddNode("b", "node"),
		update.NewAddEdge("a", "b", "annis", string(model.Dominance), ""),
	}}
	require.NoError(t, g.ApplyUpdate(batch, nil))
	require.NoError(t, g.Sync(loc))

	loaded, err := LoadLocation(loc)
	require.NoError(t, err)

	idA, ok := loaded.resolveName("a")
	require.True(t, ok)
	idB, ok := loaded.resolveName("b")
	require.True(t, ok)

	c := model.Component{CType: model.Dominance, Layer: "annis", Name: ""}
	storage, ok := loaded.GetComponent(c)
	require.True(t, ok)
	out, err := storage.GetOutgoingEdges(idA)
	require.NoError(t, err)
	assert.Equal(t, []model.NodeID{idB}, out)
}

func TestApplyUpdatePersistedReplaysUpdateLog(t *testing.T) {
	dir := t.TempDir()
	loc := SaveLocation{Dir: filepath.Join(dir, "corpus2")}

	g := NewGraph()
	batch := update.Batch{Events: []update.Event{update.NewAddNode("a", "node")}}
	require.NoError(t, g.ApplyUpdatePersisted(batch, &loc, nil))

	loaded, err := LoadLocation(loc)
	require.NoError(t, err)
	_, ok := loaded.resolveName("a")
	assert.True(t, ok)
}
