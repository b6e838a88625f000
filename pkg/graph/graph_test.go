package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/graphdb/pkg/gs"
	"github.com/orneryd/graphdb/pkg/model"
	"github.com/orneryd/graphdb/pkg/update"
)

func TestApplyUpdateAddNodeIdempotent(t *testing.T) {
	g := NewGraph()
	batch := update.Batch{Events: []update.Event{
		update.NewAddNode("tok1", "node"),
		update.NewAddNode("tok1", "node"),
	}}
	require.NoError(t, g.ApplyUpdate(batch, nil))

	id1, ok := g.resolveName("tok1")
	require.True(t, ok)

	v, ok, err := g.nodeAnnos.GetValueForItem(id1, model.NodeNameKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok1", v)
}

func TestApplyUpdateAddEdgeRequiresBothNodes(t *testing.T) {
	g := NewGraph()
	batch := update.Batch{Events: []update.Event{
		update.NewAddNode("a", "node"),
		update.NewAddEdge("a", "b", "annis", string(model.Dominance), ""),
	}}
	require.NoError(t, g.ApplyUpdate(batch, nil))

	c := model.Component{CType: model.Dominance, Layer: "annis", Name: ""}
	_, ok := g.GetComponent(c)
	assert.False(t, ok) // edge skipped silently, component never created
}

func TestApplyUpdateAddEdgeAndLabel(t *testing.T) {
	g := NewGraph()
	batch := update.Batch{Events: []update.Event{
		update.NewAddNode("a", "node"),
		update.NewAddNode("b", "node"),
		update.NewAddEdge("a", "b", "annis", string(model.Dominance), ""),
		update.NewAddEdgeLabel("a", "b", "annis", string(model.Dominance), "", "test", "func", "subj"),
	}}
	require.NoError(t, g.ApplyUpdate(batch, nil))

	c := model.Component{CType: model.Dominance, Layer: "annis", Name: ""}
	storage, ok := g.GetComponent(c)
	require.True(t, ok)

	idA, _ := g.resolveName("a")
	idB, _ := g.resolveName("b")
	connected, err := storage.IsConnected(idA, idB, 1, gs.Included(1))
	require.NoError(t, err)
	assert.True(t, connected)

	v, ok, err := storage.AnnoStorage().GetValueForItem(model.Edge{Source: idA, Target: idB}, model.AnnoKey{NS: "test", Name: "func"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "subj", v)
}

func TestApplyUpdateDeleteNodeRemovesEdges(t *testing.T) {
	g := NewGraph()
	batch := update.Batch{Events: []update.Event{
		update.NewAddNode("a", "node"),
		update.NewAddNode("b", "node"),
		update.NewAddEdge("a", "b", "annis", string(model.Dominance), ""),
	}}
	require.NoError(t, g.ApplyUpdate(batch, nil))

	idB, _ := g.resolveName("b")
	require.NoError(t, g.ApplyUpdate(update.Batch{Events: []update.Event{update.NewDeleteNode("a")}}, nil))

	c := model.Component{CType: model.Dominance, Layer: "annis", Name: ""}
	storage, ok := g.GetComponent(c)
	require.True(t, ok)
	in, err := storage.GetIngoingEdges(idB)
	require.NoError(t, err)
	assert.Empty(t, in)
}

func TestEstimatedSizeBytesMemoizes(t *testing.T) {
	g := NewGraph()
	calls := 0
	compute := func() uint64 { calls++; return 42 }

	assert.Equal(t, uint64(42), g.EstimatedSizeBytes(compute))
	assert.Equal(t, uint64(42), g.EstimatedSizeBytes(compute))
	assert.Equal(t, 1, calls)

	g.invalidateSize()
	assert.Equal(t, uint64(42), g.EstimatedSizeBytes(compute))
	assert.Equal(t, 2, calls)
}
