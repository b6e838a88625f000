package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/graphdb/pkg/model"
	"github.com/orneryd/graphdb/pkg/update"
)

func TestDerivedLeftRightTokenOverSpan(t *testing.T) {
	g := NewGraph()
	batch := update.Batch{Events: []update.Event{
		update.NewAddNode("tok1", "node"),
		update.NewAddNode("tok2", "node"),
		update.NewAddNode("span", "node"),
		update.NewAddNodeLabel("tok1", "annis", "tok", "the"),
		update.NewAddNodeLabel("tok2", "annis", "tok", "cat"),
		update.NewAddEdge("tok1", "tok2", "annis", string(model.Ordering), ""),
		update.NewAddEdge("span", "tok1", "annis", string(model.Coverage), ""),
		update.NewAddEdge("span", "tok2", "annis", string(model.Coverage), ""),
	}}
	require.NoError(t, g.ApplyUpdate(batch, nil))

	spanID, ok := g.resolveName("span")
	require.True(t, ok)
	tok1ID, _ := g.resolveName("tok1")
	tok2ID, _ := g.resolveName("tok2")

	leftStorage, ok := g.GetComponent(leftTokenComp)
	require.True(t, ok)
	left, err := leftStorage.GetOutgoingEdges(spanID)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, tok1ID, left[0])

	rightStorage, ok := g.GetComponent(rightTokenComp)
	require.True(t, ok)
	right, err := rightStorage.GetOutgoingEdges(spanID)
	require.NoError(t, err)
	require.Len(t, right, 1)
	assert.Equal(t, tok2ID, right[0])
}
