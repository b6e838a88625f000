package gs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/graphdb/pkg/model"
)

func triangle(t *testing.T) *AdjacencyList {
	t.Helper()
	a := NewAdjacencyList()
	require.NoError(t, a.AddEdge(model.Edge{Source: 0, Target: 1}))
	require.NoError(t, a.AddEdge(model.Edge{Source: 1, Target: 2}))
	require.NoError(t, a.AddEdge(model.Edge{Source: 2, Target: 0}))
	return a
}

func TestDenseAdjacencyCopyAndReachability(t *testing.T) {
	src := triangle(t)
	d := NewDenseAdjacency()
	require.NoError(t, d.Copy(src))

	out, err := d.GetOutgoingEdges(0)
	require.NoError(t, err)
	assert.Equal(t, []model.NodeID{1}, out)

	nodes, err := d.FindConnected(0, 1, Included(1))
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.NodeID{1}, nodes)
}

func TestDenseAdjacencyStatisticsCyclic(t *testing.T) {
	src := triangle(t)
	d := NewDenseAdjacency()
	require.NoError(t, d.Copy(src))
	require.NoError(t, d.CalculateStatistics())

	stat, ok := d.GetStatistics()
	require.True(t, ok)
	assert.True(t, stat.Cyclic)
	assert.Equal(t, uint64(3), stat.Nodes)
}
