package gs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/graphdb/pkg/model"
)

func chainOf(t *testing.T, n int) *AdjacencyList {
	t.Helper()
	a := NewAdjacencyList()
	for i := 0; i < n-1; i++ {
		require.NoError(t, a.AddEdge(model.Edge{Source: model.NodeID(i), Target: model.NodeID(i + 1)}))
	}
	return a
}

func TestAdjacencyListFindConnectedChain(t *testing.T) {
	a := chainOf(t, 5) // 0->1->2->3->4

	nodes, err := a.FindConnected(0, 1, Unbounded())
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.NodeID{1, 2, 3, 4}, nodes)

	nodes, err = a.FindConnected(0, 1, Included(2))
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.NodeID{1, 2}, nodes)
}

func TestAdjacencyListIsConnected(t *testing.T) {
	a := chainOf(t, 5)
	ok, err := a.IsConnected(0, 4, 1, Unbounded())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.IsConnected(4, 0, 1, Unbounded())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAdjacencyListDistance(t *testing.T) {
	a := chainOf(t, 5)
	d, ok, err := a.Distance(0, 4)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4, d)
}

func TestAdjacencyListStatisticsChainIsRootedTree(t *testing.T) {
	a := chainOf(t, 5)
	require.NoError(t, a.CalculateStatistics())
	stat, ok := a.GetStatistics()
	require.True(t, ok)
	assert.False(t, stat.Cyclic)
	assert.True(t, stat.RootedTree)
	assert.Equal(t, uint64(5), stat.Nodes)
	assert.Equal(t, uint64(4), stat.MaxDepth)
}

func TestAdjacencyListStatisticsDetectsCycle(t *testing.T) {
	a := NewAdjacencyList()
	require.NoError(t, a.AddEdge(model.Edge{Source: 0, Target: 1}))
	require.NoError(t, a.AddEdge(model.Edge{Source: 1, Target: 2}))
	require.NoError(t, a.AddEdge(model.Edge{Source: 2, Target: 0}))

	require.NoError(t, a.CalculateStatistics())
	stat, ok := a.GetStatistics()
	require.True(t, ok)
	assert.True(t, stat.Cyclic)
}

func TestAdjacencyListDeleteEdgeAndNode(t *testing.T) {
	a := chainOf(t, 3) // 0->1->2
	require.NoError(t, a.DeleteEdge(model.Edge{Source: 0, Target: 1}))

	out, err := a.GetOutgoingEdges(0)
	require.NoError(t, err)
	assert.Empty(t, out)

	require.NoError(t, a.DeleteNode(1))
	in, err := a.GetIngoingEdges(2)
	require.NoError(t, err)
	assert.Empty(t, in)
}

func TestAdjacencyListAnnotations(t *testing.T) {
	a := NewAdjacencyList()
	e := model.Edge{Source: 1, Target: 2}
	require.NoError(t, a.AddEdge(e))
	require.NoError(t, a.AddEdgeAnnotation(e, model.Annotation{Key: model.AnnoKey{NS: "test", Name: "label"}, Value: "x"}))

	v, ok, err := a.AnnoStorage().GetValueForItem(e, model.AnnoKey{NS: "test", Name: "label"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x", v)
}

func TestAdjacencyListCopy(t *testing.T) {
	src := chainOf(t, 3)
	dst := NewAdjacencyList()
	require.NoError(t, dst.Copy(src))

	nodes, err := dst.FindConnected(0, 1, Unbounded())
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.NodeID{1, 2}, nodes)
}
