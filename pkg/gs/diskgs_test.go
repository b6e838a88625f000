package gs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/graphdb/pkg/diskmap"
	"github.com/orneryd/graphdb/pkg/model"
)

func openDiskGS(t *testing.T) *DiskAdjacencyList {
	t.Helper()
	m, err := diskmap.Open("", diskmap.DefaultEviction())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return NewDiskAdjacencyList(m)
}

func TestDiskAdjacencyListAddAndReachability(t *testing.T) {
	d := openDiskGS(t)
	require.NoError(t, d.AddEdge(model.Edge{Source: 0, Target: 1}))
	require.NoError(t, d.AddEdge(model.Edge{Source: 1, Target: 2}))

	nodes, err := d.FindConnected(0, 1, Unbounded())
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.NodeID{1, 2}, nodes)

	in, err := d.GetIngoingEdges(2)
	require.NoError(t, err)
	assert.Equal(t, []model.NodeID{1}, in)
}

func TestDiskAdjacencyListDeleteNode(t *testing.T) {
	d := openDiskGS(t)
	require.NoError(t, d.AddEdge(model.Edge{Source: 0, Target: 1}))
	require.NoError(t, d.AddEdge(model.Edge{Source: 1, Target: 2}))

	require.NoError(t, d.DeleteNode(1))

	out, err := d.GetOutgoingEdges(0)
	require.NoError(t, err)
	assert.Empty(t, out)

	in, err := d.GetIngoingEdges(2)
	require.NoError(t, err)
	assert.Empty(t, in)
}

func TestDiskAdjacencyListAnnotationsAndStats(t *testing.T) {
	d := openDiskGS(t)
	e := model.Edge{Source: 0, Target: 1}
	require.NoError(t, d.AddEdge(e))
	require.NoError(t, d.AddEdgeAnnotation(e, model.Annotation{Key: model.AnnoKey{NS: "test", Name: "label"}, Value: "x"}))

	v, ok, err := d.AnnoStorage().GetValueForItem(e, model.AnnoKey{NS: "test", Name: "label"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x", v)

	require.NoError(t, d.CalculateStatistics())
	stat, ok := d.GetStatistics()
	require.True(t, ok)
	assert.Equal(t, uint64(2), stat.Nodes)
}
