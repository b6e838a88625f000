package gs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/graphdb/pkg/model"
)

func TestPrePostOrderCopyFromAdjacencyTree(t *testing.T) {
	src := NewAdjacencyList()
	// 0 -> 1, 0 -> 2, 1 -> 3
	require.NoError(t, src.AddEdge(model.Edge{Source: 0, Target: 1}))
	require.NoError(t, src.AddEdge(model.Edge{Source: 0, Target: 2}))
	require.NoError(t, src.AddEdge(model.Edge{Source: 1, Target: 3}))

	p := NewPrePostOrderStorage()
	require.NoError(t, p.Copy(src))

	ok, err := p.IsConnected(0, 3, 1, Unbounded())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.IsConnected(2, 3, 1, Unbounded())
	require.NoError(t, err)
	assert.False(t, ok)

	d, ok, err := p.Distance(0, 3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, d)
}

func TestPrePostOrderFindConnected(t *testing.T) {
	src := NewAdjacencyList()
	require.NoError(t, src.AddEdge(model.Edge{Source: 0, Target: 1}))
	require.NoError(t, src.AddEdge(model.Edge{Source: 1, Target: 2}))

	p := NewPrePostOrderStorage()
	require.NoError(t, p.Copy(src))

	nodes, err := p.FindConnected(0, 1, Unbounded())
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.NodeID{1, 2}, nodes)
}

func TestPrePostOrderIsReadOnly(t *testing.T) {
	p := NewPrePostOrderStorage()
	_, ok := p.AsWriteable()
	assert.False(t, ok)
}
