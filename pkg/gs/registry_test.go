package gs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/graphdb/pkg/diskmap"
	"github.com/orneryd/graphdb/pkg/model"
)

func TestSelectImplementationPicksPrePostForRootedTree(t *testing.T) {
	src := NewAdjacencyList()
	require.NoError(t, src.AddEdge(model.Edge{Source: 0, Target: 1}))
	require.NoError(t, src.AddEdge(model.Edge{Source: 0, Target: 2}))
	require.NoError(t, src.CalculateStatistics())

	dst, err := Rebuild(src, false, nil)
	require.NoError(t, err)
	_, isPrePost := dst.(*PrePostOrderStorage)
	assert.True(t, isPrePost)
}

func TestSelectImplementationPicksLinearChainForChain(t *testing.T) {
	src := chainOf(t, 5)
	require.NoError(t, src.CalculateStatistics())

	dst, err := Rebuild(src, false, nil)
	require.NoError(t, err)
	_, isChain := dst.(*LinearChain)
	assert.True(t, isChain)
}

func TestSelectImplementationPicksDiskWhenBacked(t *testing.T) {
	src := chainOf(t, 3)
	require.NoError(t, src.CalculateStatistics())

	m, err := diskmap.Open("", diskmap.DefaultEviction())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	dst, err := Rebuild(src, true, m)
	require.NoError(t, err)
	_, isDisk := dst.(*DiskAdjacencyList)
	assert.True(t, isDisk)
}
