package gs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/graphdb/pkg/model"
)

func TestLinearChainCopyAndReachability(t *testing.T) {
	src := chainOf(t, 5)
	l := NewLinearChain()
	require.NoError(t, l.Copy(src))

	nodes, err := l.FindConnected(0, 1, Unbounded())
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.NodeID{1, 2, 3, 4}, nodes)

	d, ok, err := l.Distance(0, 4)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4, d)
}

func TestLinearChainStatistics(t *testing.T) {
	src := chainOf(t, 4)
	l := NewLinearChain()
	require.NoError(t, l.Copy(src))
	require.NoError(t, l.CalculateStatistics())

	stat, ok := l.GetStatistics()
	require.True(t, ok)
	assert.LessOrEqual(t, stat.AvgFanOut, 1.0)
	assert.LessOrEqual(t, stat.MaxFanOut, uint64(1))
}
