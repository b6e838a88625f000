package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	c := LoadFromEnv()
	require.NoError(t, c.Validate())
	assert.Equal(t, "data", c.Store.DBDir)
	assert.Equal(t, PercentOfFreeMemory, c.Cache.Strategy)
	assert.True(t, c.Query.UseParallelJoins)
}

func TestValidateRejectsBadSyncMode(t *testing.T) {
	c := LoadFromEnv()
	c.Store.WALSyncMode = "bogus"
	assert.Error(t, c.Validate())
}

func TestValidateRejectsBadPercentFree(t *testing.T) {
	c := LoadFromEnv()
	c.Cache.Strategy = PercentOfFreeMemory
	c.Cache.PercentFree = 0
	assert.Error(t, c.Validate())
}
