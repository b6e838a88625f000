package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/graphdb/pkg/config"
	"github.com/orneryd/graphdb/pkg/model"
	"github.com/orneryd/graphdb/pkg/query"
	"github.com/orneryd/graphdb/pkg/update"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.LoadFromEnv()
	cfg.Store.DBDir = t.TempDir()
	cfg.Cache.Strategy = config.FixedMaxMemory
	cfg.Cache.MaxMemoryBytes = 1 << 30
	cfg.Query.UseParallelJoins = false
	return cfg
}

func mustCreateCorpus(t *testing.T, s *Store, name string) {
	t.Helper()
	dir := s.corpusDir(name)
	require.NoError(t, writeCorpusConfig(dir, DefaultCorpusConfig()))
}

func TestOpenRejectsSecondLock(t *testing.T) {
	cfg := testConfig(t)
	s1, err := Open(cfg)
	require.NoError(t, err)
	defer s1.Close()

	_, err = Open(cfg)
	assert.Error(t, err)
}

func TestApplyUpdateAndFind(t *testing.T) {
	cfg := testConfig(t)
	s, err := Open(cfg)
	require.NoError(t, err)
	defer s.Close()

	mustCreateCorpus(t, s, "pcc2")
	batch := update.Batch{Events: []update.Event{
		update.NewAddNode("tok1", "node"),
		update.NewAddNode("tok2", "node"),
		update.NewAddNodeLabel("tok1", "annis", "tok", "the"),
		update.NewAddNodeLabel("tok2", "annis", "tok", "cat"),
		update.NewAddEdge("tok1", "tok2", "annis", string(model.Ordering), ""),
	}}
	require.NoError(t, s.ApplyUpdate("pcc2", batch))

	d := &query.Disjunction{Conjunctions: []*query.Conjunction{{
		Nodes:            []query.NodeEntry{{Variable: "t", Spec: query.ExactTokenValue{Value: "cat"}}},
		IncludedInOutput: map[string]struct{}{"t": {}},
	}}}

	count, err := s.Count("pcc2", d)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	groups, err := s.Find("pcc2", d, 0, -1, query.SortNotSorted, 0)
	require.NoError(t, err)
	require.Len(t, groups, 1)
}

func TestListInfoUnloadDelete(t *testing.T) {
	cfg := testConfig(t)
	s, err := Open(cfg)
	require.NoError(t, err)
	defer s.Close()

	mustCreateCorpus(t, s, "c1")
	mustCreateCorpus(t, s, "c2")

	names, err := s.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c1", "c2"}, names)

	require.NoError(t, s.Preload("c1"))
	info, err := s.Info("c1")
	require.NoError(t, err)
	assert.True(t, info.Loaded)

	require.NoError(t, s.Unload("c1"))
	info, err = s.Info("c1")
	require.NoError(t, err)
	assert.False(t, info.Loaded)

	require.NoError(t, s.Delete("c2"))
	_, err = s.Info("c2")
	assert.Error(t, err)
}

func TestListComponentsAfterUpdate(t *testing.T) {
	cfg := testConfig(t)
	s, err := Open(cfg)
	require.NoError(t, err)
	defer s.Close()

	mustCreateCorpus(t, s, "c3")
	batch := update.Batch{Events: []update.Event{
		update.NewAddNode("a", "node"),
		update.NewAddNode("b", "node"),
		update.NewAddEdge("a", "b", "annis", string(model.Dominance), ""),
	}}
	require.NoError(t, s.ApplyUpdate("c3", batch))

	comps, err := s.ListComponents("c3", nil, nil)
	require.NoError(t, err)

	found := false
	for _, c := range comps {
		if c.CType == model.Dominance {
			found = true
		}
	}
	assert.True(t, found)
}

func TestEncodeCorpusNameRoundTrips(t *testing.T) {
	cfg := testConfig(t)
	s, err := Open(cfg)
	require.NoError(t, err)
	defer s.Close()

	mustCreateCorpus(t, s, "weird name/with-slash")
	names, err := s.List()
	require.NoError(t, err)
	assert.Contains(t, names, "weird name/with-slash")
	assert.True(t, fileExists(filepath.Join(cfg.Store.DBDir, encodeCorpusName("weird name/with-slash"))))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
