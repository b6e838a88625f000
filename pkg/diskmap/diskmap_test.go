package diskmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Map {
	t.Helper()
	m, err := Open("", DefaultEviction())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestInsertGetRemove(t *testing.T) {
	m := openTest(t)
	require.NoError(t, m.Insert([]byte("a"), []byte("1")))

	v, err := m.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	ok, err := m.ContainsKey([]byte("a"))
	require.NoError(t, err)
	assert.True(t, ok)

	prior, err := m.Remove([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), prior)

	v, err = m.Get([]byte("a"))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestRangeAscending(t *testing.T) {
	m := openTest(t)
	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, m.Insert([]byte(k), []byte(k)))
	}

	var got []string
	err := m.Range([]byte("b"), []byte("d"), func(e Entry) bool {
		got = append(got, string(e.Key))
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, got)
}

func TestIterVisitsEverything(t *testing.T) {
	m := openTest(t)
	want := map[string]string{"x": "1", "y": "2", "z": "3"}
	for k, v := range want {
		require.NoError(t, m.Insert([]byte(k), []byte(v)))
	}

	got := map[string]string{}
	err := m.Iter(func(e Entry) bool {
		got[string(e.Key)] = string(e.Value)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestClear(t *testing.T) {
	m := openTest(t)
	require.NoError(t, m.Insert([]byte("a"), []byte("1")))
	require.NoError(t, m.Clear())

	v, err := m.Get([]byte("a"))
	require.NoError(t, err)
	assert.Nil(t, v)
}
