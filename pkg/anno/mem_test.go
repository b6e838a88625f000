package anno

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/graphdb/pkg/model"
)

func tokKey() model.AnnoKey { return model.AnnoKey{NS: "annis", Name: "tok"} }

func TestMemStoreInsertAndGet(t *testing.T) {
	s := NewMemStore[model.NodeID]()
	require.NoError(t, s.Insert(1, model.Annotation{Key: tokKey(), Value: "hello"}))

	v, ok, err := s.GetValueForItem(1, tokKey())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello", v)

	// second insert replaces
	require.NoError(t, s.Insert(1, model.Annotation{Key: tokKey(), Value: "world"}))
	v, _, _ = s.GetValueForItem(1, tokKey())
	assert.Equal(t, "world", v)

	annos, err := s.GetAnnotationsForItem(1)
	require.NoError(t, err)
	assert.Len(t, annos, 1)
}

func TestMemStoreRemoveDropsValueEntry(t *testing.T) {
	s := NewMemStore[model.NodeID]()
	require.NoError(t, s.Insert(1, model.Annotation{Key: tokKey(), Value: "hello"}))

	prior, had, err := s.RemoveAnnotationForItem(1, tokKey())
	require.NoError(t, err)
	assert.True(t, had)
	assert.Equal(t, "hello", prior)

	n, err := s.NumberOfAnnotationsByName(nil, "tok")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMemStoreExactAnnoSearch(t *testing.T) {
	s := NewMemStore[model.NodeID]()
	require.NoError(t, s.Insert(1, model.Annotation{Key: tokKey(), Value: "hello"}))
	require.NoError(t, s.Insert(2, model.Annotation{Key: tokKey(), Value: "world"}))

	matches, err := s.ExactAnnoSearch(nil, "tok", SomeSearch("hello"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, model.NodeID(1), matches[0].Item)

	matches, err = s.ExactAnnoSearch(nil, "tok", NotSomeSearch("hello"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, model.NodeID(2), matches[0].Item)

	matches, err = s.ExactAnnoSearch(nil, "tok", AnySearch())
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestMemStoreRegexAnnoSearchDegradesWithoutMetachar(t *testing.T) {
	s := NewMemStore[model.NodeID]()
	require.NoError(t, s.Insert(1, model.Annotation{Key: tokKey(), Value: "hello"}))
	require.NoError(t, s.Insert(2, model.Annotation{Key: tokKey(), Value: "world"}))

	exact, err := s.ExactAnnoSearch(nil, "tok", SomeSearch("hello"))
	require.NoError(t, err)

	regex, err := s.RegexAnnoSearch(nil, "tok", "hello", false)
	require.NoError(t, err)

	assert.ElementsMatch(t, exact, regex)
}

func TestMemStoreLargestItem(t *testing.T) {
	s := NewMemStore[model.NodeID]()
	require.NoError(t, s.Insert(5, model.Annotation{Key: tokKey(), Value: "a"}))
	require.NoError(t, s.Insert(3, model.Annotation{Key: tokKey(), Value: "b"}))
	require.NoError(t, s.Insert(9, model.Annotation{Key: tokKey(), Value: "c"}))

	largest, ok, err := s.GetLargestItem()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, model.NodeID(9), largest)
}

func TestMemStoreGuessMaxCount(t *testing.T) {
	s := NewMemStore[model.NodeID]()
	for i := model.NodeID(0); i < 100; i++ {
		require.NoError(t, s.Insert(i, model.Annotation{Key: tokKey(), Value: string(rune('a' + int(i)%26))}))
	}
	require.NoError(t, s.CalculateStatistics())

	count, err := s.GuessMaxCount(nil, "tok", "a", "z")
	require.NoError(t, err)
	assert.InDelta(t, 100, count, 100)
}
