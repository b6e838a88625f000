package anno

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/graphdb/pkg/diskmap"
	"github.com/orneryd/graphdb/pkg/model"
)

func openDiskStore(t *testing.T) *DiskStore[model.NodeID] {
	t.Helper()
	m, err := diskmap.Open("", diskmap.DefaultEviction())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return NewDiskStore[model.NodeID](m, 0x10, Codec[model.NodeID]{Decode: model.DecodeNodeID})
}

func TestDiskStoreInsertAndGet(t *testing.T) {
	s := openDiskStore(t)
	require.NoError(t, s.Insert(1, model.Annotation{Key: tokKey(), Value: "hello"}))

	v, ok, err := s.GetValueForItem(1, tokKey())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello", v)
}

func TestDiskStoreReplacesOnSecondInsert(t *testing.T) {
	s := openDiskStore(t)
	require.NoError(t, s.Insert(1, model.Annotation{Key: tokKey(), Value: "hello"}))
	require.NoError(t, s.Insert(1, model.Annotation{Key: tokKey(), Value: "world"}))

	v, _, err := s.GetValueForItem(1, tokKey())
	require.NoError(t, err)
	assert.Equal(t, "world", v)

	n, err := s.NumberOfAnnotationsByName(nil, "tok")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDiskStoreExactAnnoSearch(t *testing.T) {
	s := openDiskStore(t)
	require.NoError(t, s.Insert(1, model.Annotation{Key: tokKey(), Value: "hello"}))
	require.NoError(t, s.Insert(2, model.Annotation{Key: tokKey(), Value: "world"}))

	matches, err := s.ExactAnnoSearch(nil, "tok", SomeSearch("hello"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, model.NodeID(1), matches[0].Item)
}

func TestDiskStoreLargestItem(t *testing.T) {
	s := openDiskStore(t)
	require.NoError(t, s.Insert(5, model.Annotation{Key: tokKey(), Value: "a"}))
	require.NoError(t, s.Insert(9, model.Annotation{Key: tokKey(), Value: "b"}))

	largest, ok, err := s.GetLargestItem()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, model.NodeID(9), largest)
}
