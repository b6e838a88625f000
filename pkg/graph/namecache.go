package graph

import (
	"container/list"
	"sync"

	"github.com/orneryd/graphdb/pkg/model"
)

// nameCache is a bounded LRU of name -> NodeID resolutions, grounded on
// pkg/cache/query_cache.go's container/list + map LRU shape. Misses
// fall through to the Graph's nameIndex map, which holds the
// authoritative mapping for disk-backed Graphs too, so the cache only
// ever trims hot lookups.
type nameCache struct {
	mu      sync.Mutex
	maxSize int
	list    *list.List
	items   map[string]*list.Element
}

type nameCacheEntry struct {
	name string
	id   model.NodeID
}

// defaultNameCacheSize is spec's "capacity ~= 10^6" default.
const defaultNameCacheSize = 1_000_000

func newNameCache(maxSize int) *nameCache {
	if maxSize <= 0 {
		maxSize = defaultNameCacheSize
	}
	return &nameCache{
		maxSize: maxSize,
		list:    list.New(),
		items:   map[string]*list.Element{},
	}
}

func (c *nameCache) get(name string) (model.NodeID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[name]
	if !ok {
		return 0, false
	}
	c.list.MoveToFront(el)
	return el.Value.(*nameCacheEntry).id, true
}

func (c *nameCache) put(name string, id model.NodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[name]; ok {
		el.Value.(*nameCacheEntry).id = id
		c.list.MoveToFront(el)
		return
	}
	el := c.list.PushFront(&nameCacheEntry{name: name, id: id})
	c.items[name] = el
	if c.list.Len() > c.maxSize {
		oldest := c.list.Back()
		if oldest != nil {
			c.list.Remove(oldest)
			delete(c.items, oldest.Value.(*nameCacheEntry).name)
		}
	}
}

func (c *nameCache) forget(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[name]; ok {
		c.list.Remove(el)
		delete(c.items, name)
	}
}
