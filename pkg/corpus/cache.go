package corpus

import (
	"container/list"
	"runtime"
	"syscall"

	"github.com/orneryd/graphdb/pkg/config"
	"github.com/orneryd/graphdb/pkg/errs"
	"github.com/orneryd/graphdb/pkg/graph"
)

// cacheState discriminates a cacheEntry's loadedness, spec's
// Loaded(Graph)/NotLoaded CacheEntry variants.
type cacheState int

const (
	notLoaded cacheState = iota
	loaded
)

// cacheEntry is one corpus's cache slot: either a live Graph or a
// placeholder recording only that the corpus exists on disk.
type cacheEntry struct {
	name   string
	state  cacheState
	graph  *graph.Graph
	elem   *list.Element
	pinned bool
}

// lru is the multi-corpus cache: a name-keyed map plus a
// container/list for recency order, exactly the shape of the teacher's
// pkg/cache/query_cache.go QueryCache generalized from "evict parsed
// plans" to "evict loaded corpora".
type lru struct {
	list  *list.List
	items map[string]*cacheEntry
}

func newLRU() *lru {
	return &lru{list: list.New(), items: map[string]*cacheEntry{}}
}

func (c *lru) get(name string) (*cacheEntry, bool) {
	e, ok := c.items[name]
	if ok && e.elem != nil {
		c.list.MoveToFront(e.elem)
	}
	return e, ok
}

func (c *lru) put(e *cacheEntry) {
	if existing, ok := c.items[e.name]; ok && existing.elem != nil {
		c.list.Remove(existing.elem)
	}
	e.elem = c.list.PushFront(e)
	c.items[e.name] = e
}

func (c *lru) remove(name string) {
	if e, ok := c.items[name]; ok {
		if e.elem != nil {
			c.list.Remove(e.elem)
		}
		delete(c.items, name)
	}
}

// oldestUnpinned walks the list from the back (least recently used)
// and returns the first non-pinned, loaded entry.
func (c *lru) oldestUnpinned() (*cacheEntry, bool) {
	for e := c.list.Back(); e != nil; e = e.Prev() {
		entry := e.Value.(*cacheEntry)
		if entry.pinned || entry.state != loaded {
			continue
		}
		return entry, true
	}
	return nil, false
}

// totalLoadedBytes sums the memoized heap estimate of every loaded,
// unpinned-or-not corpus — the "current total" eviction loop compares
// against budget.
func (c *lru) totalLoadedBytes() uint64 {
	var total uint64
	for _, e := range c.items {
		if e.state == loaded && e.graph != nil {
			total += e.graph.EstimatedSizeBytes(e.graph.ComputeSizeBytes)
		}
	}
	return total
}

// budgetBytes resolves the CacheConfig's eviction strategy to a
// concrete byte budget, reading OS free memory for the percent-based
// strategy via syscall.Sysinfo (Linux-only; no third-party
// free-memory probe exists anywhere in the pack, so this one spot
// stays on the standard library — see DESIGN.md).
func budgetBytes(cfg config.CacheConfig, alreadyUsed uint64) uint64 {
	switch cfg.Strategy {
	case config.FixedMaxMemory:
		return cfg.MaxMemoryBytes
	case config.PercentOfFreeMemory:
		free := freeMemoryBytes()
		return uint64(float64(free+alreadyUsed) * cfg.PercentFree)
	default:
		return cfg.MaxMemoryBytes
	}
}

func freeMemoryBytes() uint64 {
	var info syscall.Sysinfo_t
	if err := syscall.Sysinfo(&info); err != nil {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		return m.Sys
	}
	return uint64(info.Freeram) * uint64(info.Unit)
}

// evictUntilUnderBudget removes the least-recently-used unpinned
// loaded entries until total estimated bytes falls within budget,
// the just-loaded corpus (pinned=true) is never a candidate.
func (s *Store) evictUntilUnderBudget() error {
	budget := budgetBytes(s.cfg.Cache, s.cache.totalLoadedBytes())
	for s.cache.totalLoadedBytes() > budget {
		entry, ok := s.cache.oldestUnpinned()
		if !ok {
			return nil
		}
		if err := s.unloadEntry(entry); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) unloadEntry(e *cacheEntry) error {
	if e.state != loaded {
		return nil
	}
	loc := s.locationFor(e.name)
	if err := e.graph.Sync(loc); err != nil {
		return errs.Wrap(errs.IO, err, "sync corpus %q before eviction", e.name)
	}
	e.graph = nil
	e.state = notLoaded
	return nil
}
