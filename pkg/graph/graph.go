// Package graph implements the Graph of spec §4.3: node annotations
// plus a Component -> edge container map, an update-event apply
// pipeline, derived-index maintenance and WAL-backed persistence.
package graph

import (
	"sync"
	"sync/atomic"

	"github.com/orneryd/graphdb/pkg/anno"
	"github.com/orneryd/graphdb/pkg/diskmap"
	"github.com/orneryd/graphdb/pkg/gs"
	"github.com/orneryd/graphdb/pkg/model"
)

// componentSlot holds one edge container plus a sharing flag: when
// shared is true the container must not be mutated in place and is
// cloned into a fresh AdjacencyList on first write, grounded on
// pkg/storage/wal.go's WALEngine wrapper-around-engine pattern, adapted
// from "log then delegate" to "clone then delegate".
type componentSlot struct {
	mu      sync.Mutex
	storage gs.GraphStorage
	shared  bool
}

// Graph owns the node annotation store and every edge container,
// keyed by Component, and tracks a monotonic current_change_id.
type Graph struct {
	mu sync.RWMutex

	nodeAnnos anno.Store[model.NodeID]
	slots     map[model.Component]*componentSlot

	nameIndex  map[string]model.NodeID
	names      *nameCache
	nextNodeID model.NodeID

	changeID atomic.Uint64

	sizeMu      sync.Mutex
	sizeValid   bool
	sizeBytes   uint64

	diskBacked bool
	diskMap    *diskmap.Map
}

// NewGraph builds an empty in-memory Graph with the default component
// set pre-registered (per spec §3's DefaultComponents).
func NewGraph() *Graph {
	g := &Graph{
		nodeAnnos: anno.NewMemStore[model.NodeID](),
		slots:     map[model.Component]*componentSlot{},
		nameIndex: map[string]model.NodeID{},
		names:     newNameCache(0),
	}
	for _, c := range model.DefaultComponents() {
		g.slots[c] = &componentSlot{storage: gs.NewAdjacencyList()}
	}
	return g
}

// NewDiskBackedGraph builds a Graph whose node annotations and new
// components are disk-backed via m, for corpora whose configuration
// selects the disk-based backing (spec §4.1's two-backing split applied
// at the Graph level).
func NewDiskBackedGraph(m *diskmap.Map) *Graph {
	g := &Graph{
		nodeAnnos:  anno.NewDiskStore[model.NodeID](m, 0x20, anno.Codec[model.NodeID]{Decode: model.DecodeNodeID}),
		slots:      map[model.Component]*componentSlot{},
		nameIndex:  map[string]model.NodeID{},
		names:      newNameCache(0),
		diskBacked: true,
		diskMap:    m,
	}
	for _, c := range model.DefaultComponents() {
		g.slots[c] = &componentSlot{storage: gs.NewDiskAdjacencyList(m)}
	}
	return g
}

// ChangeID returns the current monotonic change counter.
func (g *Graph) ChangeID() uint64 { return g.changeID.Load() }

// NodeAnnos exposes the node annotation store for query execution.
func (g *Graph) NodeAnnos() anno.Store[model.NodeID] { return g.nodeAnnos }

// Components lists every component currently registered, in Component
// order.
func (g *Graph) Components() []model.Component {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]model.Component, 0, len(g.slots))
	for c := range g.slots {
		out = append(out, c)
	}
	sortComponents(out)
	return out
}

// RecalculateStatistics recomputes GraphStatistic for every component's
// storage concurrently. The Graph does not call pkg/gs.Rebuild
// afterwards, so each component keeps its current backing
// representation; the new statistics feed query cost estimates and
// ComputeSizeBytes.
func (g *Graph) RecalculateStatistics() error {
	g.mu.RLock()
	storages := make([]gs.GraphStorage, 0, len(g.slots))
	for _, slot := range g.slots {
		storages = append(storages, slot.storage)
	}
	g.mu.RUnlock()
	return gs.RecalculateAll(storages)
}

// bytesPerAnnotation and bytesPerEdge are rough per-item heap-cost
// estimates (key/value overhead, map bucket, slice header) used by
// ComputeSizeBytes; they don't need to be exact, only proportional to
// real corpus size so the eviction budget comparison means something.
const (
	bytesPerAnnotation = 64
	bytesPerEdge       = 24
)

// ComputeSizeBytes estimates g's heap footprint from its node
// annotation count and the Nodes*AvgFanOut edge estimate of every
// component's GraphStatistic, the compute callback EstimatedSizeBytes
// memoizes. Used by the corpus cache's eviction budget so
// totalLoadedBytes reflects real corpus size instead of a stub.
func (g *Graph) ComputeSizeBytes() uint64 {
	var total uint64

	if keys, err := g.nodeAnnos.AnnotationKeys(); err == nil {
		for _, k := range keys {
			ns := k.NS
			if n, err := g.nodeAnnos.NumberOfAnnotationsByName(&ns, k.Name); err == nil {
				total += uint64(n) * bytesPerAnnotation
			}
		}
	}

	for _, c := range g.Components() {
		storage, ok := g.GetComponent(c)
		if !ok {
			continue
		}
		stat, ok := storage.GetStatistics()
		if !ok {
			if w, writable := storage.AsWriteable(); writable {
				if err := w.CalculateStatistics(); err == nil {
					stat, ok = storage.GetStatistics()
				}
			}
		}
		if !ok {
			continue
		}
		edges := uint64(float64(stat.Nodes) * stat.AvgFanOut)
		total += edges * bytesPerEdge
	}

	return total
}

func sortComponents(cs []model.Component) {
	for i := 1; i < len(cs); i++ {
		for j := i; j > 0 && cs[j].Less(cs[j-1]); j-- {
			cs[j], cs[j-1] = cs[j-1], cs[j]
		}
	}
}

// GetComponent returns the read-only GraphStorage for c, if present.
func (g *Graph) GetComponent(c model.Component) (gs.GraphStorage, bool) {
	g.mu.RLock()
	slot, ok := g.slots[c]
	g.mu.RUnlock()
	if !ok {
		return nil, false
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.storage, true
}

// getOrCreateWritable returns a writable handle for c, cloning a shared
// container into a fresh AdjacencyList first if necessary, and
// registering a brand-new component slot if c is unseen.
func (g *Graph) getOrCreateWritable(c model.Component) (gs.WriteableGraphStorage, error) {
	g.mu.Lock()
	slot, ok := g.slots[c]
	if !ok {
		var storage gs.GraphStorage
		if g.diskBacked {
			storage = gs.NewDiskAdjacencyList(g.diskMap)
		} else {
			storage = gs.NewAdjacencyList()
		}
		slot = &componentSlot{storage: storage}
		g.slots[c] = slot
	}
	g.mu.Unlock()

	slot.mu.Lock()
	defer slot.mu.Unlock()
	if w, ok := slot.storage.AsWriteable(); ok && !slot.shared {
		return w, nil
	}
	fresh := gs.NewAdjacencyList()
	if err := fresh.Copy(slot.storage); err != nil {
		return nil, err
	}
	slot.storage = fresh
	slot.shared = false
	return fresh, nil
}

// MarkShared flags every current component slot as shared, so the next
// write clones rather than mutates in place. Used when a Graph snapshot
// is handed to a reader that must not observe subsequent writes, the
// Graph-level analogue of copy-on-write slices.
func (g *Graph) MarkShared() {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, slot := range g.slots {
		slot.mu.Lock()
		slot.shared = true
		slot.mu.Unlock()
	}
}

func (g *Graph) invalidateSize() {
	g.sizeMu.Lock()
	g.sizeValid = false
	g.sizeMu.Unlock()
}

// EstimatedSizeBytes returns a mutex-protected memoized heap-size
// estimate, invalidated on any mutation (spec §4.3's "cached size").
func (g *Graph) EstimatedSizeBytes(compute func() uint64) uint64 {
	g.sizeMu.Lock()
	defer g.sizeMu.Unlock()
	if g.sizeValid {
		return g.sizeBytes
	}
	g.sizeBytes = compute()
	g.sizeValid = true
	return g.sizeBytes
}

// resolveName looks up name via the bounded LRU cache first, falling
// back to the authoritative name index on a miss (spec §4.3's apply
// pipeline resolution step).
func (g *Graph) resolveName(name string) (model.NodeID, bool) {
	if id, ok := g.names.get(name); ok {
		return id, true
	}
	g.mu.RLock()
	id, ok := g.nameIndex[name]
	g.mu.RUnlock()
	if ok {
		g.names.put(name, id)
	}
	return id, ok
}

func (g *Graph) allocateNode(name, nodeType string) (model.NodeID, error) {
	g.mu.Lock()
	id := g.nextNodeID
	g.nextNodeID++
	g.nameIndex[name] = id
	g.mu.Unlock()
	g.names.put(name, id)

	if err := g.nodeAnnos.Insert(id, model.Annotation{Key: model.NodeNameKey, Value: name}); err != nil {
		return 0, err
	}
	if err := g.nodeAnnos.Insert(id, model.Annotation{Key: model.NodeTypeKey, Value: nodeType}); err != nil {
		return 0, err
	}
	return id, nil
}

func (g *Graph) forgetName(name string) {
	g.mu.Lock()
	delete(g.nameIndex, name)
	g.mu.Unlock()
	g.names.forget(name)
}
