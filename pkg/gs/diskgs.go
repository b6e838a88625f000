package gs

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"

	"github.com/orneryd/graphdb/pkg/anno"
	"github.com/orneryd/graphdb/pkg/diskmap"
	"github.com/orneryd/graphdb/pkg/model"
)

// DiskAdjacencyList is the on-disk GraphStorage, selected regardless of
// topology when memory pressure requires an on-disk backing, grounded
// on pkg/storage/badger.go's index-prefix key layout: outgoing and
// incoming edges are each stored under their own tag byte so both
// directions are independent ordered scans over the same diskmap.Map.
type DiskAdjacencyList struct {
	mu    sync.RWMutex
	m     *diskmap.Map
	annos *anno.DiskStore[model.Edge]
	stats model.GraphStatistic
	hasStats bool
}

const (
	diskGSTagOut   = byte(0x01) // src.Encode() \x00 tgt.Encode() -> empty
	diskGSTagIn    = byte(0x02) // tgt.Encode() \x00 src.Encode() -> empty
	diskGSPrefix   = byte(0xd0)
	diskGSAnnoPrefix = byte(0xd1)
)

// NewDiskAdjacencyList wraps m (owned by the caller) as a GraphStorage.
func NewDiskAdjacencyList(m *diskmap.Map) *DiskAdjacencyList {
	return &DiskAdjacencyList{
		m:     m,
		annos: anno.NewDiskStore[model.Edge](m, diskGSAnnoPrefix, anno.Codec[model.Edge]{Decode: model.DecodeEdge}),
	}
}

func (d *DiskAdjacencyList) keyOut(src, tgt model.NodeID) []byte {
	var b bytes.Buffer
	b.WriteByte(diskGSPrefix)
	b.WriteByte(diskGSTagOut)
	b.Write(src.Encode())
	b.WriteByte(0)
	b.Write(tgt.Encode())
	return b.Bytes()
}

func (d *DiskAdjacencyList) keyIn(tgt, src model.NodeID) []byte {
	var b bytes.Buffer
	b.WriteByte(diskGSPrefix)
	b.WriteByte(diskGSTagIn)
	b.Write(tgt.Encode())
	b.WriteByte(0)
	b.Write(src.Encode())
	return b.Bytes()
}

func (d *DiskAdjacencyList) prefixOut(src model.NodeID) []byte {
	var b bytes.Buffer
	b.WriteByte(diskGSPrefix)
	b.WriteByte(diskGSTagOut)
	b.Write(src.Encode())
	b.WriteByte(0)
	return b.Bytes()
}

func (d *DiskAdjacencyList) prefixIn(tgt model.NodeID) []byte {
	var b bytes.Buffer
	b.WriteByte(diskGSPrefix)
	b.WriteByte(diskGSTagIn)
	b.Write(tgt.Encode())
	b.WriteByte(0)
	return b.Bytes()
}

func (d *DiskAdjacencyList) GetOutgoingEdges(src model.NodeID) ([]model.NodeID, error) {
	prefix := d.prefixOut(src)
	var out []model.NodeID
	err := d.m.Range(prefix, prefixUpperBoundBytes(prefix), func(e diskmap.Entry) bool {
		out = append(out, model.DecodeNodeID(e.Key[len(prefix):]))
		return true
	})
	return out, err
}

func (d *DiskAdjacencyList) GetIngoingEdges(tgt model.NodeID) ([]model.NodeID, error) {
	prefix := d.prefixIn(tgt)
	var out []model.NodeID
	err := d.m.Range(prefix, prefixUpperBoundBytes(prefix), func(e diskmap.Entry) bool {
		out = append(out, model.DecodeNodeID(e.Key[len(prefix):]))
		return true
	})
	return out, err
}

func (d *DiskAdjacencyList) SourceNodes() ([]model.NodeID, error) {
	prefix := []byte{diskGSPrefix, diskGSTagOut}
	seen := map[model.NodeID]struct{}{}
	err := d.m.Range(prefix, prefixUpperBoundBytes(prefix), func(e diskmap.Entry) bool {
		rest := e.Key[len(prefix):]
		if len(rest) < 8 {
			return true
		}
		seen[model.DecodeNodeID(rest[:8])] = struct{}{}
		return true
	})
	if err != nil {
		return nil, err
	}
	out := make([]model.NodeID, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	return sortedUnique(out), nil
}

func (d *DiskAdjacencyList) GetStatistics() (model.GraphStatistic, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stats, d.hasStats
}

func (d *DiskAdjacencyList) AnnoStorage() anno.Store[model.Edge] { return d.annos }

func (d *DiskAdjacencyList) IsConnected(src, tgt model.NodeID, minDist int, maxDist DistanceBound) (bool, error) {
	nodes, _, err := dfsReachable(d, src, minDist, maxDist, false)
	if err != nil {
		return false, err
	}
	for _, n := range nodes {
		if n == tgt {
			return true, nil
		}
	}
	return false, nil
}

func (d *DiskAdjacencyList) Distance(src, tgt model.NodeID) (int, bool, error) {
	return dfsDistance(d, src, tgt)
}

func (d *DiskAdjacencyList) FindConnected(src model.NodeID, min int, max DistanceBound) ([]model.NodeID, error) {
	nodes, _, err := dfsReachable(d, src, min, max, false)
	return nodes, err
}

func (d *DiskAdjacencyList) FindConnectedInverse(src model.NodeID, min int, max DistanceBound) ([]model.NodeID, error) {
	nodes, _, err := dfsReachable(d, src, min, max, true)
	return nodes, err
}

func (d *DiskAdjacencyList) SerializationID() string { return "diskadjacencylist_v1" }

// SaveTo runs a badger backup of the underlying map to a single file,
// matching diskmap.Map.WriteTo's single-file-backup contract.
func (d *DiskAdjacencyList) SaveTo(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dir, "diskgs.backup"))
	if err != nil {
		return err
	}
	defer f.Close()
	return d.m.WriteTo(f)
}

// LoadFrom is a no-op: DiskAdjacencyList reads live from its shared
// diskmap.Map, which is restored by the owning Graph before this
// container is constructed.
func (d *DiskAdjacencyList) LoadFrom(dir string) error { return nil }

func (d *DiskAdjacencyList) Copy(other GraphStorage) error {
	sources, err := other.SourceNodes()
	if err != nil {
		return err
	}
	for _, src := range sources {
		targets, err := other.GetOutgoingEdges(src)
		if err != nil {
			return err
		}
		for _, tgt := range targets {
			if err := d.AddEdge(model.Edge{Source: src, Target: tgt}); err != nil {
				return err
			}
			items, err := other.AnnoStorage().GetAnnotationsForItem(model.Edge{Source: src, Target: tgt})
			if err != nil {
				return err
			}
			for _, an := range items {
				if err := d.annos.Insert(model.Edge{Source: src, Target: tgt}, an); err != nil {
					return err
				}
			}
		}
	}
	d.mu.Lock()
	d.hasStats = false
	d.mu.Unlock()
	return nil
}

func (d *DiskAdjacencyList) InverseHasSameCost() bool { return true }

func (d *DiskAdjacencyList) AsWriteable() (WriteableGraphStorage, bool) { return d, true }

func (d *DiskAdjacencyList) AddEdge(e model.Edge) error {
	if err := d.m.Insert(d.keyOut(e.Source, e.Target), []byte{}); err != nil {
		return err
	}
	if err := d.m.Insert(d.keyIn(e.Target, e.Source), []byte{}); err != nil {
		return err
	}
	d.mu.Lock()
	d.hasStats = false
	d.mu.Unlock()
	return nil
}

func (d *DiskAdjacencyList) AddEdgeAnnotation(e model.Edge, a model.Annotation) error {
	return d.annos.Insert(e, a)
}

func (d *DiskAdjacencyList) DeleteEdge(e model.Edge) error {
	if _, err := d.m.Remove(d.keyOut(e.Source, e.Target)); err != nil {
		return err
	}
	if _, err := d.m.Remove(d.keyIn(e.Target, e.Source)); err != nil {
		return err
	}
	d.mu.Lock()
	d.hasStats = false
	d.mu.Unlock()
	return nil
}

func (d *DiskAdjacencyList) DeleteEdgeAnnotation(e model.Edge, key model.AnnoKey) error {
	_, _, err := d.annos.RemoveAnnotationForItem(e, key)
	return err
}

func (d *DiskAdjacencyList) DeleteNode(n model.NodeID) error {
	targets, err := d.GetOutgoingEdges(n)
	if err != nil {
		return err
	}
	for _, t := range targets {
		if err := d.DeleteEdge(model.Edge{Source: n, Target: t}); err != nil {
			return err
		}
	}
	sources, err := d.GetIngoingEdges(n)
	if err != nil {
		return err
	}
	for _, s := range sources {
		if err := d.DeleteEdge(model.Edge{Source: s, Target: n}); err != nil {
			return err
		}
	}
	return nil
}

func (d *DiskAdjacencyList) CalculateStatistics() error {
	sources, err := d.SourceNodes()
	if err != nil {
		return err
	}
	out := map[model.NodeID][]model.NodeID{}
	in := map[model.NodeID][]model.NodeID{}
	for _, src := range sources {
		targets, err := d.GetOutgoingEdges(src)
		if err != nil {
			return err
		}
		out[src] = targets
		for _, t := range targets {
			in[t] = append(in[t], src)
		}
	}
	d.mu.Lock()
	d.stats = computeStatsFromAdjacency(out, in)
	d.hasStats = true
	d.mu.Unlock()
	return nil
}
