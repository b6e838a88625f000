package gs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/orneryd/graphdb/pkg/anno"
	"github.com/orneryd/graphdb/pkg/model"
)

// DenseAdjacency is a bitset-backed GraphStorage for small, highly
// connected components (spec's "small nodes x nodes bitset" case): a
// node x node adjacency matrix is cheaper than per-node slices once
// the component is dense enough, and membership/reachability tests
// become bit operations over a fixed node index.
type DenseAdjacency struct {
	mu      sync.RWMutex
	nodes   []model.NodeID
	index   map[model.NodeID]int
	bits    []uint64 // row-major, words per row = ceil(n/64)
	wpr     int
	annos   *anno.MemStore[model.Edge]
	stats   model.GraphStatistic
	hasStats bool
}

func NewDenseAdjacency() *DenseAdjacency {
	return &DenseAdjacency{
		index: map[model.NodeID]int{},
		annos: anno.NewMemStore[model.Edge](),
	}
}

func (d *DenseAdjacency) wordsPerRow(n int) int { return (n + 63) / 64 }

func (d *DenseAdjacency) bitPos(i, j int) (word, bit int) {
	return i*d.wpr + j/64, j % 64
}

func (d *DenseAdjacency) getBit(i, j int) bool {
	w, b := d.bitPos(i, j)
	return d.bits[w]&(uint64(1)<<uint(b)) != 0
}

func (d *DenseAdjacency) setBit(i, j int) {
	w, b := d.bitPos(i, j)
	d.bits[w] |= uint64(1) << uint(b)
}

func (d *DenseAdjacency) clearBit(i, j int) {
	w, b := d.bitPos(i, j)
	d.bits[w] &^= uint64(1) << uint(b)
}

func (d *DenseAdjacency) GetOutgoingEdges(src model.NodeID) ([]model.NodeID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	i, ok := d.index[src]
	if !ok {
		return nil, nil
	}
	var out []model.NodeID
	for j, n := range d.nodes {
		if d.getBit(i, j) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (d *DenseAdjacency) GetIngoingEdges(tgt model.NodeID) ([]model.NodeID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	j, ok := d.index[tgt]
	if !ok {
		return nil, nil
	}
	var out []model.NodeID
	for i, n := range d.nodes {
		if d.getBit(i, j) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (d *DenseAdjacency) SourceNodes() ([]model.NodeID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []model.NodeID
	for i, n := range d.nodes {
		hasOut := false
		for j := range d.nodes {
			if d.getBit(i, j) {
				hasOut = true
				break
			}
		}
		if hasOut {
			out = append(out, n)
		}
	}
	return sortedUnique(out), nil
}

func (d *DenseAdjacency) GetStatistics() (model.GraphStatistic, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stats, d.hasStats
}

func (d *DenseAdjacency) AnnoStorage() anno.Store[model.Edge] { return d.annos }

func (d *DenseAdjacency) IsConnected(src, tgt model.NodeID, minDist int, maxDist DistanceBound) (bool, error) {
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

func (d *DenseAdjacency) Distance(src, tgt model.NodeID) (int, bool, error) {
	return dfsDistance(d, src, tgt)
}

func (d *DenseAdjacency) FindConnected(src model.NodeID, min int, max DistanceBound) ([]model.NodeID, error) {
	nodes, _, err := dfsReachable(d, src, min, max, false)
	return nodes, err
}

func (d *DenseAdjacency) FindConnectedInverse(src model.NodeID, min int, max DistanceBound) ([]model.NodeID, error) {
	nodes, _, err := dfsReachable(d, src, min, max, true)
	return nodes, err
}

func (d *DenseAdjacency) SerializationID() string { return "denseadjacency_v1" }

type denseSnapshot struct {
	Nodes []model.NodeID `json:"nodes"`
	Bits  []uint64       `json:"bits"`
}

func (d *DenseAdjacency) SaveTo(dir string) error {
	d.mu.RLock()
	snap := denseSnapshot{Nodes: d.nodes, Bits: d.bits}
	d.mu.RUnlock()
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "dense.json"), data, 0o644)
}

func (d *DenseAdjacency) LoadFrom(dir string) error {
	data, err := os.ReadFile(filepath.Join(dir, "dense.json"))
	if err != nil {
		return err
	}
	var snap denseSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nodes = snap.Nodes
	d.bits = snap.Bits
	d.wpr = d.wordsPerRow(len(d.nodes))
	d.index = map[model.NodeID]int{}
	for i, n := range d.nodes {
		d.index[n] = i
	}
	return nil
}

// Copy rebuilds a DenseAdjacency from any GraphStorage. The registry
// only selects this variant for components small enough that the full
// n x n bitset is cheaper than per-node adjacency slices.
func (d *DenseAdjacency) Copy(other GraphStorage) error {
	sources, err := other.SourceNodes()
	if err != nil {
		return err
	}
	nodeSet := map[model.NodeID]struct{}{}
	type pair struct{ src, tgt model.NodeID }
	var edges []pair
	for _, src := range sources {
		nodeSet[src] = struct{}{}
		targets, err := other.GetOutgoingEdges(src)
		if err != nil {
			return err
		}
		for _, tgt := range targets {
			nodeSet[tgt] = struct{}{}
			edges = append(edges, pair{src, tgt})
		}
	}
	nodes := make([]model.NodeID, 0, len(nodeSet))
	for n := range nodeSet {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	index := map[model.NodeID]int{}
	for i, n := range nodes {
		index[n] = i
	}
	wpr := d.wordsPerRow(len(nodes))
	bits := make([]uint64, wpr*len(nodes))

	annos := anno.NewMemStore[model.Edge]()
	d.mu.Lock()
	d.nodes, d.index, d.bits, d.wpr = nodes, index, bits, wpr
	for _, e := range edges {
		d.setBit(index[e.src], index[e.tgt])
	}
	d.mu.Unlock()

	for _, e := range edges {
		edge := model.Edge{Source: e.src, Target: e.tgt}
		items, err := other.AnnoStorage().GetAnnotationsForItem(edge)
		if err != nil {
			return err
		}
		for _, an := range items {
			if err := annos.Insert(edge, an); err != nil {
				return err
			}
		}
	}
	d.mu.Lock()
	d.annos = annos
	d.hasStats = false
	d.mu.Unlock()
	return nil
}

func (d *DenseAdjacency) InverseHasSameCost() bool { return true }

func (d *DenseAdjacency) AsWriteable() (WriteableGraphStorage, bool) { return nil, false }

func (d *DenseAdjacency) CalculateStatistics() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := map[model.NodeID][]model.NodeID{}
	in := map[model.NodeID][]model.NodeID{}
	for i, src := range d.nodes {
		for j, tgt := range d.nodes {
			if d.getBit(i, j) {
				out[src] = append(out[src], tgt)
				in[tgt] = append(in[tgt], src)
			}
		}
	}
	d.stats = computeStatsFromAdjacency(out, in)
	d.hasStats = true
	return nil
}
