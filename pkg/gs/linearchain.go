package gs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/orneryd/graphdb/pkg/anno"
	"github.com/orneryd/graphdb/pkg/model"
)

// LinearChain is a specialized read-optimized GraphStorage for
// near-1-fanout chains (spec's avg_fan_out <= 1.0, max_fan_out <= 1),
// grounded on pkg/cypher/traversal.go's DFS traversal style but storing
// edges as a single next-pointer map instead of adjacency slices, since
// every node has at most one outgoing edge.
type LinearChain struct {
	mu    sync.RWMutex
	next  map[model.NodeID]model.NodeID
	hasNext map[model.NodeID]bool
	prev  map[model.NodeID]model.NodeID
	hasPrev map[model.NodeID]bool
	annos *anno.MemStore[model.Edge]
	stats model.GraphStatistic
	hasStats bool
}

func NewLinearChain() *LinearChain {
	return &LinearChain{
		next:    map[model.NodeID]model.NodeID{},
		hasNext: map[model.NodeID]bool{},
		prev:    map[model.NodeID]model.NodeID{},
		hasPrev: map[model.NodeID]bool{},
		annos:   anno.NewMemStore[model.Edge](),
	}
}

func (l *LinearChain) GetOutgoingEdges(src model.NodeID) ([]model.NodeID, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n, ok := l.hasNext[src]; ok && n {
		return []model.NodeID{l.next[src]}, nil
	}
	return nil, nil
}

func (l *LinearChain) GetIngoingEdges(tgt model.NodeID) ([]model.NodeID, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if p, ok := l.hasPrev[tgt]; ok && p {
		return []model.NodeID{l.prev[tgt]}, nil
	}
	return nil, nil
}

func (l *LinearChain) SourceNodes() ([]model.NodeID, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.NodeID, 0, len(l.next))
	for n := range l.next {
		out = append(out, n)
	}
	return sortedUnique(out), nil
}

func (l *LinearChain) GetStatistics() (model.GraphStatistic, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats, l.hasStats
}

func (l *LinearChain) AnnoStorage() anno.Store[model.Edge] { return l.annos }

func (l *LinearChain) IsConnected(src, tgt model.NodeID, minDist int, maxDist DistanceBound) (bool, error) {
	nodes, _, err := dfsReachable(l, src, minDist, maxDist, false)
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

func (l *LinearChain) Distance(src, tgt model.NodeID) (int, bool, error) {
	return dfsDistance(l, src, tgt)
}

func (l *LinearChain) FindConnected(src model.NodeID, min int, max DistanceBound) ([]model.NodeID, error) {
	nodes, _, err := dfsReachable(l, src, min, max, false)
	return nodes, err
}

func (l *LinearChain) FindConnectedInverse(src model.NodeID, min int, max DistanceBound) ([]model.NodeID, error) {
	nodes, _, err := dfsReachable(l, src, min, max, true)
	return nodes, err
}

func (l *LinearChain) SerializationID() string { return "linearchain_v1" }

type linearChainSnapshot struct {
	Next map[model.NodeID]model.NodeID `json:"next"`
}

func (l *LinearChain) SaveTo(dir string) error {
	l.mu.RLock()
	snap := linearChainSnapshot{Next: l.next}
	l.mu.RUnlock()
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "chain.json"), data, 0o644)
}

func (l *LinearChain) LoadFrom(dir string) error {
	data, err := os.ReadFile(filepath.Join(dir, "chain.json"))
	if err != nil {
		return err
	}
	var snap linearChainSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rebuildFromNextLocked(snap.Next)
	return nil
}

func (l *LinearChain) rebuildFromNextLocked(next map[model.NodeID]model.NodeID) {
	l.next = next
	if l.next == nil {
		l.next = map[model.NodeID]model.NodeID{}
	}
	l.hasNext = map[model.NodeID]bool{}
	l.prev = map[model.NodeID]model.NodeID{}
	l.hasPrev = map[model.NodeID]bool{}
	for src, tgt := range l.next {
		l.hasNext[src] = true
		l.prev[tgt] = src
		l.hasPrev[tgt] = true
	}
}

// Copy rebuilds a LinearChain from any GraphStorage. Only valid when
// other genuinely has max fan-out <= 1; the registry only selects this
// variant when GraphStatistic confirms that shape.
func (l *LinearChain) Copy(other GraphStorage) error {
	sources, err := other.SourceNodes()
	if err != nil {
		return err
	}
	next := map[model.NodeID]model.NodeID{}
	annos := anno.NewMemStore[model.Edge]()
	for _, src := range sources {
		targets, err := other.GetOutgoingEdges(src)
		if err != nil {
			return err
		}
		if len(targets) == 0 {
			continue
		}
		tgt := targets[0]
		next[src] = tgt
		e := model.Edge{Source: src, Target: tgt}
		items, err := other.AnnoStorage().GetAnnotationsForItem(e)
		if err != nil {
			return err
		}
		for _, an := range items {
			if err := annos.Insert(e, an); err != nil {
				return err
			}
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rebuildFromNextLocked(next)
	l.annos = annos
	l.hasStats = false
	return nil
}

func (l *LinearChain) InverseHasSameCost() bool { return true }

func (l *LinearChain) AsWriteable() (WriteableGraphStorage, bool) { return nil, false }

func (l *LinearChain) CalculateStatistics() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := map[model.NodeID][]model.NodeID{}
	in := map[model.NodeID][]model.NodeID{}
	for src, tgt := range l.next {
		out[src] = []model.NodeID{tgt}
		in[tgt] = append(in[tgt], src)
	}
	l.stats = computeStatsFromAdjacency(out, in)
	l.hasStats = true
	return nil
}
