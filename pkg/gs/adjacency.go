package gs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/orneryd/graphdb/pkg/anno"
	"github.com/orneryd/graphdb/pkg/model"
)

// AdjacencyList is the default writable GraphStorage, grounded on
// pkg/storage/memory.go's outgoing/incoming index maps: every edge is
// held twice, once per direction, so both GetOutgoingEdges and
// GetIngoingEdges are O(fan-out) rather than a full scan.
type AdjacencyList struct {
	mu    sync.RWMutex
	out   map[model.NodeID][]model.NodeID
	in    map[model.NodeID][]model.NodeID
	annos *anno.MemStore[model.Edge]
	stats model.GraphStatistic
	hasStats bool
}

// NewAdjacencyList builds an empty writable adjacency list.
func NewAdjacencyList() *AdjacencyList {
	return &AdjacencyList{
		out:   map[model.NodeID][]model.NodeID{},
		in:    map[model.NodeID][]model.NodeID{},
		annos: anno.NewMemStore[model.Edge](),
	}
}

func (a *AdjacencyList) GetOutgoingEdges(src model.NodeID) ([]model.NodeID, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]model.NodeID(nil), a.out[src]...), nil
}

func (a *AdjacencyList) GetIngoingEdges(tgt model.NodeID) ([]model.NodeID, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]model.NodeID(nil), a.in[tgt]...), nil
}

func (a *AdjacencyList) SourceNodes() ([]model.NodeID, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]model.NodeID, 0, len(a.out))
	for n, targets := range a.out {
		if len(targets) > 0 {
			out = append(out, n)
		}
	}
	return sortedUnique(out), nil
}

func (a *AdjacencyList) GetStatistics() (model.GraphStatistic, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stats, a.hasStats
}

func (a *AdjacencyList) AnnoStorage() anno.Store[model.Edge] { return a.annos }

func (a *AdjacencyList) IsConnected(src, tgt model.NodeID, minDist int, maxDist DistanceBound) (bool, error) {
	reachable, _, err := dfsReachable(a, src, minDist, maxDist, false)
	if err != nil {
		return false, err
	}
	for _, n := range reachable {
		if n == tgt {
			return true, nil
		}
	}
	return false, nil
}

func (a *AdjacencyList) Distance(src, tgt model.NodeID) (int, bool, error) {
	return dfsDistance(a, src, tgt)
}

func (a *AdjacencyList) FindConnected(src model.NodeID, min int, max DistanceBound) ([]model.NodeID, error) {
	nodes, _, err := dfsReachable(a, src, min, max, false)
	return nodes, err
}

func (a *AdjacencyList) FindConnectedInverse(src model.NodeID, min int, max DistanceBound) ([]model.NodeID, error) {
	nodes, _, err := dfsReachable(a, src, min, max, true)
	return nodes, err
}

func (a *AdjacencyList) SerializationID() string { return "adjacencylist_v1" }

type adjacencySnapshot struct {
	Out map[model.NodeID][]model.NodeID `json:"out"`
	In  map[model.NodeID][]model.NodeID `json:"in"`
}

func (a *AdjacencyList) SaveTo(dir string) error {
	a.mu.RLock()
	snap := adjacencySnapshot{Out: a.out, In: a.in}
	a.mu.RUnlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "edges.json"), data, 0o644); err != nil {
		return err
	}
	return nil
}

func (a *AdjacencyList) LoadFrom(dir string) error {
	data, err := os.ReadFile(filepath.Join(dir, "edges.json"))
	if err != nil {
		return err
	}
	var snap adjacencySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.out = snap.Out
	a.in = snap.In
	if a.out == nil {
		a.out = map[model.NodeID][]model.NodeID{}
	}
	if a.in == nil {
		a.in = map[model.NodeID][]model.NodeID{}
	}
	return nil
}

func (a *AdjacencyList) Copy(other GraphStorage) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.out = map[model.NodeID][]model.NodeID{}
	a.in = map[model.NodeID][]model.NodeID{}
	a.annos = anno.NewMemStore[model.Edge]()

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
			e := model.Edge{Source: src, Target: tgt}
			a.out[src] = append(a.out[src], tgt)
			a.in[tgt] = append(a.in[tgt], src)
			annos, err := other.AnnoStorage().GetAnnotationsForItem(e)
			if err != nil {
				return err
			}
			for _, an := range annos {
				if err := a.annos.Insert(e, an); err != nil {
					return err
				}
			}
		}
	}
	a.hasStats = false
	return nil
}

func (a *AdjacencyList) InverseHasSameCost() bool { return true }

func (a *AdjacencyList) AsWriteable() (WriteableGraphStorage, bool) { return a, true }

func (a *AdjacencyList) AddEdge(e model.Edge) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, t := range a.out[e.Source] {
		if t == e.Target {
			return nil
		}
	}
	a.out[e.Source] = append(a.out[e.Source], e.Target)
	a.in[e.Target] = append(a.in[e.Target], e.Source)
	a.hasStats = false
	return nil
}

func (a *AdjacencyList) AddEdgeAnnotation(e model.Edge, an model.Annotation) error {
	return a.annos.Insert(e, an)
}

func (a *AdjacencyList) DeleteEdge(e model.Edge) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.out[e.Source] = removeNode(a.out[e.Source], e.Target)
	a.in[e.Target] = removeNode(a.in[e.Target], e.Source)
	a.hasStats = false
	return nil
}

func (a *AdjacencyList) DeleteEdgeAnnotation(e model.Edge, key model.AnnoKey) error {
	_, _, err := a.annos.RemoveAnnotationForItem(e, key)
	return err
}

func (a *AdjacencyList) DeleteNode(n model.NodeID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, tgt := range a.out[n] {
		a.in[tgt] = removeNode(a.in[tgt], n)
	}
	for _, src := range a.in[n] {
		a.out[src] = removeNode(a.out[src], n)
	}
	delete(a.out, n)
	delete(a.in, n)
	a.hasStats = false
	return nil
}

func (a *AdjacencyList) CalculateStatistics() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats = computeStatsFromAdjacency(a.out, a.in)
	a.hasStats = true
	return nil
}

func removeNode(list []model.NodeID, n model.NodeID) []model.NodeID {
	out := list[:0]
	for _, x := range list {
		if x != n {
			out = append(out, x)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
