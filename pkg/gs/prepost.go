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

// prepostEntry holds a node's pre/post DFS numbering and level within
// its tree, letting ancestor/descendant checks run in O(1) instead of
// a DFS, the classic rooted-tree optimization.
type prepostEntry struct {
	Pre, Post, Level int
}

// PrePostOrderStorage is a read-optimized GraphStorage for rooted trees
// (spec's "not cyclic, rooted_tree true" case), grounded on
// pkg/cypher/traversal.go's DFS traversal style: it builds pre/post/level
// numbers once from an AdjacencyList-shaped source and answers
// reachability from those numbers rather than re-walking edges.
type PrePostOrderStorage struct {
	mu       sync.RWMutex
	children map[model.NodeID][]model.NodeID
	parent   map[model.NodeID]model.NodeID
	hasParent map[model.NodeID]bool
	order    map[model.NodeID]prepostEntry
	roots    []model.NodeID
	annos    *anno.MemStore[model.Edge]
	stats    model.GraphStatistic
	hasStats bool
}

func NewPrePostOrderStorage() *PrePostOrderStorage {
	return &PrePostOrderStorage{
		children:  map[model.NodeID][]model.NodeID{},
		parent:    map[model.NodeID]model.NodeID{},
		hasParent: map[model.NodeID]bool{},
		order:     map[model.NodeID]prepostEntry{},
		annos:     anno.NewMemStore[model.Edge](),
	}
}

func (p *PrePostOrderStorage) GetOutgoingEdges(src model.NodeID) ([]model.NodeID, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]model.NodeID(nil), p.children[src]...), nil
}

func (p *PrePostOrderStorage) GetIngoingEdges(tgt model.NodeID) ([]model.NodeID, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if par, ok := p.hasParent[tgt]; ok && par {
		return []model.NodeID{p.parent[tgt]}, nil
	}
	return nil, nil
}

func (p *PrePostOrderStorage) SourceNodes() ([]model.NodeID, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]model.NodeID, 0, len(p.children))
	for n, c := range p.children {
		if len(c) > 0 {
			out = append(out, n)
		}
	}
	return sortedUnique(out), nil
}

func (p *PrePostOrderStorage) GetStatistics() (model.GraphStatistic, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats, p.hasStats
}

func (p *PrePostOrderStorage) AnnoStorage() anno.Store[model.Edge] { return p.annos }

// IsConnected for a rooted tree reduces to an ancestor check via
// pre/post numbers: tgt is a descendant of src iff src.pre <= tgt.pre
// and tgt.post <= src.post.
func (p *PrePostOrderStorage) IsConnected(src, tgt model.NodeID, minDist int, maxDist DistanceBound) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	so, sok := p.order[src]
	to, tok := p.order[tgt]
	if !sok || !tok {
		return false, nil
	}
	if src != tgt && !(so.Pre <= to.Pre && to.Post <= so.Post) {
		return false, nil
	}
	depth := to.Level - so.Level
	if depth < minDist {
		return false, nil
	}
	return maxDist.Contains(depth), nil
}

func (p *PrePostOrderStorage) Distance(src, tgt model.NodeID) (int, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	so, sok := p.order[src]
	to, tok := p.order[tgt]
	if !sok || !tok || !(so.Pre <= to.Pre && to.Post <= so.Post) {
		return 0, false, nil
	}
	return to.Level - so.Level, true, nil
}

func (p *PrePostOrderStorage) FindConnected(src model.NodeID, min int, max DistanceBound) ([]model.NodeID, error) {
	nodes, _, err := dfsReachable(p, src, min, max, false)
	return nodes, err
}

func (p *PrePostOrderStorage) FindConnectedInverse(src model.NodeID, min int, max DistanceBound) ([]model.NodeID, error) {
	nodes, _, err := dfsReachable(p, src, min, max, true)
	return nodes, err
}

func (p *PrePostOrderStorage) SerializationID() string { return "prepostorder_v1" }

type prepostSnapshot struct {
	Children map[model.NodeID][]model.NodeID `json:"children"`
	Parent   map[model.NodeID]model.NodeID   `json:"parent"`
	Roots    []model.NodeID                  `json:"roots"`
}

func (p *PrePostOrderStorage) SaveTo(dir string) error {
	p.mu.RLock()
	snap := prepostSnapshot{Children: p.children, Parent: p.parent, Roots: p.roots}
	p.mu.RUnlock()
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "prepost.json"), data, 0o644)
}

func (p *PrePostOrderStorage) LoadFrom(dir string) error {
	data, err := os.ReadFile(filepath.Join(dir, "prepost.json"))
	if err != nil {
		return err
	}
	var snap prepostSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.children = snap.Children
	p.roots = snap.Roots
	p.parent = map[model.NodeID]model.NodeID{}
	p.hasParent = map[model.NodeID]bool{}
	for c, par := range snap.Parent {
		p.parent[c] = par
		p.hasParent[c] = true
	}
	p.rebuildOrderLocked()
	return nil
}

// Copy rebuilds a PrePostOrderStorage from any GraphStorage, deriving
// roots as nodes with no incoming edge. Only valid when other is in
// fact a rooted tree; the registry only selects this variant when
// GraphStatistic confirms that shape.
func (p *PrePostOrderStorage) Copy(other GraphStorage) error {
	sources, err := other.SourceNodes()
	if err != nil {
		return err
	}
	children := map[model.NodeID][]model.NodeID{}
	parent := map[model.NodeID]model.NodeID{}
	hasParent := map[model.NodeID]bool{}
	allNodes := map[model.NodeID]struct{}{}
	for _, src := range sources {
		targets, err := other.GetOutgoingEdges(src)
		if err != nil {
			return err
		}
		allNodes[src] = struct{}{}
		for _, tgt := range targets {
			allNodes[tgt] = struct{}{}
			children[src] = append(children[src], tgt)
			parent[tgt] = src
			hasParent[tgt] = true
		}
	}
	var roots []model.NodeID
	for n := range allNodes {
		if !hasParent[n] {
			roots = append(roots, n)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })

	annos := anno.NewMemStore[model.Edge]()
	for c, par := range parent {
		e := model.Edge{Source: par, Target: c}
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

	p.mu.Lock()
	defer p.mu.Unlock()
	p.children = children
	p.parent = parent
	p.hasParent = hasParent
	p.roots = roots
	p.annos = annos
	p.rebuildOrderLocked()
	p.hasStats = false
	return nil
}

func (p *PrePostOrderStorage) rebuildOrderLocked() {
	p.order = map[model.NodeID]prepostEntry{}
	counter := 0
	var visit func(n model.NodeID, level int)
	visit = func(n model.NodeID, level int) {
		pre := counter
		counter++
		for _, c := range p.children[n] {
			visit(c, level+1)
		}
		post := counter
		counter++
		p.order[n] = prepostEntry{Pre: pre, Post: post, Level: level}
	}
	for _, r := range p.roots {
		visit(r, 0)
	}
}

func (p *PrePostOrderStorage) InverseHasSameCost() bool { return false }

func (p *PrePostOrderStorage) AsWriteable() (WriteableGraphStorage, bool) { return nil, false }

func (p *PrePostOrderStorage) CalculateStatistics() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	in := map[model.NodeID][]model.NodeID{}
	for c, par := range p.parent {
		in[c] = append(in[c], par)
	}
	p.stats = computeStatsFromAdjacency(p.children, in)
	p.hasStats = true
	return nil
}
