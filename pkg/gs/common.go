package gs

import (
	"sort"

	"github.com/orneryd/graphdb/pkg/model"
)

// dfsReachable walks ec (forward edges, or ingoing edges when inverse is
// set) from src, collecting every distinct node whose first-visited
// depth falls in [min, max]. It is cycle-safe: a neighbour already on
// the current DFS stack sets cyclic and is not re-entered; a neighbour
// already fully explored (visited but not on stack) is simply skipped,
// per spec §4.2's DFS-reachability semantics.
func dfsReachable(ec EdgeContainer, src model.NodeID, min int, max DistanceBound, inverse bool) ([]model.NodeID, bool, error) {
	visited := map[model.NodeID]bool{}
	onStack := map[model.NodeID]bool{}
	var result []model.NodeID
	cyclic := false
	var walkErr error

	var dfs func(n model.NodeID, depth int)
	dfs = func(n model.NodeID, depth int) {
		if walkErr != nil {
			return
		}
		visited[n] = true
		onStack[n] = true
		defer func() { onStack[n] = false }()

		if depth >= min && max.Contains(depth) {
			result = append(result, n)
		}
		if !max.Contains(depth + 1) {
			return
		}
		var neighbors []model.NodeID
		var err error
		if inverse {
			neighbors, err = ec.GetIngoingEdges(n)
		} else {
			neighbors, err = ec.GetOutgoingEdges(n)
		}
		if err != nil {
			walkErr = err
			return
		}
		for _, nb := range neighbors {
			if onStack[nb] {
				cyclic = true
				continue
			}
			if visited[nb] {
				continue
			}
			dfs(nb, depth+1)
		}
	}
	dfs(src, 0)
	return result, cyclic, walkErr
}

// dfsDistance returns the length of the first path DFS finds from src
// to tgt, cycle-safe in the same way as dfsReachable.
func dfsDistance(ec EdgeContainer, src, tgt model.NodeID) (int, bool, error) {
	visited := map[model.NodeID]bool{}
	onStack := map[model.NodeID]bool{}
	found := -1
	var walkErr error

	var dfs func(n model.NodeID, depth int) bool
	dfs = func(n model.NodeID, depth int) bool {
		if walkErr != nil {
			return false
		}
		visited[n] = true
		onStack[n] = true
		defer func() { onStack[n] = false }()

		if n == tgt {
			found = depth
			return true
		}
		neighbors, err := ec.GetOutgoingEdges(n)
		if err != nil {
			walkErr = err
			return false
		}
		for _, nb := range neighbors {
			if onStack[nb] || visited[nb] {
				continue
			}
			if dfs(nb, depth+1) {
				return true
			}
		}
		return false
	}
	dfs(src, 0)
	if walkErr != nil {
		return 0, false, walkErr
	}
	if found < 0 {
		return 0, false, nil
	}
	return found, true, nil
}

// computeStatsFromAdjacency computes a GraphStatistic by DFS from every
// root (a node with no incoming edge), per spec §4.2. Implementations
// that hold a full adjacency map in memory (or can cheaply build one)
// share this helper rather than re-deriving the DFS/percentile logic.
func computeStatsFromAdjacency(out, in map[model.NodeID][]model.NodeID) model.GraphStatistic {
	nodes := map[model.NodeID]struct{}{}
	for n := range out {
		nodes[n] = struct{}{}
	}
	for n := range in {
		nodes[n] = struct{}{}
	}
	for _, targets := range out {
		for _, t := range targets {
			nodes[t] = struct{}{}
		}
	}

	var roots []model.NodeID
	for n := range nodes {
		if len(in[n]) == 0 {
			roots = append(roots, n)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })

	visited := map[model.NodeID]bool{}
	cyclic := false
	maxDepth := 0
	visitCount := 0

	var dfs func(n model.NodeID, depth int, onStack map[model.NodeID]bool)
	dfs = func(n model.NodeID, depth int, onStack map[model.NodeID]bool) {
		if cyclic {
			return
		}
		visited[n] = true
		onStack[n] = true
		visitCount++
		if depth > maxDepth {
			maxDepth = depth
		}
		for _, t := range out[n] {
			if onStack[t] {
				cyclic = true
				return
			}
			if visited[t] {
				continue
			}
			dfs(t, depth+1, onStack)
			if cyclic {
				return
			}
		}
		onStack[n] = false
	}
	for _, r := range roots {
		if cyclic {
			break
		}
		if !visited[r] {
			dfs(r, 0, map[model.NodeID]bool{})
		}
	}
	if len(roots) == 0 && len(nodes) > 0 {
		cyclic = true
	}

	stat := model.GraphStatistic{Nodes: uint64(len(nodes))}
	if cyclic {
		stat.Cyclic = true
		stat.RootedTree = false
		stat.MaxDepth = 0
		stat.DFSVisitRatio = 0
	} else {
		stat.RootedTree = len(roots) == 1
		stat.MaxDepth = uint64(maxDepth)
		if len(nodes) > 0 {
			stat.DFSVisitRatio = float64(visitCount) / float64(len(nodes))
		}
	}

	var fanouts, invFanouts []int
	var sum int
	for n := range nodes {
		fanouts = append(fanouts, len(out[n]))
		invFanouts = append(invFanouts, len(in[n]))
		sum += len(out[n])
	}
	if len(fanouts) > 0 {
		stat.AvgFanOut = float64(sum) / float64(len(fanouts))
		stat.FanOut99Percentile = uint64(percentile99(fanouts))
		stat.InverseFanOut99Percentile = uint64(percentile99(invFanouts))
		max := 0
		for _, f := range fanouts {
			if f > max {
				max = f
			}
		}
		stat.MaxFanOut = uint64(max)
	}
	return stat
}

// percentile99 sorts descending and takes index len/100, i.e. the value
// at the top 1% cutoff of a sorted fan-out vector, per spec §4.2.
func percentile99(values []int) int {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]int(nil), values...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	idx := len(sorted) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func sortedUnique(ids []model.NodeID) []model.NodeID {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := ids[:0]
	var prev model.NodeID
	havePrev := false
	for _, id := range ids {
		if havePrev && id == prev {
			continue
		}
		out = append(out, id)
		prev = id
		havePrev = true
	}
	return out
}
