package graph

import (
	"sort"

	"github.com/orneryd/graphdb/pkg/gs"
	"github.com/orneryd/graphdb/pkg/model"
)

var (
	coverageCType  = model.Coverage
	dominanceCType = model.Dominance
	orderingComp   = model.Component{CType: model.Ordering, Layer: model.NSAnnis, Name: ""}
	leftTokenComp  = model.Component{CType: model.LeftToken, Layer: model.NSAnnis, Name: ""}
	rightTokenComp = model.Component{CType: model.RightToken, Layer: model.NSAnnis, Name: ""}
)

// recomputeDerivedIndices recomputes LeftToken, RightToken and the
// synthetic inherited-coverage Coverage component for every node
// reachable (via inverse text-coverage edges) from any node in touched,
// per spec §4.3.
func (g *Graph) recomputeDerivedIndices(touched map[model.NodeID]struct{}) error {
	affected, err := g.expandViaInverseCoverage(touched)
	if err != nil {
		return err
	}

	if err := g.dropPriorDerivedEdges(affected, leftTokenComp); err != nil {
		return err
	}
	if err := g.dropPriorDerivedEdges(affected, rightTokenComp); err != nil {
		return err
	}
	if err := g.dropPriorDerivedEdges(affected, model.InheritedCoverageComponent); err != nil {
		return err
	}

	ordering, hasOrdering := g.GetComponent(orderingComp)

	leftW, err := g.getOrCreateWritable(leftTokenComp)
	if err != nil {
		return err
	}
	rightW, err := g.getOrCreateWritable(rightTokenComp)
	if err != nil {
		return err
	}
	coverageW, err := g.getOrCreateWritable(model.InheritedCoverageComponent)
	if err != nil {
		return err
	}

	memo := map[model.NodeID][]model.NodeID{}
	for n := range affected {
		covered, err := g.coveredTokens(n, memo)
		if err != nil {
			return err
		}
		for _, tok := range covered {
			if err := coverageW.AddEdge(model.Edge{Source: n, Target: tok}); err != nil {
				return err
			}
		}
		if len(covered) == 0 {
			continue
		}
		left, right := pickLeftRight(covered, ordering, hasOrdering)
		if err := leftW.AddEdge(model.Edge{Source: n, Target: left}); err != nil {
			return err
		}
		if err := rightW.AddEdge(model.Edge{Source: n, Target: right}); err != nil {
			return err
		}
	}
	return nil
}

// expandViaInverseCoverage walks every real Coverage component
// backwards from each touched node, collecting every ancestor whose
// derived coverage could have changed.
func (g *Graph) expandViaInverseCoverage(touched map[model.NodeID]struct{}) (map[model.NodeID]struct{}, error) {
	affected := map[model.NodeID]struct{}{}
	for n := range touched {
		affected[n] = struct{}{}
	}
	for _, c := range g.Components() {
		if c.CType != coverageCType || c == model.InheritedCoverageComponent {
			continue
		}
		storage, ok := g.GetComponent(c)
		if !ok {
			continue
		}
		for n := range touched {
			ancestors, err := storage.FindConnectedInverse(n, 0, gs.Unbounded())
			if err != nil {
				return nil, err
			}
			for _, a := range ancestors {
				affected[a] = struct{}{}
			}
		}
	}
	return affected, nil
}

func (g *Graph) dropPriorDerivedEdges(affected map[model.NodeID]struct{}, c model.Component) error {
	storage, ok := g.GetComponent(c)
	if !ok {
		return nil
	}
	w, err := g.getOrCreateWritable(c)
	if err != nil {
		return err
	}
	for n := range affected {
		targets, err := storage.GetOutgoingEdges(n)
		if err != nil {
			return err
		}
		for _, t := range targets {
			if err := w.DeleteEdge(model.Edge{Source: n, Target: t}); err != nil {
				return err
			}
		}
	}
	return nil
}

// coveredTokens computes a node's covered tokens per spec §4.3: the
// union over all Coverage components of outgoing distance-1 neighbours;
// if none and the node carries annis::tok, the node is itself a token;
// otherwise recurse through Dominance (name="") children.
func (g *Graph) coveredTokens(n model.NodeID, memo map[model.NodeID][]model.NodeID) ([]model.NodeID, error) {
	if cached, ok := memo[n]; ok {
		return cached, nil
	}
	var covered []model.NodeID
	for _, c := range g.Components() {
		if c.CType != coverageCType || c == model.InheritedCoverageComponent {
			continue
		}
		storage, ok := g.GetComponent(c)
		if !ok {
			continue
		}
		targets, err := storage.GetOutgoingEdges(n)
		if err != nil {
			return nil, err
		}
		covered = append(covered, targets...)
	}
	if len(covered) == 0 {
		if _, isTok, err := g.nodeAnnos.GetValueForItem(n, model.TokKey); err != nil {
			return nil, err
		} else if isTok {
			covered = []model.NodeID{n}
		} else {
			for _, c := range g.Components() {
				if c.CType != dominanceCType || c.Name != "" {
					continue
				}
				storage, ok := g.GetComponent(c)
				if !ok {
					continue
				}
				children, err := storage.GetOutgoingEdges(n)
				if err != nil {
					return nil, err
				}
				for _, child := range children {
					childCovered, err := g.coveredTokens(child, memo)
					if err != nil {
						return nil, err
					}
					covered = append(covered, childCovered...)
				}
			}
		}
	}
	covered = dedupeNodeIDs(covered)
	memo[n] = covered
	return covered, nil
}

// pickLeftRight returns the leftmost and rightmost token in covered
// according to the Ordering component, ties broken by natural NodeID
// order (spec §4.3).
func pickLeftRight(covered []model.NodeID, ordering gs.GraphStorage, hasOrdering bool) (left, right model.NodeID) {
	if !hasOrdering {
		sorted := append([]model.NodeID(nil), covered...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		return sorted[0], sorted[len(sorted)-1]
	}
	rank := map[model.NodeID]int{}
	for _, tok := range covered {
		r := 0
		for _, other := range covered {
			if other == tok {
				continue
			}
			ok, err := ordering.IsConnected(other, tok, 1, gs.Unbounded())
			if err == nil && ok {
				r++
			}
		}
		rank[tok] = r
	}
	sorted := append([]model.NodeID(nil), covered...)
	sort.Slice(sorted, func(i, j int) bool {
		if rank[sorted[i]] != rank[sorted[j]] {
			return rank[sorted[i]] < rank[sorted[j]]
		}
		return sorted[i] < sorted[j]
	})
	return sorted[0], sorted[len(sorted)-1]
}

func dedupeNodeIDs(ids []model.NodeID) []model.NodeID {
	seen := map[model.NodeID]struct{}{}
	out := make([]model.NodeID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
