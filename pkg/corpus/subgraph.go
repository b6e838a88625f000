package corpus

import (
	"github.com/orneryd/graphdb/pkg/anno"
	"github.com/orneryd/graphdb/pkg/errs"
	"github.com/orneryd/graphdb/pkg/graph"
	"github.com/orneryd/graphdb/pkg/gs"
	"github.com/orneryd/graphdb/pkg/model"
	"github.com/orneryd/graphdb/pkg/query"
	"github.com/orneryd/graphdb/pkg/update"
)

// Subgraph builds a fresh Graph containing the named nodes plus
// leftCtx/rightCtx tokens of document context on either side along the
// Ordering component. Spans covering those tokens are not added.
func (s *Store) Subgraph(name string, nodeNames []string, leftCtx, rightCtx int) (*graph.Graph, error) {
	s.mu.Lock()
	g, err := s.getOrLoadLocked(name)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	seeds := make([]model.NodeID, 0, len(nodeNames))
	for _, n := range nodeNames {
		matches, err := g.NodeAnnos().ExactAnnoSearch(nil, model.KeyNodeName, anno.SomeSearch(n))
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			return nil, errs.New(errs.NoSuchCorpus, "no such node: %q", n)
		}
		seeds = append(seeds, matches[0].Item)
	}

	ordering := model.Component{CType: model.Ordering, Layer: model.NSAnnis, Name: ""}
	orderStorage, hasOrdering := g.GetComponent(ordering)

	include := map[model.NodeID]struct{}{}
	for _, seed := range seeds {
		include[seed] = struct{}{}
		if !hasOrdering {
			continue
		}
		left, err := orderStorage.FindConnectedInverse(seed, 1, gs.Included(leftCtx))
		if err != nil {
			return nil, err
		}
		for _, n := range left {
			include[n] = struct{}{}
		}
		right, err := orderStorage.FindConnected(seed, 1, gs.Included(rightCtx))
		if err != nil {
			return nil, err
		}
		for _, n := range right {
			include[n] = struct{}{}
		}
	}

	return buildProjectedGraph(g, include)
}

// SubgraphForQuery runs d over name and unions the per-match subgraphs
// (no context expansion), optionally restricted to a component-type
// filter when copying edges.
func (s *Store) SubgraphForQuery(name string, d *query.Disjunction, ctypeFilter []model.CType) (*graph.Graph, error) {
	s.mu.Lock()
	g, err := s.getOrLoadLocked(name)
	useParallel := s.cfg.Query.UseParallelJoins
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	groups, err := s.runDisjunction(name, g, d, useParallel)
	if err != nil {
		return nil, err
	}

	include := map[model.NodeID]struct{}{}
	for _, grp := range groups {
		for _, m := range grp {
			include[m.Node] = struct{}{}
		}
	}
	return buildProjectedGraphFiltered(g, include, ctypeFilter)
}

// CorpusGraph projects only the PartOf component, the document/
// sub-corpus containment tree.
func (s *Store) CorpusGraph(name string) (*graph.Graph, error) {
	s.mu.Lock()
	g, err := s.getOrLoadLocked(name)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	partOf := model.Component{CType: model.PartOf, Layer: model.NSAnnis, Name: ""}
	storage, ok := g.GetComponent(partOf)
	if !ok {
		return graph.NewGraph(), nil
	}
	include := map[model.NodeID]struct{}{}
	sources, err := storage.SourceNodes()
	if err != nil {
		return nil, err
	}
	for _, src := range sources {
		include[src] = struct{}{}
		targets, err := storage.GetOutgoingEdges(src)
		if err != nil {
			return nil, err
		}
		for _, t := range targets {
			include[t] = struct{}{}
		}
	}
	return buildProjectedGraphFiltered(g, include, []model.CType{partOf.CType})
}

// SubcorpusGraph projects the PartOf subtree rooted at corpusNames.
func (s *Store) SubcorpusGraph(name string, corpusNames []string) (*graph.Graph, error) {
	s.mu.Lock()
	g, err := s.getOrLoadLocked(name)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	partOf := model.Component{CType: model.PartOf, Layer: model.NSAnnis, Name: ""}
	storage, ok := g.GetComponent(partOf)
	if !ok {
		return graph.NewGraph(), nil
	}

	include := map[model.NodeID]struct{}{}
	for _, n := range corpusNames {
		matches, err := g.NodeAnnos().ExactAnnoSearch(nil, model.KeyNodeName, anno.SomeSearch(n))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			include[m.Item] = struct{}{}
			descendants, err := storage.FindConnectedInverse(m.Item, 0, gs.Unbounded())
			if err != nil {
				return nil, err
			}
			for _, d := range descendants {
				include[d] = struct{}{}
			}
		}
	}
	return buildProjectedGraphFiltered(g, include, []model.CType{partOf.CType})
}

// buildProjectedGraph copies the node annotations and every component's
// edges restricted to `include` into a fresh Graph.
func buildProjectedGraph(g *graph.Graph, include map[model.NodeID]struct{}) (*graph.Graph, error) {
	return buildProjectedGraphFiltered(g, include, nil)
}

func buildProjectedGraphFiltered(g *graph.Graph, include map[model.NodeID]struct{}, ctypeFilter []model.CType) (*graph.Graph, error) {
	out := graph.NewGraph()
	allowed := map[model.CType]struct{}{}
	for _, c := range ctypeFilter {
		allowed[c] = struct{}{}
	}

	names := map[model.NodeID]string{}
	for n := range include {
		v, ok, err := g.NodeAnnos().GetValueForItem(n, model.NodeNameKey)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		names[n] = v
		nodeType, _, err := g.NodeAnnos().GetValueForItem(n, model.NodeTypeKey)
		if err != nil {
			return nil, err
		}
		if err := out.ApplyUpdate(update.Batch{Events: []update.Event{update.NewAddNode(v, nodeType)}}, nil); err != nil {
			return nil, err
		}
		keys, err := g.NodeAnnos().GetAllKeysForItem(n, nil, nil)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			if k == model.NodeNameKey || k == model.NodeTypeKey {
				continue
			}
			val, ok, err := g.NodeAnnos().GetValueForItem(n, k)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if err := out.ApplyUpdate(update.Batch{Events: []update.Event{update.NewAddNodeLabel(v, k.NS, k.Name, val)}}, nil); err != nil {
				return nil, err
			}
		}
	}

	for _, c := range g.Components() {
		if len(allowed) > 0 {
			if _, ok := allowed[c.CType]; !ok {
				continue
			}
		}
		storage, ok := g.GetComponent(c)
		if !ok {
			continue
		}
		sources, err := storage.SourceNodes()
		if err != nil {
			return nil, err
		}
		for _, src := range sources {
			srcName, ok := names[src]
			if !ok {
				continue
			}
			targets, err := storage.GetOutgoingEdges(src)
			if err != nil {
				return nil, err
			}
			for _, tgt := range targets {
				tgtName, ok := names[tgt]
				if !ok {
					continue
				}
				ev := update.NewAddEdge(srcName, tgtName, c.Layer, string(c.CType), c.Name)
				if err := out.ApplyUpdate(update.Batch{Events: []update.Event{ev}}, nil); err != nil {
					return nil, err
				}
			}
		}
	}
	return out, nil
}

// FrequencyDefinition names one annotation key whose values are
// cross-tabulated by Frequency.
type FrequencyDefinition struct {
	Variable string
	NS, Name string
}

// FrequencyTable maps a tuple of annotation values (one per
// FrequencyDefinition, in order) to the number of MatchGroups sharing it.
type FrequencyTable map[string]int

// Frequency runs d over name and cross-tabulates the annotation values
// named by defs across every matching output variable.
func (s *Store) Frequency(name string, d *query.Disjunction, defs []FrequencyDefinition) (FrequencyTable, error) {
	if len(defs) == 0 {
		return nil, errs.New(errs.InvalidFrequencyDefinition, "frequency requires at least one definition")
	}
	s.mu.Lock()
	g, err := s.getOrLoadLocked(name)
	useParallel := s.cfg.Query.UseParallelJoins
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	groups, err := s.runDisjunction(name, g, d, useParallel)
	if err != nil {
		return nil, err
	}

	table := FrequencyTable{}
	for _, grp := range groups {
		key := ""
		for i, def := range defs {
			if i >= len(grp) {
				break
			}
			v, _, err := g.NodeAnnos().GetValueForItem(grp[i].Node, model.AnnoKey{NS: def.NS, Name: def.Name})
			if err != nil {
				return nil, err
			}
			if i > 0 {
				key += "\x1f"
			}
			key += v
		}
		table[key]++
	}
	return table, nil
}
