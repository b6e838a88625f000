package corpus

import (
	"github.com/orneryd/graphdb/pkg/errs"
	"github.com/orneryd/graphdb/pkg/gs"
	"github.com/orneryd/graphdb/pkg/model"
	"github.com/orneryd/graphdb/pkg/query"
)

// nodeKeysFor derives the per-output-variable AnnoKey Execute needs
// from a Conjunction: every variable gets the node-name key, whatever
// key its NodeSearchSpec searches on.
func nodeKeysFor(c *query.Conjunction) []model.AnnoKey {
	keys := make([]model.AnnoKey, len(c.Nodes))
	for i := range c.Nodes {
		keys[i] = model.NodeNameKey
	}
	return keys
}

// runDisjunction plans (via the corpus's ristretto-backed plan cache)
// and executes every Conjunction of d against g in turn, concatenating
// match groups (logical OR across alternatives). Every Conjunction's
// execution shares the same deadline, derived from the store's
// configured Query.DefaultTimeout (count/count_extra/find/frequency all
// funnel through here, so all four inherit the same TimeoutCheck).
func (s *Store) runDisjunction(corpusName string, g query.GraphView, d *query.Disjunction, useParallelJoins bool) ([]model.MatchGroup, error) {
	deadline := query.NewDeadline(s.cfg.Query.DefaultTimeout)
	var all []model.MatchGroup
	for _, c := range d.Conjunctions {
		plan, err := s.cachedPlan(corpusName, g, c)
		if err != nil {
			return nil, err
		}
		groups, err := query.Execute(g, plan, nodeKeysFor(c), useParallelJoins, deadline)
		if err != nil {
			return nil, err
		}
		all = append(all, groups...)
	}
	return all, nil
}

// ValidateQuery checks every Conjunction of d is well-formed (every
// variable transitively bound) without executing anything.
func (s *Store) ValidateQuery(name string, d *query.Disjunction) error {
	s.mu.Lock()
	g, err := s.getOrLoadLocked(name)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	for _, c := range d.Conjunctions {
		if err := query.Validate(c); err != nil {
			return err
		}
	}
	_ = g
	return nil
}

// PlanDescription is plan()'s result: one ExecutionStep summary per
// Conjunction plus the components it touches, for diagnostics.
type PlanDescription struct {
	Conjunctions [][]query.ExecutionStep
	Components   [][]model.Component
}

// Plan builds (but does not execute) the query plan for d against name.
func (s *Store) Plan(name string, d *query.Disjunction) (*PlanDescription, error) {
	s.mu.Lock()
	g, err := s.getOrLoadLocked(name)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	desc := &PlanDescription{}
	for _, c := range d.Conjunctions {
		plan, err := s.cachedPlan(name, g, c)
		if err != nil {
			return nil, errs.Wrap(errs.PlanDescriptionMissing, err, "plan conjunction")
		}
		desc.Conjunctions = append(desc.Conjunctions, plan.Steps)
		desc.Components = append(desc.Components, query.NecessaryComponents(g, c))
	}
	return desc, nil
}

// Count returns the number of MatchGroups d yields over name.
func (s *Store) Count(name string, d *query.Disjunction) (int, error) {
	s.mu.Lock()
	g, err := s.getOrLoadLocked(name)
	useParallel := s.cfg.Query.UseParallelJoins
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	groups, err := s.runDisjunction(name, g, d, useParallel)
	if err != nil {
		return 0, err
	}
	return len(groups), nil
}

// CountExtra additionally reports the number of distinct nodes reached
// from the matches through the PartOf component, alongside the raw
// match count. No token span is reported.
type CountExtra struct {
	MatchCount    int
	DocumentCount int
}

func (s *Store) CountExtra(name string, d *query.Disjunction) (*CountExtra, error) {
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

	partOf := model.Component{CType: model.PartOf, Layer: model.NSAnnis, Name: ""}
	storage, hasPartOf := g.GetComponent(partOf)
	docs := map[model.NodeID]struct{}{}
	if hasPartOf {
		for _, grp := range groups {
			for _, m := range grp {
				ancestors, err := storage.FindConnected(m.Node, 0, gs.Unbounded())
				if err != nil {
					return nil, err
				}
				for _, a := range ancestors {
					docs[a] = struct{}{}
				}
			}
		}
	}
	return &CountExtra{MatchCount: len(groups), DocumentCount: len(docs)}, nil
}

// Find returns d's matches over name, sorted and paginated.
func (s *Store) Find(name string, d *query.Disjunction, offset, limit int, order query.SortOrder, seed int64) ([]model.MatchGroup, error) {
	s.mu.Lock()
	g, err := s.getOrLoadLocked(name)
	useParallel := s.cfg.Query.UseParallelJoins && order != query.SortNotSorted
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	groups, err := s.runDisjunction(name, g, d, useParallel)
	if err != nil {
		return nil, err
	}
	sorted, err := query.SortResults(g, groups, order, seed)
	if err != nil {
		return nil, err
	}
	return query.Paginate(sorted, offset, limit), nil
}

// NodeDescription is node_descriptions()'s per-variable summary.
type NodeDescription struct {
	Variable string
	Spec     query.NodeSearchSpec
}

// NodeDescriptions reports every Conjunction's variable/spec pairs
// without resolving or planning them.
func (s *Store) NodeDescriptions(d *query.Disjunction) []NodeDescription {
	var out []NodeDescription
	for _, c := range d.Conjunctions {
		for _, n := range c.Nodes {
			out = append(out, NodeDescription{Variable: n.Variable, Spec: n.Spec})
		}
	}
	return out
}

// ListComponents lists every component of name, optionally filtered by
// ctype and/or exact component name.
func (s *Store) ListComponents(name string, ctype *model.CType, compName *string) ([]model.Component, error) {
	s.mu.Lock()
	g, err := s.getOrLoadLocked(name)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	var out []model.Component
	for _, c := range g.Components() {
		if ctype != nil && c.CType != *ctype {
			continue
		}
		if compName != nil && c.Name != *compName {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// ListNodeAnnotations lists every distinct AnnoKey present on any node.
func (s *Store) ListNodeAnnotations(name string) ([]model.AnnoKey, error) {
	s.mu.Lock()
	g, err := s.getOrLoadLocked(name)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return g.NodeAnnos().AnnotationKeys()
}

// ListEdgeAnnotations lists every distinct AnnoKey present on any edge
// of any component.
func (s *Store) ListEdgeAnnotations(name string) ([]model.AnnoKey, error) {
	s.mu.Lock()
	g, err := s.getOrLoadLocked(name)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	seen := map[model.AnnoKey]struct{}{}
	var out []model.AnnoKey
	for _, c := range g.Components() {
		storage, ok := g.GetComponent(c)
		if !ok {
			continue
		}
		keys, err := storage.AnnoStorage().AnnotationKeys()
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			if _, dup := seen[k]; !dup {
				seen[k] = struct{}{}
				out = append(out, k)
			}
		}
	}
	return out, nil
}
