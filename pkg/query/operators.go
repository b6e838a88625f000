package query

import (
	"github.com/orneryd/graphdb/pkg/gs"
	"github.com/orneryd/graphdb/pkg/model"
)

// EstimationKind distinguishes the two cost-estimate shapes a
// BinaryOperator can report to the planner: a selectivity fraction of
// the LHS cardinality, or a hard cap on reachable nodes (e.g. a single
// parent per node under Dominance).
type EstimationKind int

const (
	Selectivity EstimationKind = iota
	MinReachable
)

// Estimation is the planner's cost-model input for one operator.
type Estimation struct {
	Kind         EstimationKind
	Selectivity  float64
	MinReachable int
}

// BinaryOperatorSpec is the parsed, not-yet-bound shape of a binary
// operator in a Conjunction; CreateOperator resolves it against a
// concrete GraphView once the components it needs are known to exist.
type BinaryOperatorSpec interface {
	// NecessaryComponents lists the components this operator reads,
	// used by the planner's part-of-component rewrite and by plan()
	// to report which components a query touches.
	NecessaryComponents(g GraphView) []model.Component
	CreateOperator(g GraphView) (BinaryOperator, bool)
}

// BinaryOperator is a bound, executable edge predicate between two
// Conjunction variables.
type BinaryOperator interface {
	// RetrieveMatches returns every RHS candidate reachable from lhs,
	// the index-join probe path.
	RetrieveMatches(g GraphView, lhs model.NodeID) ([]model.NodeID, error)
	// FilterMatch reports whether the predicate holds for a specific
	// (lhs, rhs) pair, the nested-loop-join path.
	FilterMatch(g GraphView, lhs, rhs model.NodeID) (bool, error)
	IsReflexive() bool
	Estimation() Estimation
	// EdgeAnnoSelectivity scales the estimate down when the operator
	// also checks an edge annotation; 1.0 when there is none.
	EdgeAnnoSelectivity() float64
	GetInverseOperator() (BinaryOperator, bool)
	// InverseHasSameCost reports whether swapping operands and using
	// GetInverseOperator costs the same as the original direction,
	// the planner's inverse_has_same_cost gate on operand-order
	// inversion (a prepost-order dominance storage, for example,
	// traverses parent->child far cheaper than child->parent).
	InverseHasSameCost(g GraphView) bool
}

// EdgeAnnoSearchSpec constrains the annotation on the edge a
// BinaryOperator crosses, e.g. dominance(edge-label="subj").
type EdgeAnnoSearchSpec interface {
	Matches(g GraphView, e model.Edge) (bool, error)
	Selectivity(g GraphView) float64
}

type ExactEdgeAnno struct {
	NS, Name string
	Value    *string
}

func (s ExactEdgeAnno) Matches(g GraphView, e model.Edge) (bool, error) {
	for _, c := range g.Components() {
		storage, ok := g.GetComponent(c)
		if !ok {
			continue
		}
		v, ok, err := storage.AnnoStorage().GetValueForItem(e, model.AnnoKey{NS: s.NS, Name: s.Name})
		if err != nil {
			return false, err
		}
		if ok && (s.Value == nil || v == *s.Value) {
			return true, nil
		}
	}
	return false, nil
}

func (s ExactEdgeAnno) Selectivity(g GraphView) float64 { return 0.5 }

type NotExactEdgeAnno struct{ ExactEdgeAnno }

func (s NotExactEdgeAnno) Matches(g GraphView, e model.Edge) (bool, error) {
	ok, err := s.ExactEdgeAnno.Matches(g, e)
	return !ok, err
}

// baseEdgeOp is the shared BinaryOperator built over one or more real
// GraphStorage components, a hop-distance range (mirrors
// TraversalContext's minHops/maxHops in the teacher's cypher package)
// and an optional edge-annotation filter.
type baseEdgeOp struct {
	components []model.Component
	minDist    int
	maxDist    gs.DistanceBound
	edgeAnno   EdgeAnnoSearchSpec
	reflexive  bool
	estimation Estimation
	inverse    bool
}

func (op *baseEdgeOp) storages(g GraphView) []gs.GraphStorage {
	var out []gs.GraphStorage
	for _, c := range op.components {
		if s, ok := g.GetComponent(c); ok {
			out = append(out, s)
		}
	}
	return out
}

func (op *baseEdgeOp) edgeMatches(g GraphView, e model.Edge) (bool, error) {
	if op.edgeAnno == nil {
		return true, nil
	}
	return op.edgeAnno.Matches(g, e)
}

func (op *baseEdgeOp) RetrieveMatches(g GraphView, lhs model.NodeID) ([]model.NodeID, error) {
	seen := map[model.NodeID]struct{}{}
	var out []model.NodeID
	for _, storage := range op.storages(g) {
		var candidates []model.NodeID
		var err error
		if op.inverse {
			candidates, err = storage.FindConnectedInverse(lhs, op.minDist, op.maxDist)
		} else {
			candidates, err = storage.FindConnected(lhs, op.minDist, op.maxDist)
		}
		if err != nil {
			return nil, err
		}
		for _, c := range candidates {
			if _, dup := seen[c]; dup {
				continue
			}
			e := model.Edge{Source: lhs, Target: c}
			if op.inverse {
				e = model.Edge{Source: c, Target: lhs}
			}
			ok, err := op.edgeMatches(g, e)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out, nil
}

func (op *baseEdgeOp) FilterMatch(g GraphView, lhs, rhs model.NodeID) (bool, error) {
	for _, storage := range op.storages(g) {
		src, tgt := lhs, rhs
		if op.inverse {
			src, tgt = rhs, lhs
		}
		ok, err := storage.IsConnected(src, tgt, op.minDist, op.maxDist)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		e := model.Edge{Source: src, Target: tgt}
		return op.edgeMatches(g, e)
	}
	return false, nil
}

func (op *baseEdgeOp) IsReflexive() bool            { return op.reflexive }
func (op *baseEdgeOp) Estimation() Estimation        { return op.estimation }
func (op *baseEdgeOp) EdgeAnnoSelectivity() float64 {
	if op.edgeAnno == nil {
		return 1.0
	}
	return op.edgeAnno.Selectivity(nil)
}

func (op *baseEdgeOp) GetInverseOperator() (BinaryOperator, bool) {
	inv := *op
	inv.inverse = !op.inverse
	return &inv, true
}

func (op *baseEdgeOp) InverseHasSameCost(g GraphView) bool {
	for _, storage := range op.storages(g) {
		if !storage.InverseHasSameCost() {
			return false
		}
	}
	return true
}

// PrecedenceSpec orders two tokens by distance along the document's
// Ordering component (spec's "precedence" operator).
type PrecedenceSpec struct {
	Layer            string
	MinDist, MaxDist int
	Unbound          bool
}

func (s PrecedenceSpec) orderingComponent() model.Component {
	return model.Component{CType: model.Ordering, Layer: s.Layer, Name: ""}
}

func (s PrecedenceSpec) NecessaryComponents(g GraphView) []model.Component {
	return []model.Component{s.orderingComponent()}
}

func (s PrecedenceSpec) CreateOperator(g GraphView) (BinaryOperator, bool) {
	c := s.orderingComponent()
	if _, ok := g.GetComponent(c); !ok {
		return nil, false
	}
	bound := gs.Included(s.MaxDist)
	if s.Unbound {
		bound = gs.Unbounded()
	}
	return &baseEdgeOp{
		components: []model.Component{c},
		minDist:    max(s.MinDist, 1),
		maxDist:    bound,
		estimation: Estimation{Kind: Selectivity, Selectivity: 0.1},
	}, true
}

// DominanceSpec is the "parent dominates child" structural operator,
// optionally restricted to a named sub-layer edge type.
type DominanceSpec struct {
	Layer, Name      string
	MinDist, MaxDist int
	Unbound          bool
	EdgeAnno         EdgeAnnoSearchSpec
}

func (s DominanceSpec) component() model.Component {
	return model.Component{CType: model.Dominance, Layer: s.Layer, Name: s.Name}
}

func (s DominanceSpec) NecessaryComponents(g GraphView) []model.Component {
	return []model.Component{s.component()}
}

func (s DominanceSpec) CreateOperator(g GraphView) (BinaryOperator, bool) {
	c := s.component()
	if _, ok := g.GetComponent(c); !ok {
		return nil, false
	}
	bound := gs.Included(s.MaxDist)
	if s.Unbound {
		bound = gs.Unbounded()
	}
	min := s.MinDist
	if min == 0 {
		min = 1
	}
	est := Estimation{Kind: MinReachable, MinReachable: 1}
	if s.Unbound || s.MaxDist > 1 {
		est = Estimation{Kind: Selectivity, Selectivity: 0.2}
	}
	return &baseEdgeOp{
		components: []model.Component{c},
		minDist:    min,
		maxDist:    bound,
		edgeAnno:   s.EdgeAnno,
		estimation: est,
	}, true
}

// PointingSpec is the non-structural, user-defined pointing-relation
// operator (spec's "->" operator family).
type PointingSpec struct {
	Layer, Name      string
	MinDist, MaxDist int
	Unbound          bool
	EdgeAnno         EdgeAnnoSearchSpec
}

func (s PointingSpec) component() model.Component {
	return model.Component{CType: model.Pointing, Layer: s.Layer, Name: s.Name}
}

func (s PointingSpec) NecessaryComponents(g GraphView) []model.Component {
	return []model.Component{s.component()}
}

func (s PointingSpec) CreateOperator(g GraphView) (BinaryOperator, bool) {
	c := s.component()
	if _, ok := g.GetComponent(c); !ok {
		return nil, false
	}
	bound := gs.Included(s.MaxDist)
	if s.Unbound {
		bound = gs.Unbounded()
	}
	min := s.MinDist
	if min == 0 {
		min = 1
	}
	return &baseEdgeOp{
		components: []model.Component{c},
		minDist:    min,
		maxDist:    bound,
		edgeAnno:   s.EdgeAnno,
		estimation: Estimation{Kind: Selectivity, Selectivity: 0.2},
	}, true
}

// CoverageSpec is the "lhs covers rhs token" operator, built over the
// real Coverage component plus the synthetic inherited-coverage one so
// spans over spans resolve transparently.
type CoverageSpec struct {
	Layer string
}

func (s CoverageSpec) NecessaryComponents(g GraphView) []model.Component {
	return []model.Component{
		{CType: model.Coverage, Layer: s.Layer, Name: ""},
		model.InheritedCoverageComponent,
	}
}

func (s CoverageSpec) CreateOperator(g GraphView) (BinaryOperator, bool) {
	var comps []model.Component
	for _, c := range s.NecessaryComponents(g) {
		if _, ok := g.GetComponent(c); ok {
			comps = append(comps, c)
		}
	}
	if len(comps) == 0 {
		return nil, false
	}
	return &baseEdgeOp{
		components: comps,
		minDist:    1,
		maxDist:    gs.Unbounded(),
		estimation: Estimation{Kind: Selectivity, Selectivity: 0.3},
	}, true
}

// PartOfSubCorpusSpec traverses the PartOf component connecting
// documents/sub-corpora to their containing corpus.
type PartOfSubCorpusSpec struct {
	MinDist, MaxDist int
	Unbound          bool
}

func (s PartOfSubCorpusSpec) component() model.Component {
	return model.Component{CType: model.PartOf, Layer: model.NSAnnis, Name: ""}
}

func (s PartOfSubCorpusSpec) NecessaryComponents(g GraphView) []model.Component {
	return []model.Component{s.component()}
}

func (s PartOfSubCorpusSpec) CreateOperator(g GraphView) (BinaryOperator, bool) {
	c := s.component()
	if _, ok := g.GetComponent(c); !ok {
		return nil, false
	}
	bound := gs.Included(s.MaxDist)
	if s.Unbound {
		bound = gs.Unbounded()
	}
	min := s.MinDist
	if min == 0 {
		min = 1
	}
	return &baseEdgeOp{
		components: []model.Component{c},
		minDist:    min,
		maxDist:    bound,
		estimation: Estimation{Kind: Selectivity, Selectivity: 0.1},
	}, true
}

// IdenticalNodeSpec is the trivial "same node" operator (spec's "_ident_").
type IdenticalNodeSpec struct{}

func (IdenticalNodeSpec) NecessaryComponents(g GraphView) []model.Component { return nil }

func (IdenticalNodeSpec) CreateOperator(g GraphView) (BinaryOperator, bool) {
	return identicalNodeOp{}, true
}

type identicalNodeOp struct{}

func (identicalNodeOp) RetrieveMatches(g GraphView, lhs model.NodeID) ([]model.NodeID, error) {
	return []model.NodeID{lhs}, nil
}
func (identicalNodeOp) FilterMatch(g GraphView, lhs, rhs model.NodeID) (bool, error) {
	return lhs == rhs, nil
}
func (identicalNodeOp) IsReflexive() bool     { return true }
func (identicalNodeOp) Estimation() Estimation { return Estimation{Kind: MinReachable, MinReachable: 1} }
func (identicalNodeOp) EdgeAnnoSelectivity() float64 { return 1.0 }
func (identicalNodeOp) GetInverseOperator() (BinaryOperator, bool) { return identicalNodeOp{}, true }
func (identicalNodeOp) InverseHasSameCost(g GraphView) bool        { return true }

// tokenSpanOp is the shared base for the three token-span operators
// (Overlap, Inclusion, IdenticalCoverage): all three compare the
// [left, right] token range two spans cover, derived from the
// LeftToken/RightToken components and a document-order position index
// built from the Ordering component.
type tokenSpanOp struct {
	g        GraphView
	layer    string
	relation func(lSpan, rSpan tokenRange) bool
}

type tokenRange struct {
	leftPos, rightPos int
}

// orderPositions assigns every node on the Ordering component a
// document-order position, walking every disconnected chain rather
// than just the first root found — a corpus holds one Ordering chain
// per document, and a multi-document corpus must not silently drop
// every token outside the first document's chain.
func (s tokenSpanOp) orderPositions() (map[model.NodeID]int, error) {
	c := model.Component{CType: model.Ordering, Layer: s.layer, Name: ""}
	storage, ok := s.g.GetComponent(c)
	if !ok {
		return map[model.NodeID]int{}, nil
	}
	sources, err := storage.SourceNodes()
	if err != nil {
		return nil, err
	}
	hasIncoming := map[model.NodeID]struct{}{}
	for _, src := range sources {
		out, err := storage.GetOutgoingEdges(src)
		if err != nil {
			return nil, err
		}
		for _, n := range out {
			hasIncoming[n] = struct{}{}
		}
	}

	positions := map[model.NodeID]int{}
	pos := 0
	visit := func(start model.NodeID) error {
		cur := start
		for {
			if _, seen := positions[cur]; seen {
				return nil
			}
			positions[cur] = pos
			pos++
			out, err := storage.GetOutgoingEdges(cur)
			if err != nil {
				return err
			}
			if len(out) == 0 {
				return nil
			}
			cur = out[0]
		}
	}

	// One walk per chain root (a source with no incoming edge) covers
	// every well-formed document.
	for _, src := range sources {
		if _, has := hasIncoming[src]; has {
			continue
		}
		if err := visit(src); err != nil {
			return nil, err
		}
	}
	// Anything still unreached (a cyclic or rootless chain) still gets
	// positions so span() doesn't spuriously report "absent" for it.
	for _, src := range sources {
		if _, seen := positions[src]; !seen {
			if err := visit(src); err != nil {
				return nil, err
			}
		}
	}
	return positions, nil
}

func (s tokenSpanOp) span(n model.NodeID, positions map[model.NodeID]int) (tokenRange, bool) {
	leftC := model.Component{CType: model.LeftToken, Layer: model.NSAnnis, Name: ""}
	rightC := model.Component{CType: model.RightToken, Layer: model.NSAnnis, Name: ""}
	leftStorage, ok := s.g.GetComponent(leftC)
	if !ok {
		return tokenRange{}, false
	}
	rightStorage, ok := s.g.GetComponent(rightC)
	if !ok {
		return tokenRange{}, false
	}
	leftOut, err := leftStorage.GetOutgoingEdges(n)
	if err != nil || len(leftOut) == 0 {
		return tokenRange{}, false
	}
	rightOut, err := rightStorage.GetOutgoingEdges(n)
	if err != nil || len(rightOut) == 0 {
		return tokenRange{}, false
	}
	lp, ok := positions[leftOut[0]]
	if !ok {
		return tokenRange{}, false
	}
	rp, ok := positions[rightOut[0]]
	if !ok {
		return tokenRange{}, false
	}
	return tokenRange{leftPos: lp, rightPos: rp}, true
}

func (s tokenSpanOp) RetrieveMatches(g GraphView, lhs model.NodeID) ([]model.NodeID, error) {
	s.g = g
	positions, err := s.orderPositions()
	if err != nil {
		return nil, err
	}
	lSpan, ok := s.span(lhs, positions)
	if !ok {
		return nil, nil
	}
	leftC := model.Component{CType: model.LeftToken, Layer: model.NSAnnis, Name: ""}
	leftStorage, ok := g.GetComponent(leftC)
	if !ok {
		return nil, nil
	}
	candidates, err := leftStorage.SourceNodes()
	if err != nil {
		return nil, err
	}
	var out []model.NodeID
	for _, c := range candidates {
		rSpan, ok := s.span(c, positions)
		if !ok {
			continue
		}
		if s.relation(lSpan, rSpan) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s tokenSpanOp) FilterMatch(g GraphView, lhs, rhs model.NodeID) (bool, error) {
	s.g = g
	positions, err := s.orderPositions()
	if err != nil {
		return false, err
	}
	lSpan, ok := s.span(lhs, positions)
	if !ok {
		return false, nil
	}
	rSpan, ok := s.span(rhs, positions)
	if !ok {
		return false, nil
	}
	return s.relation(lSpan, rSpan), nil
}

func (tokenSpanOp) IsReflexive() bool             { return true }
func (tokenSpanOp) Estimation() Estimation         { return Estimation{Kind: Selectivity, Selectivity: 0.3} }
func (tokenSpanOp) EdgeAnnoSelectivity() float64   { return 1.0 }
func (s tokenSpanOp) GetInverseOperator() (BinaryOperator, bool) {
	rel := s.relation
	return tokenSpanOp{g: s.g, layer: s.layer, relation: func(l, r tokenRange) bool { return rel(r, l) }}, true
}
func (tokenSpanOp) InverseHasSameCost(g GraphView) bool { return true }

func overlaps(l, r tokenRange) bool {
	return l.leftPos <= r.rightPos && r.leftPos <= l.rightPos
}

func includes(l, r tokenRange) bool {
	return l.leftPos <= r.leftPos && r.rightPos <= l.rightPos
}

func identicalCoverage(l, r tokenRange) bool {
	return l.leftPos == r.leftPos && l.rightPos == r.rightPos
}

// OverlapSpec is the spec's "_o_" operator: lhs and rhs token ranges intersect.
type OverlapSpec struct{ Layer string }

func (s OverlapSpec) NecessaryComponents(g GraphView) []model.Component {
	return []model.Component{
		{CType: model.Ordering, Layer: s.Layer, Name: ""},
		{CType: model.LeftToken, Layer: model.NSAnnis, Name: ""},
		{CType: model.RightToken, Layer: model.NSAnnis, Name: ""},
	}
}

func (s OverlapSpec) CreateOperator(g GraphView) (BinaryOperator, bool) {
	return tokenSpanOp{g: g, layer: s.Layer, relation: overlaps}, true
}

// InclusionSpec is the spec's "_i_" operator: rhs's token range falls
// entirely within lhs's.
type InclusionSpec struct{ Layer string }

func (s InclusionSpec) NecessaryComponents(g GraphView) []model.Component {
	return OverlapSpec(s).NecessaryComponents(g)
}

func (s InclusionSpec) CreateOperator(g GraphView) (BinaryOperator, bool) {
	return tokenSpanOp{g: g, layer: s.Layer, relation: includes}, true
}

// IdenticalCoverageSpec is the spec's "_=_" operator: lhs and rhs cover
// exactly the same tokens.
type IdenticalCoverageSpec struct{ Layer string }

func (s IdenticalCoverageSpec) NecessaryComponents(g GraphView) []model.Component {
	return OverlapSpec(s).NecessaryComponents(g)
}

func (s IdenticalCoverageSpec) CreateOperator(g GraphView) (BinaryOperator, bool) {
	return tokenSpanOp{g: g, layer: s.Layer, relation: identicalCoverage}, true
}

// NearSpec bounds the distance, in document-order token positions,
// between two spans' anchors (spec's "^" near operator).
type NearSpec struct {
	Layer   string
	MaxDist int
}

func (s NearSpec) NecessaryComponents(g GraphView) []model.Component {
	return OverlapSpec(OverlapSpec{Layer: s.Layer}).NecessaryComponents(g)
}

func (s NearSpec) CreateOperator(g GraphView) (BinaryOperator, bool) {
	maxDist := s.MaxDist
	return tokenSpanOp{g: g, layer: s.Layer, relation: func(l, r tokenRange) bool {
		d := r.leftPos - l.rightPos
		if d < 0 {
			d = l.leftPos - r.rightPos
		}
		return d >= 0 && d <= maxDist
	}}, true
}
