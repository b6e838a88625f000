package query

import (
	"github.com/orneryd/graphdb/pkg/errs"
	"github.com/orneryd/graphdb/pkg/model"
)

// numGenerations caps the join-order local search at this many passes
// of adjacent swaps over the operator order. The search also stops after
// the first pass with no improving swap, or once failureMultiplier *
// len(ops) consecutive non-improving swaps have been counted.
const numGenerations = 4
const failureMultiplier = 5

// JoinKind selects how a step binds its RHS operand against rows
// already bound for LHS, per spec's "index join vs nested-loop join vs
// filter" step 5 choice.
type JoinKind int

const (
	// IndexJoin retrieves RHS candidates straight from the bound LHS
	// value via Op.RetrieveMatches — the cheap path, available
	// whenever an operator (possibly inverted) can probe from the
	// already-bound side.
	IndexJoin JoinKind = iota
	// NestedLoopJoin enumerates RHS's own NodeSearchSpec candidates
	// and checks Op.FilterMatch pairwise against each bound LHS row,
	// the fallback when neither direction admits an index probe.
	NestedLoopJoin
	// FilterOnly re-checks Op.FilterMatch against two operands already
	// bound by earlier steps (both fell in the same weakly-connected
	// component of the union-find before this operator was reached).
	FilterOnly
)

// ExecutionStep is one bound operator in a join-order plan: either the
// initial NodeSearchSpec probe (RHS only, LHSIdx<0) or a binary-operator
// join/filter against an earlier step's output.
type ExecutionStep struct {
	NodeIdx int
	Spec    NodeSearchSpec
	// PartOfComponents, when non-empty, replaces Spec.Resolve's direct
	// predicate scan with a part-of-component search: enumerate the
	// union of these components' SourceNodes and apply Spec.Matches as
	// a filter, per spec's planner step 2.
	PartOfComponents []model.Component

	BinOp    BinaryOperatorSpec
	LHSIdx   int
	RHSIdx   int
	Op       BinaryOperator
	JoinKind JoinKind
	// Inverted marks a step whose Op and operand roles were swapped
	// from the Conjunction's declared LHS/RHS — either because an
	// equal-cost inverse operator let an IndexJoin probe from the
	// declared RHS, or (NestedLoopJoin) because the declared RHS was
	// the only bound side and candidates must be checked in reverse
	// argument order against the original, non-inverted Op.
	Inverted bool
	Estimate float64
}

// Plan is an ordered list of ExecutionSteps the executor runs in
// sequence, plus the set of output variable indices.
type Plan struct {
	Steps  []ExecutionStep
	Output []int
}

// PlanConjunction estimates per-operator cost and picks a join order by
// local search over operator permutations, seeded by the Conjunction's
// declaration order for determinism across runs on the same input.
func PlanConjunction(g GraphView, c *Conjunction) (*Plan, error) {
	if err := Validate(c); err != nil {
		return nil, err
	}

	ops := make([]BinaryEntry, len(c.BinaryOps))
	copy(ops, c.BinaryOps)

	best := ops
	bestCost, err := estimateOrderCost(g, c, best)
	if err != nil {
		return nil, err
	}

	consecutiveFailures := 0
	maxFailures := failureMultiplier * max(1, len(ops))
	for gen := 0; gen < numGenerations && len(ops) > 1; gen++ {
		improved := false
		for i := 0; i < len(best)-1; i++ {
			candidate := make([]BinaryEntry, len(best))
			copy(candidate, best)
			candidate[i], candidate[i+1] = candidate[i+1], candidate[i]

			cost, err := estimateOrderCost(g, c, candidate)
			if err != nil {
				return nil, err
			}
			if cost < bestCost {
				best = candidate
				bestCost = cost
				improved = true
				consecutiveFailures = 0
			} else {
				consecutiveFailures++
			}
			if consecutiveFailures >= maxFailures {
				break
			}
		}
		if !improved {
			break
		}
	}

	return buildPlan(g, c, best)
}

// estimateOrderCost sums each operator's output-cardinality estimate
// given the prior operators run before it, a cheap proxy for total join
// work that avoids materializing anything.
func estimateOrderCost(g GraphView, c *Conjunction, order []BinaryEntry) (float64, error) {
	bound := map[int]float64{}
	for i, n := range c.Nodes {
		card, err := n.Spec.EstimatedCardinality(g)
		if err != nil {
			return 0, err
		}
		bound[i] = float64(card)
	}

	total := 0.0
	for _, entry := range order {
		op, ok := entry.Spec.CreateOperator(g)
		if !ok {
			return 0, errs.New(errs.NoComponentForNode, "operator has no backing component")
		}
		lhsCard := bound[entry.LHSIdx]
		var stepCost float64
		switch op.Estimation().Kind {
		case MinReachable:
			stepCost = lhsCard * float64(op.Estimation().MinReachable)
		default:
			stepCost = lhsCard * op.Estimation().Selectivity
		}
		stepCost *= op.EdgeAnnoSelectivity()
		total += stepCost
		bound[entry.RHSIdx] = stepCost
	}
	return total, nil
}

func buildPlan(g GraphView, c *Conjunction, order []BinaryEntry) (*Plan, error) {
	var steps []ExecutionStep
	bound := map[int]bool{}

	// Seed every node that no binary operator ever targets as RHS; it
	// must be probed directly from its NodeSearchSpec (or, if the
	// part-of-component rewrite applies, from the union of its
	// necessary components' source nodes instead).
	isRHS := map[int]bool{}
	for _, e := range order {
		isRHS[e.RHSIdx] = true
	}
	for i, n := range c.Nodes {
		if !isRHS[i] {
			step := ExecutionStep{NodeIdx: i, Spec: n.Spec, LHSIdx: -1, RHSIdx: i}
			if comps, rewrite := needsPartOfRewrite(g, c, i); rewrite {
				step.PartOfComponents = comps
			}
			steps = append(steps, step)
			bound[i] = true
		}
	}

	for _, e := range order {
		op, ok := e.Spec.CreateOperator(g)
		if !ok {
			return nil, errs.New(errs.NoComponentForNode, "operator has no backing component for variable %q", c.Nodes[e.RHSIdx].Variable)
		}

		lhsBound, rhsBound := bound[e.LHSIdx], bound[e.RHSIdx]
		step := ExecutionStep{BinOp: e.Spec}

		switch {
		case lhsBound && rhsBound:
			// Both operands already fall in an earlier-bound part of
			// the union-find: re-check the predicate as a filter
			// rather than joining a new operand in.
			step.NodeIdx = e.RHSIdx
			step.LHSIdx, step.RHSIdx = e.LHSIdx, e.RHSIdx
			step.Op = op
			step.JoinKind = FilterOnly

		case lhsBound && !rhsBound:
			step.NodeIdx = e.RHSIdx
			step.Spec = c.Nodes[e.RHSIdx].Spec
			step.LHSIdx, step.RHSIdx = e.LHSIdx, e.RHSIdx
			step.Op = op
			step.JoinKind = IndexJoin

		case !lhsBound && rhsBound:
			// The declared LHS is still unbound; swap operands and
			// probe from the declared RHS instead, using the inverse
			// operator when one exists and costs no more than the
			// original direction (spec's inverse_has_same_cost gate).
			if inv, ok := op.GetInverseOperator(); ok && op.InverseHasSameCost(g) {
				step.NodeIdx = e.LHSIdx
				step.Spec = c.Nodes[e.LHSIdx].Spec
				step.LHSIdx, step.RHSIdx = e.RHSIdx, e.LHSIdx
				step.Op = inv
				step.JoinKind = IndexJoin
				step.Inverted = true
			} else {
				// No cheap inversion: fall back to a nested-loop join,
				// enumerating the unbound side's own candidates and
				// checking the original operator's predicate against
				// each, argument order swapped to match the declared
				// LHS/RHS roles.
				step.NodeIdx = e.LHSIdx
				step.Spec = c.Nodes[e.LHSIdx].Spec
				step.LHSIdx, step.RHSIdx = e.RHSIdx, e.LHSIdx
				step.Op = op
				step.JoinKind = NestedLoopJoin
				step.Inverted = true
			}

		default:
			return nil, errs.New(errs.LHSOperandNotFound, "neither operand of a binary op bound before join for variable %q", c.Nodes[e.RHSIdx].Variable)
		}

		steps = append(steps, step)
		bound[step.RHSIdx] = true
	}

	output := make([]int, 0, len(c.Nodes))
	for i, n := range c.Nodes {
		if _, want := c.IncludedInOutput[n.Variable]; want || c.IncludedInOutput == nil {
			output = append(output, i)
		}
	}
	return &Plan{Steps: steps, Output: output}, nil
}

// needsPartOfRewrite applies spec's planner step 2: when nodeIdx's
// NodeSearchSpec estimated cardinality exceeds the (edge-anno-scaled)
// sum of statistics.nodes over every component its binary operators
// touch, the node search should instead enumerate those components'
// source nodes and filter by the predicate — cheaper when the
// predicate alone (e.g. a wide-open regex) would otherwise scan far
// more nodes than the components it's about to join against contain.
func needsPartOfRewrite(g GraphView, c *Conjunction, nodeIdx int) ([]model.Component, bool) {
	card, err := c.Nodes[nodeIdx].Spec.EstimatedCardinality(g)
	if err != nil || card <= 0 {
		return nil, false
	}

	var comps []model.Component
	seen := map[model.Component]struct{}{}
	var sumNodes float64

	for _, e := range c.BinaryOps {
		if e.LHSIdx != nodeIdx && e.RHSIdx != nodeIdx {
			continue
		}
		selectivity := 1.0
		if op, ok := e.Spec.CreateOperator(g); ok {
			selectivity = op.EdgeAnnoSelectivity()
		}
		for _, comp := range e.Spec.NecessaryComponents(g) {
			if _, dup := seen[comp]; dup {
				continue
			}
			seen[comp] = struct{}{}
			comps = append(comps, comp)
			if storage, ok := g.GetComponent(comp); ok {
				if stat, ok := storage.GetStatistics(); ok {
					sumNodes += float64(stat.Nodes) * selectivity
				}
			}
		}
	}
	if len(comps) == 0 {
		return nil, false
	}
	if float64(card) > sumNodes {
		return comps, true
	}
	return nil, false
}

// NecessaryComponents aggregates every component a Conjunction's binary
// operators touch, used by plan()'s component-usage report and by the
// part-of-component rewrite.
func NecessaryComponents(g GraphView, c *Conjunction) []model.Component {
	seen := map[model.Component]struct{}{}
	var out []model.Component
	for _, e := range c.BinaryOps {
		for _, comp := range e.Spec.NecessaryComponents(g) {
			if _, ok := seen[comp]; !ok {
				seen[comp] = struct{}{}
				out = append(out, comp)
			}
		}
	}
	return out
}
