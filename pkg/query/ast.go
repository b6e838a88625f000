// Package query implements the Query Engine of spec §4.4: AST,
// node-search specs, binary/unary operators, the planner and the
// index-join/nested-loop-join/filter executors.
package query

import "github.com/orneryd/graphdb/pkg/model"

// Location is a source span for error reporting, mirrors errs.Location
// but scoped to query-AST nodes so pkg/query doesn't import pkg/errs
// just for this shape.
type Location struct {
	StartLine, StartCol, EndLine, EndCol int
}

// Disjunction is a sequence of Conjunctions; a query matches if any
// Conjunction matches (logical OR across alternatives).
type Disjunction struct {
	Conjunctions []*Conjunction
}

// NodeEntry is one variable of a Conjunction: its declared name and the
// NodeSearchSpec constraining it.
type NodeEntry struct {
	Variable string
	Spec     NodeSearchSpec
	Location Location
}

// BinaryEntry is one binary-operator constraint between two nodes by
// index into Conjunction.Nodes.
type BinaryEntry struct {
	LHSIdx            int
	RHSIdx            int
	Spec              BinaryOperatorSpec
	GlobalReflexivity bool
	Location          Location
}

// UnaryEntry is one unary-operator constraint (a predicate) on a single
// node's search results.
type UnaryEntry struct {
	Idx      int
	Spec     UnaryOperatorSpec
	Location Location
}

// Conjunction is one alternative of a Disjunction: a set of variables
// joined by binary/unary operators, with a subset selected for output.
type Conjunction struct {
	Nodes            []NodeEntry
	BinaryOps        []BinaryEntry
	UnaryOps         []UnaryEntry
	IncludedInOutput map[string]struct{}
}

// IndexOf returns the node index for variable, or -1.
func (c *Conjunction) IndexOf(variable string) int {
	for i, n := range c.Nodes {
		if n.Variable == variable {
			return i
		}
	}
	return -1
}

// UnaryOperatorSpec is a predicate attached to a single execution node,
// e.g. leafs_only filtering baked directly into a NodeSearchSpec
// doesn't need this; this hook exists for future standalone unary
// predicates (e.g. arity checks) not expressible as a NodeSearchSpec.
type UnaryOperatorSpec interface {
	Evaluate(g GraphView, n model.NodeID) (bool, error)
}
