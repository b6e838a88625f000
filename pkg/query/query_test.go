package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/graphdb/pkg/anno"
	"github.com/orneryd/graphdb/pkg/graph"
	"github.com/orneryd/graphdb/pkg/model"
	"github.com/orneryd/graphdb/pkg/update"
)

func buildTestGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.NewGraph()
	batch := update.Batch{Events: []update.Event{
		update.NewAddNode("tok1", "node"),
		update.NewAddNode("tok2", "node"),
		update.NewAddNode("tok3", "node"),
		update.NewAddNodeLabel("tok1", "annis", "tok", "the"),
		update.NewAddNodeLabel("tok2", "annis", "tok", "black"),
		update.NewAddNodeLabel("tok3", "annis", "tok", "cat"),
		update.NewAddEdge("tok1", "tok2", "annis", string(model.Ordering), ""),
		update.NewAddEdge("tok2", "tok3", "annis", string(model.Ordering), ""),
		update.NewAddNode("np", "node"),
		update.NewAddEdge("np", "tok2", "annis", string(model.Coverage), ""),
		update.NewAddEdge("np", "tok3", "annis", string(model.Coverage), ""),
	}}
	require.NoError(t, g.ApplyUpdate(batch, nil))
	return g
}

func TestExactTokenValueResolve(t *testing.T) {
	g := buildTestGraph(t)
	spec := ExactTokenValue{Value: "cat"}
	matches, err := spec.Resolve(g)
	require.NoError(t, err)
	require.Len(t, matches, 1)
}

func TestNormalizeDegradesRegexWithoutMeta(t *testing.T) {
	spec := RegexValue{Name: "pos", Pattern: "NN"}
	normalized := Normalize(spec)
	exact, ok := normalized.(ExactValue)
	require.True(t, ok)
	assert.Equal(t, "NN", *exact.Value)
}

func TestNormalizeKeepsRegexWithMeta(t *testing.T) {
	spec := RegexValue{Name: "pos", Pattern: "NN.*"}
	normalized := Normalize(spec)
	_, ok := normalized.(RegexValue)
	assert.True(t, ok)
}

func TestPrecedenceOperatorRetrieveMatches(t *testing.T) {
	g := buildTestGraph(t)
	spec := PrecedenceSpec{Layer: "annis", MinDist: 1, MaxDist: 1}
	op, ok := spec.CreateOperator(g)
	require.True(t, ok)

	tok1, _ := resolveTestNode(t, g, "tok1")
	next, err := op.RetrieveMatches(g, tok1)
	require.NoError(t, err)
	require.Len(t, next, 1)
}

func TestIdenticalNodeOperator(t *testing.T) {
	g := buildTestGraph(t)
	tok1, _ := resolveTestNode(t, g, "tok1")
	op, ok := IdenticalNodeSpec{}.CreateOperator(g)
	require.True(t, ok)
	ok2, err := op.FilterMatch(g, tok1, tok1)
	require.NoError(t, err)
	assert.True(t, ok2)
}

func TestValidateRejectsUnboundVariable(t *testing.T) {
	c := &Conjunction{
		Nodes: []NodeEntry{{Variable: "a"}, {Variable: "b"}, {Variable: "c"}},
		BinaryOps: []BinaryEntry{
			{LHSIdx: 0, RHSIdx: 1, Spec: IdenticalNodeSpec{}},
		},
	}
	err := Validate(c)
	assert.Error(t, err)
}

func TestValidateAcceptsFullyConnected(t *testing.T) {
	c := &Conjunction{
		Nodes: []NodeEntry{{Variable: "a"}, {Variable: "b"}, {Variable: "c"}},
		BinaryOps: []BinaryEntry{
			{LHSIdx: 0, RHSIdx: 1, Spec: IdenticalNodeSpec{}},
			{LHSIdx: 1, RHSIdx: 2, Spec: IdenticalNodeSpec{}},
		},
	}
	assert.NoError(t, Validate(c))
}

func TestPlanAndExecuteSimpleConjunction(t *testing.T) {
	g := buildTestGraph(t)
	c := &Conjunction{
		Nodes: []NodeEntry{
			{Variable: "a", Spec: ExactTokenValue{Value: "the"}},
			{Variable: "b", Spec: ExactTokenValue{Value: "black"}},
		},
		BinaryOps: []BinaryEntry{
			{LHSIdx: 0, RHSIdx: 1, Spec: PrecedenceSpec{Layer: "annis", MinDist: 1, MaxDist: 1}},
		},
		IncludedInOutput: map[string]struct{}{"a": {}, "b": {}},
	}

	plan, err := PlanConjunction(g, c)
	require.NoError(t, err)

	keys := []model.AnnoKey{model.TokKey, model.TokKey}
	groups, err := Execute(g, plan, keys, false, Deadline{})
	require.NoError(t, err)
	require.Len(t, groups, 1)
}

// buildMultiDocGraph builds two independent Ordering chains (two
// documents), each with its own covering span, so operators built over
// tokenSpanOp can be checked against more than the first chain found.
func buildMultiDocGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.NewGraph()
	batch := update.Batch{Events: []update.Event{
		update.NewAddNode("d1tok1", "node"),
		update.NewAddNode("d1tok2", "node"),
		update.NewAddNodeLabel("d1tok1", "annis", "tok", "the"),
		update.NewAddNodeLabel("d1tok2", "annis", "tok", "dog"),
		update.NewAddEdge("d1tok1", "d1tok2", "annis", string(model.Ordering), ""),
		update.NewAddNode("d1span", "node"),
		update.NewAddEdge("d1span", "d1tok1", "annis", string(model.Coverage), ""),
		update.NewAddEdge("d1span", "d1tok2", "annis", string(model.Coverage), ""),

		update.NewAddNode("d2tok1", "node"),
		update.NewAddNode("d2tok2", "node"),
		update.NewAddNodeLabel("d2tok1", "annis", "tok", "a"),
		update.NewAddNodeLabel("d2tok2", "annis", "tok", "cat"),
		update.NewAddEdge("d2tok1", "d2tok2", "annis", string(model.Ordering), ""),
		update.NewAddNode("d2span", "node"),
		update.NewAddEdge("d2span", "d2tok1", "annis", string(model.Coverage), ""),
		update.NewAddEdge("d2span", "d2tok2", "annis", string(model.Coverage), ""),
	}}
	require.NoError(t, g.ApplyUpdate(batch, nil))
	return g
}

func TestTokenSpanOpOverlapsAcrossMultipleDocuments(t *testing.T) {
	g := buildMultiDocGraph(t)
	op, ok := OverlapSpec{Layer: "annis"}.CreateOperator(g)
	require.True(t, ok)

	d1span, ok := resolveTestNode(t, g, "d1span")
	require.True(t, ok)
	d2span, ok := resolveTestNode(t, g, "d2span")
	require.True(t, ok)

	// Each span overlaps itself regardless of which document's chain
	// orderPositions happened to walk first.
	ok1, err := op.FilterMatch(g, d1span, d1span)
	require.NoError(t, err)
	assert.True(t, ok1, "first document's span must still resolve a position")

	ok2, err := op.FilterMatch(g, d2span, d2span)
	require.NoError(t, err)
	assert.True(t, ok2, "second document's span must also resolve a position, not be silently dropped")

	// Spans from different documents never overlap.
	ok3, err := op.FilterMatch(g, d1span, d2span)
	require.NoError(t, err)
	assert.False(t, ok3)
}

func resolveTestNode(t *testing.T, g *graph.Graph, name string) (model.NodeID, bool) {
	t.Helper()
	matches, err := g.NodeAnnos().ExactAnnoSearch(nil, model.KeyNodeName, anno.SomeSearch(name))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	return matches[0].Item, true
}
