package query

import (
	"regexp"

	"github.com/orneryd/graphdb/pkg/anno"
	"github.com/orneryd/graphdb/pkg/model"
)

// NodeSearchSpec is the sum type constraining a single Conjunction
// variable, per spec §4.4. Regex variants with no metacharacters
// degrade to their Exact counterpart via Normalize.
type NodeSearchSpec interface {
	// Resolve returns every NodeID matching this spec under g.
	Resolve(g GraphView) ([]model.Match, error)
	// Matches reports whether a specific node satisfies this spec,
	// used by the part-of-component rewrite's filter step.
	Matches(g GraphView, n model.NodeID) (bool, error)
	// EstimatedCardinality is the planner's output-size estimate.
	EstimatedCardinality(g GraphView) (int, error)
}

type ExactValue struct {
	NS     *string
	Name   string
	Value  *string // nil means "any value", i.e. key presence only
	IsMeta bool
}

type NotExactValue struct {
	NS    *string
	Name  string
	Value string
}

type RegexValue struct {
	NS      *string
	Name    string
	Pattern string
}

type NotRegexValue struct {
	NS      *string
	Name    string
	Pattern string
}

type ExactTokenValue struct {
	Value     string
	LeafsOnly bool
}

type NotExactTokenValue struct {
	Value string
}

type RegexTokenValue struct {
	Pattern string
}

type NotRegexTokenValue struct {
	Pattern string
}

type AnyToken struct{}

type AnyNode struct{}

// nsAnnis is a stable addressable copy of model.NSAnnis for the *string
// parameters NodeAnnos() search methods take.
var nsAnnis = model.NSAnnis

// hasRegexMeta reports whether pattern contains a regex metacharacter,
// mirroring pkg/anno/histogram.go's hasRegexMetachar degrade check.
func hasRegexMeta(pattern string) bool {
	for _, r := range pattern {
		switch r {
		case '.', '*', '+', '?', '(', ')', '[', ']', '{', '}', '|', '^', '$', '\\':
			return true
		}
	}
	return false
}

// Normalize degrades a regex spec with no metacharacters to its Exact
// form, per spec §4.4.
func Normalize(spec NodeSearchSpec) NodeSearchSpec {
	switch s := spec.(type) {
	case RegexValue:
		if !hasRegexMeta(s.Pattern) {
			v := s.Pattern
			return ExactValue{NS: s.NS, Name: s.Name, Value: &v}
		}
	case NotRegexValue:
		if !hasRegexMeta(s.Pattern) {
			return NotExactValue{NS: s.NS, Name: s.Name, Value: s.Pattern}
		}
	case RegexTokenValue:
		if !hasRegexMeta(s.Pattern) {
			return ExactTokenValue{Value: s.Pattern}
		}
	case NotRegexTokenValue:
		if !hasRegexMeta(s.Pattern) {
			return NotExactTokenValue{Value: s.Pattern}
		}
	}
	return spec
}

func isLeaf(g GraphView, n model.NodeID) (bool, error) {
	for _, c := range g.Components() {
		if c.CType != model.Coverage || c == model.InheritedCoverageComponent {
			continue
		}
		storage, ok := g.GetComponent(c)
		if !ok {
			continue
		}
		out, err := storage.GetOutgoingEdges(n)
		if err != nil {
			return false, err
		}
		if len(out) > 0 {
			return false, nil
		}
	}
	return true, nil
}

func matchesToNodes(matches []anno.Match[model.NodeID], key model.AnnoKey) []model.Match {
	out := make([]model.Match, len(matches))
	for i, m := range matches {
		out[i] = model.Match{Node: m.Item, Key: key}
	}
	return out
}

func (s ExactValue) key() model.AnnoKey {
	ns := ""
	if s.NS != nil {
		ns = *s.NS
	}
	return model.AnnoKey{NS: ns, Name: s.Name}
}

func (s ExactValue) Resolve(g GraphView) ([]model.Match, error) {
	vs := anno.AnySearch()
	if s.Value != nil {
		vs = anno.SomeSearch(*s.Value)
	}
	matches, err := g.NodeAnnos().ExactAnnoSearch(s.NS, s.Name, vs)
	if err != nil {
		return nil, err
	}
	return matchesToNodes(matches, s.key()), nil
}

func (s ExactValue) Matches(g GraphView, n model.NodeID) (bool, error) {
	v, ok, err := g.NodeAnnos().GetValueForItem(n, s.key())
	if err != nil || !ok {
		return false, err
	}
	return s.Value == nil || v == *s.Value, nil
}

func (s ExactValue) EstimatedCardinality(g GraphView) (int, error) {
	if s.Value == nil {
		return g.NodeAnnos().NumberOfAnnotationsByName(s.NS, s.Name)
	}
	return g.NodeAnnos().GuessMaxCount(s.NS, s.Name, *s.Value, *s.Value)
}

func (s NotExactValue) key() model.AnnoKey {
	ns := ""
	if s.NS != nil {
		ns = *s.NS
	}
	return model.AnnoKey{NS: ns, Name: s.Name}
}

func (s NotExactValue) Resolve(g GraphView) ([]model.Match, error) {
	matches, err := g.NodeAnnos().ExactAnnoSearch(s.NS, s.Name, anno.NotSomeSearch(s.Value))
	if err != nil {
		return nil, err
	}
	return matchesToNodes(matches, s.key()), nil
}

func (s NotExactValue) Matches(g GraphView, n model.NodeID) (bool, error) {
	v, ok, err := g.NodeAnnos().GetValueForItem(n, s.key())
	if err != nil || !ok {
		return false, err
	}
	return v != s.Value, nil
}

func (s NotExactValue) EstimatedCardinality(g GraphView) (int, error) {
	total, err := g.NodeAnnos().NumberOfAnnotationsByName(s.NS, s.Name)
	if err != nil {
		return 0, err
	}
	matching, err := g.NodeAnnos().GuessMaxCount(s.NS, s.Name, s.Value, s.Value)
	if err != nil {
		return 0, err
	}
	if total-matching < 0 {
		return 0, nil
	}
	return total - matching, nil
}

func (s RegexValue) key() model.AnnoKey {
	ns := ""
	if s.NS != nil {
		ns = *s.NS
	}
	return model.AnnoKey{NS: ns, Name: s.Name}
}

func (s RegexValue) Resolve(g GraphView) ([]model.Match, error) {
	matches, err := g.NodeAnnos().RegexAnnoSearch(s.NS, s.Name, s.Pattern, false)
	if err != nil {
		return nil, err
	}
	return matchesToNodes(matches, s.key()), nil
}

func (s RegexValue) Matches(g GraphView, n model.NodeID) (bool, error) {
	v, ok, err := g.NodeAnnos().GetValueForItem(n, s.key())
	if err != nil || !ok {
		return false, err
	}
	re, err := regexp.Compile(s.Pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(v), nil
}

func (s RegexValue) EstimatedCardinality(g GraphView) (int, error) {
	return g.NodeAnnos().GuessMaxCountRegex(s.NS, s.Name, s.Pattern)
}

func (s NotRegexValue) key() model.AnnoKey {
	ns := ""
	if s.NS != nil {
		ns = *s.NS
	}
	return model.AnnoKey{NS: ns, Name: s.Name}
}

func (s NotRegexValue) Resolve(g GraphView) ([]model.Match, error) {
	matches, err := g.NodeAnnos().RegexAnnoSearch(s.NS, s.Name, s.Pattern, true)
	if err != nil {
		return nil, err
	}
	return matchesToNodes(matches, s.key()), nil
}

func (s NotRegexValue) Matches(g GraphView, n model.NodeID) (bool, error) {
	v, ok, err := g.NodeAnnos().GetValueForItem(n, s.key())
	if err != nil || !ok {
		return false, err
	}
	re, err := regexp.Compile(s.Pattern)
	if err != nil {
		return false, err
	}
	return !re.MatchString(v), nil
}

func (s NotRegexValue) EstimatedCardinality(g GraphView) (int, error) {
	total, err := g.NodeAnnos().NumberOfAnnotationsByName(s.NS, s.Name)
	if err != nil {
		return 0, err
	}
	matching, err := g.NodeAnnos().GuessMaxCountRegex(s.NS, s.Name, s.Pattern)
	if err != nil {
		return 0, err
	}
	if total-matching < 0 {
		return 0, nil
	}
	return total - matching, nil
}

func (s ExactTokenValue) Resolve(g GraphView) ([]model.Match, error) {
	matches, err := g.NodeAnnos().ExactAnnoSearch(&nsAnnis, model.KeyTok, anno.SomeSearch(s.Value))
	if err != nil {
		return nil, err
	}
	out := matchesToNodes(matches, model.TokKey)
	if !s.LeafsOnly {
		return out, nil
	}
	var filtered []model.Match
	for _, m := range out {
		leaf, err := isLeaf(g, m.Node)
		if err != nil {
			return nil, err
		}
		if leaf {
			filtered = append(filtered, m)
		}
	}
	return filtered, nil
}

func (s ExactTokenValue) Matches(g GraphView, n model.NodeID) (bool, error) {
	v, ok, err := g.NodeAnnos().GetValueForItem(n, model.TokKey)
	if err != nil || !ok || v != s.Value {
		return false, err
	}
	if !s.LeafsOnly {
		return true, nil
	}
	return isLeaf(g, n)
}

func (s ExactTokenValue) EstimatedCardinality(g GraphView) (int, error) {
	return g.NodeAnnos().GuessMaxCount(&nsAnnis, model.KeyTok, s.Value, s.Value)
}

func (s NotExactTokenValue) Resolve(g GraphView) ([]model.Match, error) {
	matches, err := g.NodeAnnos().ExactAnnoSearch(&nsAnnis, model.KeyTok, anno.NotSomeSearch(s.Value))
	if err != nil {
		return nil, err
	}
	return matchesToNodes(matches, model.TokKey), nil
}

func (s NotExactTokenValue) Matches(g GraphView, n model.NodeID) (bool, error) {
	v, ok, err := g.NodeAnnos().GetValueForItem(n, model.TokKey)
	if err != nil || !ok {
		return false, err
	}
	return v != s.Value, nil
}

func (s NotExactTokenValue) EstimatedCardinality(g GraphView) (int, error) {
	return g.NodeAnnos().NumberOfAnnotationsByName(&nsAnnis, model.KeyTok)
}

func (s RegexTokenValue) Resolve(g GraphView) ([]model.Match, error) {
	matches, err := g.NodeAnnos().RegexAnnoSearch(&nsAnnis, model.KeyTok, s.Pattern, false)
	if err != nil {
		return nil, err
	}
	return matchesToNodes(matches, model.TokKey), nil
}

func (s RegexTokenValue) Matches(g GraphView, n model.NodeID) (bool, error) {
	v, ok, err := g.NodeAnnos().GetValueForItem(n, model.TokKey)
	if err != nil || !ok {
		return false, err
	}
	re, err := regexp.Compile(s.Pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(v), nil
}

func (s RegexTokenValue) EstimatedCardinality(g GraphView) (int, error) {
	return g.NodeAnnos().GuessMaxCountRegex(&nsAnnis, model.KeyTok, s.Pattern)
}

func (s NotRegexTokenValue) Resolve(g GraphView) ([]model.Match, error) {
	matches, err := g.NodeAnnos().RegexAnnoSearch(&nsAnnis, model.KeyTok, s.Pattern, true)
	if err != nil {
		return nil, err
	}
	return matchesToNodes(matches, model.TokKey), nil
}

func (s NotRegexTokenValue) Matches(g GraphView, n model.NodeID) (bool, error) {
	v, ok, err := g.NodeAnnos().GetValueForItem(n, model.TokKey)
	if err != nil || !ok {
		return false, err
	}
	re, err := regexp.Compile(s.Pattern)
	if err != nil {
		return false, err
	}
	return !re.MatchString(v), nil
}

func (s NotRegexTokenValue) EstimatedCardinality(g GraphView) (int, error) {
	return g.NodeAnnos().NumberOfAnnotationsByName(&nsAnnis, model.KeyTok)
}

func (AnyToken) Resolve(g GraphView) ([]model.Match, error) {
	matches, err := g.NodeAnnos().ExactAnnoSearch(&nsAnnis, model.KeyTok, anno.AnySearch())
	if err != nil {
		return nil, err
	}
	return matchesToNodes(matches, model.TokKey), nil
}

func (AnyToken) Matches(g GraphView, n model.NodeID) (bool, error) {
	_, ok, err := g.NodeAnnos().GetValueForItem(n, model.TokKey)
	return ok, err
}

func (AnyToken) EstimatedCardinality(g GraphView) (int, error) {
	return g.NodeAnnos().NumberOfAnnotationsByName(&nsAnnis, model.KeyTok)
}

func (AnyNode) Resolve(g GraphView) ([]model.Match, error) {
	matches, err := g.NodeAnnos().ExactAnnoSearch(&nsAnnis, model.KeyNodeType, anno.AnySearch())
	if err != nil {
		return nil, err
	}
	return matchesToNodes(matches, model.NodeTypeKey), nil
}

func (AnyNode) Matches(g GraphView, n model.NodeID) (bool, error) {
	_, ok, err := g.NodeAnnos().GetValueForItem(n, model.NodeTypeKey)
	return ok, err
}

func (AnyNode) EstimatedCardinality(g GraphView) (int, error) {
	return g.NodeAnnos().NumberOfAnnotationsByName(&nsAnnis, model.KeyNodeType)
}
