package corpus

import (
	"fmt"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/orneryd/graphdb/pkg/query"
)

// planCacheKey identifies one Conjunction's plan within one corpus.
// Conjunctions carry no query string of their own (AQL parsing is out
// of scope here), so the key is a deterministic rendering of the
// resolved AST instead — stable across repeated submissions of an
// equivalent Conjunction, cheap relative to re-running PlanConjunction's
// local search.
func planCacheKey(corpusName string, c *query.Conjunction) string {
	return fmt.Sprintf("%s\x1f%+v", corpusName, *c)
}

// newPlanCache builds the ristretto-backed cache of planned
// Conjunctions, mirroring the teacher's pkg/cache/query_cache.go
// concern (skip re-parsing/re-planning a query seen before) but backed
// by ristretto's cost-aware admission instead of a hand-rolled LRU,
// since — unlike the corpus residency cache in cache.go — nothing here
// needs pinning semantics.
func newPlanCache() (*ristretto.Cache[string, *query.Plan], error) {
	return ristretto.NewCache(&ristretto.Config[string, *query.Plan]{
		NumCounters: 1e5,
		MaxCost:     1 << 13,
		BufferItems: 64,
	})
}

// cachedPlan returns a previously planned Plan for key if still
// resident, else plans c against g, caches it at cost 1 (plans are
// uniformly cheap relative to MaxCost, so a flat cost suffices), and
// returns it. Plans remain valid across a corpus's unload/reload
// cycle: ExecutionStep's BinaryOperators re-resolve component storage
// from whichever GraphView is passed to RetrieveMatches/FilterMatch,
// they never capture one at creation time.
func (s *Store) cachedPlan(corpusName string, g query.GraphView, c *query.Conjunction) (*query.Plan, error) {
	key := planCacheKey(corpusName, c)
	if plan, ok := s.planCache.Get(key); ok {
		return plan, nil
	}
	plan, err := query.PlanConjunction(g, c)
	if err != nil {
		return nil, err
	}
	s.planCache.Set(key, plan, 1)
	return plan, nil
}
