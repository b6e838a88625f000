package query

import "github.com/orneryd/graphdb/pkg/errs"

// unionFind is the disjoint-set structure Validate uses to check every
// Conjunction variable is transitively connected by at least one binary
// operator, mirroring the teacher's preference for small, explicit
// helper types over pulling in a graph-algorithms dependency for one
// use site.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}

// Validate checks that every variable in c is reachable from every
// other variable through some chain of binary operators. A Conjunction
// with an unbound variable (no operator mentions it, and it's not the
// sole node) is rejected as unsatisfiable-by-construction.
func Validate(c *Conjunction) error {
	n := len(c.Nodes)
	if n <= 1 {
		return nil
	}
	uf := newUnionFind(n)
	for _, op := range c.BinaryOps {
		if op.LHSIdx < 0 || op.LHSIdx >= n || op.RHSIdx < 0 || op.RHSIdx >= n {
			return errs.New(errs.AQLSemanticError, "binary operator references unknown variable")
		}
		uf.union(op.LHSIdx, op.RHSIdx)
	}
	root := uf.find(0)
	for i := 1; i < n; i++ {
		if uf.find(i) != root {
			return errs.New(errs.AQLSemanticError, "variable not bound: "+c.Nodes[i].Variable)
		}
	}
	return nil
}
