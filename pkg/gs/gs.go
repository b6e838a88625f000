// Package gs implements the Edge Container / GraphStorage variants of
// spec §4.2: a uniform EdgeContainer/GraphStorage contract over several
// concrete storage shapes (adjacency list, pre/post order, linear
// chain, dense bitset, disk-backed), plus the registry that picks one
// from observed GraphStatistic.
package gs

import (
	"github.com/orneryd/graphdb/pkg/anno"
	"github.com/orneryd/graphdb/pkg/model"
)

// DistanceBound expresses a bounded or unbounded maximum hop count, the
// max_dist_bound parameter of is_connected/find_connected.
type DistanceBound struct {
	Unbound bool
	Max     int
}

// Included builds a bounded DistanceBound (spec's Included(n)).
func Included(max int) DistanceBound { return DistanceBound{Max: max} }

// Unbounded builds an unbounded DistanceBound.
func Unbounded() DistanceBound { return DistanceBound{Unbound: true} }

// Contains reports whether depth falls within the bound.
func (d DistanceBound) Contains(depth int) bool {
	if d.Unbound {
		return true
	}
	return depth <= d.Max
}

// EdgeContainer is the read-only contract every storage shape supports.
type EdgeContainer interface {
	GetOutgoingEdges(src model.NodeID) ([]model.NodeID, error)
	GetIngoingEdges(tgt model.NodeID) ([]model.NodeID, error)
	SourceNodes() ([]model.NodeID, error)
	GetStatistics() (model.GraphStatistic, bool)
}

// GraphStorage extends EdgeContainer with edge annotations, reachability
// queries and persistence.
type GraphStorage interface {
	EdgeContainer

	AnnoStorage() anno.Store[model.Edge]

	IsConnected(src, tgt model.NodeID, minDist int, maxDist DistanceBound) (bool, error)
	Distance(src, tgt model.NodeID) (int, bool, error)
	FindConnected(src model.NodeID, min int, max DistanceBound) ([]model.NodeID, error)
	FindConnectedInverse(src model.NodeID, min int, max DistanceBound) ([]model.NodeID, error)

	SerializationID() string
	SaveTo(dir string) error
	LoadFrom(dir string) error
	// Copy replaces this container's contents with a deep copy of
	// other's edges and annotations, used by the Graph's
	// clone-into-writable path.
	Copy(other GraphStorage) error

	InverseHasSameCost() bool
	AsWriteable() (WriteableGraphStorage, bool)
}

// WriteableGraphStorage is the mutable extension only the default
// adjacency-list-family implementations support directly; read-optimized
// shapes (pre/post order, dense, linear chain) return ok=false from
// AsWriteable and rely on the Graph cloning into a fresh AdjacencyList
// before any write.
type WriteableGraphStorage interface {
	GraphStorage
	AddEdge(e model.Edge) error
	AddEdgeAnnotation(e model.Edge, a model.Annotation) error
	DeleteEdge(e model.Edge) error
	DeleteEdgeAnnotation(e model.Edge, key model.AnnoKey) error
	DeleteNode(n model.NodeID) error
	CalculateStatistics() error
}
