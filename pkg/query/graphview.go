package query

import (
	"github.com/orneryd/graphdb/pkg/anno"
	"github.com/orneryd/graphdb/pkg/gs"
	"github.com/orneryd/graphdb/pkg/model"
)

// GraphView is the subset of pkg/graph.Graph the query engine depends
// on, kept as an interface so the planner/executor can be tested
// against fakes without constructing a full Graph. *graph.Graph
// satisfies this structurally.
type GraphView interface {
	NodeAnnos() anno.Store[model.NodeID]
	GetComponent(c model.Component) (gs.GraphStorage, bool)
	Components() []model.Component
}
