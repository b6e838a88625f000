// Package update defines the UpdateEvent contract external collaborators
// (the AQL executor, relANNIS/GraphML importers) emit against a Graph.
// It is the only surface those out-of-core components touch.
package update

// EventType discriminates the payload carried by an Event.
type EventType string

const (
	AddNode         EventType = "add_node"
	DeleteNode      EventType = "delete_node"
	AddNodeLabel    EventType = "add_node_label"
	DeleteNodeLabel EventType = "delete_node_label"
	AddEdge         EventType = "add_edge"
	DeleteEdge      EventType = "delete_edge"
	AddEdgeLabel    EventType = "add_edge_label"
	DeleteEdgeLabel EventType = "delete_edge_label"
)

// Event is a single atomic mutation in an update batch. Only the fields
// relevant to Type are meaningful; the rest are zero.
type Event struct {
	Type EventType

	// AddNode / DeleteNode / AddNodeLabel / DeleteNodeLabel
	NodeName string
	NodeType string // AddNode only

	// AddNodeLabel / DeleteNodeLabel / AddEdgeLabel / DeleteEdgeLabel
	AnnoNS    string
	AnnoName  string
	AnnoValue string // absent on delete events

	// AddEdge / DeleteEdge / AddEdgeLabel / DeleteEdgeLabel
	SourceName string
	TargetName string
	Layer      string
	CType      string
	CompName   string
}

// Batch is an ordered sequence of Events applied atomically by
// Graph.ApplyUpdate.
type Batch struct {
	Events []Event
}

// NewAddNode builds an AddNode event.
func NewAddNode(name, nodeType string) Event {
	return Event{Type: AddNode, NodeName: name, NodeType: nodeType}
}

// NewDeleteNode builds a DeleteNode event.
func NewDeleteNode(name string) Event {
	return Event{Type: DeleteNode, NodeName: name}
}

// NewAddNodeLabel builds an AddNodeLabel event.
func NewAddNodeLabel(name, ns, key, value string) Event {
	return Event{Type: AddNodeLabel, NodeName: name, AnnoNS: ns, AnnoName: key, AnnoValue: value}
}

// NewDeleteNodeLabel builds a DeleteNodeLabel event.
func NewDeleteNodeLabel(name, ns, key string) Event {
	return Event{Type: DeleteNodeLabel, NodeName: name, AnnoNS: ns, AnnoName: key}
}

// NewAddEdge builds an AddEdge event.
func NewAddEdge(src, tgt, layer, ctype, compName string) Event {
	return Event{Type: AddEdge, SourceName: src, TargetName: tgt, Layer: layer, CType: ctype, CompName: compName}
}

// NewDeleteEdge builds a DeleteEdge event.
func NewDeleteEdge(src, tgt, layer, ctype, compName string) Event {
	return Event{Type: DeleteEdge, SourceName: src, TargetName: tgt, Layer: layer, CType: ctype, CompName: compName}
}

// NewAddEdgeLabel builds an AddEdgeLabel event.
func NewAddEdgeLabel(src, tgt, layer, ctype, compName, ns, key, value string) Event {
	return Event{Type: AddEdgeLabel, SourceName: src, TargetName: tgt, Layer: layer, CType: ctype, CompName: compName, AnnoNS: ns, AnnoName: key, AnnoValue: value}
}

// NewDeleteEdgeLabel builds a DeleteEdgeLabel event.
func NewDeleteEdgeLabel(src, tgt, layer, ctype, compName, ns, key string) Event {
	return Event{Type: DeleteEdgeLabel, SourceName: src, TargetName: tgt, Layer: layer, CType: ctype, CompName: compName, AnnoNS: ns, AnnoName: key}
}
