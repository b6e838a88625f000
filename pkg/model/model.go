// Package model holds the core data types shared by the annotation
// store, graph storage, graph and query engine: NodeID, AnnoKey,
// Annotation, Edge, Component and the Match/MatchGroup query result
// shape (spec §3).
package model

import (
	"encoding/binary"
	"fmt"
)

// NodeID is a monotonically assigned node identifier.
type NodeID uint64

// Encode returns a big-endian byte encoding whose lexicographic order
// matches NodeID's numeric order, for use as a disk-map key component.
func (n NodeID) Encode() []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(n))
	return b[:]
}

// DecodeNodeID reverses NodeID.Encode.
func DecodeNodeID(b []byte) NodeID {
	return NodeID(binary.BigEndian.Uint64(b))
}

// AnnoKey identifies an annotation slot: a namespace plus a name.
// The empty namespace is a valid, distinct namespace from "annis".
type AnnoKey struct {
	NS   string
	Name string
}

func (k AnnoKey) String() string {
	if k.NS == "" {
		return k.Name
	}
	return k.NS + "::" + k.Name
}

// Reserved namespace and key names, per spec §3.
const (
	NSAnnis        = "annis"
	KeyNodeType    = "node_type"
	KeyNodeName    = "node_name"
	KeyTok         = "tok"
	KeyInheritedCoverage = "inherited-coverage"
)

// NodeTypeKey is the mandatory annotation every existing node carries.
var NodeTypeKey = AnnoKey{NS: NSAnnis, Name: KeyNodeType}

// NodeNameKey resolves external name references to NodeIDs.
var NodeNameKey = AnnoKey{NS: NSAnnis, Name: KeyNodeName}

// TokKey marks a node as a token.
var TokKey = AnnoKey{NS: NSAnnis, Name: KeyTok}

// Annotation is a (key, value) label attached to a node or edge.
type Annotation struct {
	Key   AnnoKey
	Value string
}

// Edge is a directed pair of node identifiers. Self-edges (Source ==
// Target) are invalid and must be dropped by callers before insertion.
type Edge struct {
	Source NodeID
	Target NodeID
}

func (e Edge) String() string { return fmt.Sprintf("%d->%d", e.Source, e.Target) }

// Encode returns a big-endian byte encoding whose lexicographic order
// matches (Source, Target) order, for use as a disk-map key component.
func (e Edge) Encode() []byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], uint64(e.Source))
	binary.BigEndian.PutUint64(b[8:16], uint64(e.Target))
	return b[:]
}

// DecodeEdge reverses Edge.Encode.
func DecodeEdge(b []byte) Edge {
	return Edge{
		Source: NodeID(binary.BigEndian.Uint64(b[0:8])),
		Target: NodeID(binary.BigEndian.Uint64(b[8:16])),
	}
}

// CType enumerates the component-type tags a Component can carry.
type CType string

const (
	Coverage        CType = "Coverage"
	InverseCoverage CType = "InverseCoverage"
	Dominance       CType = "Dominance"
	Pointing        CType = "Pointing"
	Ordering        CType = "Ordering"
	LeftToken       CType = "LeftToken"
	RightToken      CType = "RightToken"
	PartOf          CType = "PartOf"
)

// Component is a typed, named, layered partition of edges. Components
// order lexicographically by (CType, Layer, Name).
type Component struct {
	CType CType
	Layer string
	Name  string
}

func (c Component) String() string {
	layer := c.Layer
	if layer == "" {
		layer = "default_layer"
	}
	return fmt.Sprintf("%s/%s/%s", c.CType, layer, c.Name)
}

// Less defines the lexicographic component ordering used for
// deterministic iteration (e.g. list_components output order).
func (c Component) Less(o Component) bool {
	if c.CType != o.CType {
		return c.CType < o.CType
	}
	if c.Layer != o.Layer {
		return c.Layer < o.Layer
	}
	return c.Name < o.Name
}

// DefaultComponents are present on every fresh corpus: Coverage,
// Ordering, LeftToken, RightToken and PartOf, all in layer "annis"
// with an empty name.
func DefaultComponents() []Component {
	return []Component{
		{CType: Coverage, Layer: NSAnnis, Name: ""},
		{CType: Ordering, Layer: NSAnnis, Name: ""},
		{CType: LeftToken, Layer: NSAnnis, Name: ""},
		{CType: RightToken, Layer: NSAnnis, Name: ""},
		{CType: PartOf, Layer: NSAnnis, Name: ""},
	}
}

// InheritedCoverageComponent is the synthetic Coverage component the
// Graph recomputes after every update batch.
var InheritedCoverageComponent = Component{CType: Coverage, Layer: NSAnnis, Name: KeyInheritedCoverage}

// GraphStatistic holds cost-estimation-only statistics for a single
// edge container. Stale values never affect correctness, only plan
// quality.
type GraphStatistic struct {
	Nodes               uint64
	MaxDepth            uint64
	MaxFanOut           uint64
	AvgFanOut           float64
	FanOut99Percentile  uint64
	InverseFanOut99Percentile uint64
	Cyclic              bool
	RootedTree          bool
	DFSVisitRatio       float64
}

// Match pairs a resolved node with the annotation key a query variable
// bound it through.
type Match struct {
	Node NodeID
	Key  AnnoKey
}

// MatchGroup is an ordered sequence of Matches, one per output
// variable of a Conjunction.
type MatchGroup []Match

// Equal compares two match groups field-by-field, per spec's Match
// equality rule (both NodeID and AnnoKey).
func (g MatchGroup) Equal(o MatchGroup) bool {
	if len(g) != len(o) {
		return false
	}
	for i := range g {
		if g[i].Node != o[i].Node || g[i].Key != o[i].Key {
			return false
		}
	}
	return true
}
