// Package anno implements the Annotation Store (spec §4.1): a map from
// item (NodeID or Edge) to a set of namespaced key/value annotations,
// with inverted indices for exact/regex search and histogram-based
// cardinality estimation.
//
// Two backings share the Store contract: MemStore (in-memory tree-map
// indices, grounded on pkg/storage/memory.go's index-maintenance style)
// and DiskStore (pkg/diskmap-backed, grounded on pkg/storage/badger.go's
// prefix-key scheme).
package anno

import "github.com/orneryd/graphdb/pkg/model"

// Item is the constraint on annotation-store keys: NodeID for node
// annotations, model.Edge for edge annotations. Encode must return a
// byte order compatible with the item's natural ordering.
type Item interface {
	comparable
	Encode() []byte
}

// ValueSearchKind discriminates the value_search variants of spec §4.1.
type ValueSearchKind int

const (
	Any ValueSearchKind = iota
	Some
	NotSome
)

// ValueSearch selects which values an exact_anno_search call matches.
type ValueSearch struct {
	Kind  ValueSearchKind
	Value string
}

// AnySearch matches every value under the key.
func AnySearch() ValueSearch { return ValueSearch{Kind: Any} }

// SomeSearch matches only items whose value equals v.
func SomeSearch(v string) ValueSearch { return ValueSearch{Kind: Some, Value: v} }

// NotSomeSearch matches only items whose value differs from v.
func NotSomeSearch(v string) ValueSearch { return ValueSearch{Kind: NotSome, Value: v} }

// Match pairs an item with the AnnoKey that matched it, mirroring
// model.Match but parameterized over the store's item type.
type Match[T Item] struct {
	Item T
	Key  model.AnnoKey
}

// Store is the generic Annotation Store contract of spec §4.1.
// Lookups return "absent" (ok=false), never an error; mutations may
// fail only with an I/O error from an on-disk backing.
type Store[T Item] interface {
	Insert(item T, a model.Annotation) error
	RemoveAnnotationForItem(item T, key model.AnnoKey) (prior string, had bool, err error)
	GetValueForItem(item T, key model.AnnoKey) (value string, ok bool, err error)
	GetAnnotationsForItem(item T) ([]model.Annotation, error)
	GetAllKeysForItem(item T, ns *string, name *string) ([]model.AnnoKey, error)
	AnnotationKeys() ([]model.AnnoKey, error)
	GetQNames(name string) ([]model.AnnoKey, error)

	ExactAnnoSearch(ns *string, name string, vs ValueSearch) ([]Match[T], error)
	RegexAnnoSearch(ns *string, name string, pattern string, negated bool) ([]Match[T], error)

	GetLargestItem() (item T, ok bool, err error)
	NumberOfAnnotationsByName(ns *string, name string) (int, error)
	GuessMaxCount(ns *string, name, lowerValue, upperValue string) (int, error)
	GuessMaxCountRegex(ns *string, name, pattern string) (int, error)
	CalculateStatistics() error
}

// qualifies reports whether k matches an optional namespace and a
// name (an empty name matches any), the shared predicate behind
// GetAllKeysForItem and the key searches of both backings.
func qualifies(k model.AnnoKey, ns *string, name string) bool {
	if name != "" && k.Name != name {
		return false
	}
	if ns != nil && k.NS != *ns {
		return false
	}
	return true
}
