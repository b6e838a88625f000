package anno

import (
	"bytes"
	"regexp"
	"sort"
	"sync"

	"github.com/orneryd/graphdb/pkg/model"
)

// MemStore is the in-memory Annotation Store backing, grounded on
// pkg/storage/memory.go's style of keeping a primary map plus secondary
// indices in lockstep under one RWMutex.
type MemStore[T Item] struct {
	mu sync.RWMutex

	// byItem holds, per item, its annotations sorted by AnnoKey for
	// deterministic iteration. At most one Annotation per AnnoKey.
	byItem map[T][]model.Annotation

	// byAnno is the inverted index: key -> value -> set of items.
	byAnno map[model.AnnoKey]map[string]map[T]struct{}

	// counts tracks total annotations per key without rescanning byAnno.
	counts map[model.AnnoKey]uint64

	histograms map[model.AnnoKey]*histogram

	largest    T
	hasLargest bool
}

// NewMemStore builds an empty in-memory annotation store.
func NewMemStore[T Item]() *MemStore[T] {
	return &MemStore[T]{
		byItem:     make(map[T][]model.Annotation),
		byAnno:     make(map[model.AnnoKey]map[string]map[T]struct{}),
		counts:     make(map[model.AnnoKey]uint64),
		histograms: make(map[model.AnnoKey]*histogram),
	}
}

func (s *MemStore[T]) Insert(item T, a model.Annotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.byItem[item]
	replaced := false
	for i, existing := range list {
		if existing.Key == a.Key {
			s.removeFromIndexLocked(a.Key, existing.Value, item)
			list[i].Value = a.Value
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, a)
		sort.Slice(list, func(i, j int) bool {
			return list[i].Key.String() < list[j].Key.String()
		})
		s.byItem[item] = list
	} else {
		s.byItem[item] = list
	}
	s.addToIndexLocked(a.Key, a.Value, item)

	if !s.hasLargest || bytes.Compare(item.Encode(), s.largest.Encode()) > 0 {
		s.largest = item
		s.hasLargest = true
	}
	return nil
}

func (s *MemStore[T]) addToIndexLocked(key model.AnnoKey, value string, item T) {
	byValue, ok := s.byAnno[key]
	if !ok {
		byValue = make(map[string]map[T]struct{})
		s.byAnno[key] = byValue
	}
	items, ok := byValue[value]
	if !ok {
		items = make(map[T]struct{})
		byValue[value] = items
	}
	items[item] = struct{}{}
	s.counts[key]++
}

func (s *MemStore[T]) removeFromIndexLocked(key model.AnnoKey, value string, item T) {
	byValue, ok := s.byAnno[key]
	if !ok {
		return
	}
	items, ok := byValue[value]
	if !ok {
		return
	}
	delete(items, item)
	if len(items) == 0 {
		delete(byValue, value)
	}
	if len(byValue) == 0 {
		delete(s.byAnno, key)
	}
	if s.counts[key] > 0 {
		s.counts[key]--
	}
}

func (s *MemStore[T]) RemoveAnnotationForItem(item T, key model.AnnoKey) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.byItem[item]
	for i, a := range list {
		if a.Key == key {
			s.removeFromIndexLocked(key, a.Value, item)
			list = append(list[:i], list[i+1:]...)
			if len(list) == 0 {
				delete(s.byItem, item)
			} else {
				s.byItem[item] = list
			}
			return a.Value, true, nil
		}
	}
	return "", false, nil
}

func (s *MemStore[T]) GetValueForItem(item T, key model.AnnoKey) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.byItem[item] {
		if a.Key == key {
			return a.Value, true, nil
		}
	}
	return "", false, nil
}

func (s *MemStore[T]) GetAnnotationsForItem(item T) ([]model.Annotation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Annotation, len(s.byItem[item]))
	copy(out, s.byItem[item])
	return out, nil
}

func (s *MemStore[T]) GetAllKeysForItem(item T, ns *string, name *string) ([]model.AnnoKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.AnnoKey
	for _, a := range s.byItem[item] {
		n := ""
		if name != nil {
			n = *name
		}
		if qualifies(a.Key, ns, n) {
			out = append(out, a.Key)
		}
	}
	return out, nil
}

func (s *MemStore[T]) AnnotationKeys() ([]model.AnnoKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.AnnoKey, 0, len(s.byAnno))
	for k := range s.byAnno {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (s *MemStore[T]) GetQNames(name string) ([]model.AnnoKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.AnnoKey
	for k := range s.byAnno {
		if k.Name == name {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (s *MemStore[T]) qualifiedKeysLocked(ns *string, name string) []model.AnnoKey {
	var out []model.AnnoKey
	for k := range s.byAnno {
		if qualifies(k, ns, name) {
			out = append(out, k)
		}
	}
	return out
}

func (s *MemStore[T]) ExactAnnoSearch(ns *string, name string, vs ValueSearch) ([]Match[T], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Match[T]
	for _, key := range s.qualifiedKeysLocked(ns, name) {
		byValue := s.byAnno[key]
		for value, items := range byValue {
			keep := false
			switch vs.Kind {
			case Any:
				keep = true
			case Some:
				keep = value == vs.Value
			case NotSome:
				keep = value != vs.Value
			}
			if !keep {
				continue
			}
			for item := range items {
				out = append(out, Match[T]{Item: item, Key: key})
			}
		}
	}
	return out, nil
}

func (s *MemStore[T]) RegexAnnoSearch(ns *string, name string, pattern string, negated bool) ([]Match[T], error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Match[T]
	for _, key := range s.qualifiedKeysLocked(ns, name) {
		for value, items := range s.byAnno[key] {
			if re.MatchString(value) == negated {
				continue
			}
			for item := range items {
				out = append(out, Match[T]{Item: item, Key: key})
			}
		}
	}
	return out, nil
}

func (s *MemStore[T]) GetLargestItem() (T, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.largest, s.hasLargest, nil
}

func (s *MemStore[T]) NumberOfAnnotationsByName(ns *string, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total uint64
	for _, key := range s.qualifiedKeysLocked(ns, name) {
		total += s.counts[key]
	}
	return int(total), nil
}

func (s *MemStore[T]) GuessMaxCount(ns *string, name, lowerValue, upperValue string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total uint64
	for _, key := range s.qualifiedKeysLocked(ns, name) {
		total += s.histograms[key].guessMaxCount(lowerValue, upperValue)
	}
	return int(total), nil
}

func (s *MemStore[T]) GuessMaxCountRegex(ns *string, name, pattern string) (int, error) {
	prefix := regexLiteralPrefix(pattern)
	return s.GuessMaxCount(ns, name, prefix, prefixUpperBound(prefix))
}

// CalculateStatistics rebuilds the per-key histograms from the current
// inverted index contents, sampling up to maxSampleSize values per key.
func (s *MemStore[T]) CalculateStatistics() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, byValue := range s.byAnno {
		var sample []string
		for value, items := range byValue {
			for range items {
				sample = append(sample, value)
				if len(sample) >= maxSampleSize {
					break
				}
			}
			if len(sample) >= maxSampleSize {
				break
			}
		}
		s.histograms[key] = buildHistogram(sample, s.counts[key])
	}
	return nil
}
