package anno

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"regexp"
	"sort"

	"github.com/orneryd/graphdb/pkg/diskmap"
	"github.com/orneryd/graphdb/pkg/model"
)

// Codec supplies the item-type-specific decode half of the Item
// contract (Encode is a method on T; Decode can't be, so DiskStore
// takes it as a constructor argument).
type Codec[T Item] struct {
	Decode func([]byte) T
}

// Key layout within the shared diskmap.Map, one leading tag byte per
// logical sub-index so several stores can share one Map the way
// pkg/storage/badger.go shares one badger.DB across nodes/edges/indices.
const (
	tagItemAnno  = byte(0x01) // item.Encode() \x00 ns \x00 name -> value
	tagByValue   = byte(0x02) // ns \x00 name \x00 value \x00 item.Encode() -> (empty)
	tagMeta      = byte(0x03) // (no suffix) -> largest item.Encode()
	tagHistogram = byte(0x04) // ns \x00 name -> json(histogramRecord)
	tagCount     = byte(0x05) // ns \x00 name -> uint64 big-endian
)

// DiskStore is the on-disk Annotation Store backing, a thin layer of
// order-preserving key encodings over pkg/diskmap, grounded on
// pkg/storage/badger.go's prefix-key scheme.
type DiskStore[T Item] struct {
	m      *diskmap.Map
	prefix byte
	codec  Codec[T]
}

// NewDiskStore builds a disk-backed annotation store sharing m, tagging
// its keys with prefix so multiple stores (e.g. node vs. edge
// annotations) can coexist in one diskmap.Map.
func NewDiskStore[T Item](m *diskmap.Map, prefix byte, codec Codec[T]) *DiskStore[T] {
	return &DiskStore[T]{m: m, prefix: prefix, codec: codec}
}

func (s *DiskStore[T]) keyItemAnno(item T, key model.AnnoKey) []byte {
	var b bytes.Buffer
	b.WriteByte(s.prefix)
	b.WriteByte(tagItemAnno)
	b.Write(item.Encode())
	b.WriteByte(0)
	b.WriteString(key.NS)
	b.WriteByte(0)
	b.WriteString(key.Name)
	return b.Bytes()
}

func (s *DiskStore[T]) prefixItemAnno(item T) []byte {
	var b bytes.Buffer
	b.WriteByte(s.prefix)
	b.WriteByte(tagItemAnno)
	b.Write(item.Encode())
	b.WriteByte(0)
	return b.Bytes()
}

func (s *DiskStore[T]) keyByValue(key model.AnnoKey, value string, item T) []byte {
	var b bytes.Buffer
	b.WriteByte(s.prefix)
	b.WriteByte(tagByValue)
	b.WriteString(key.NS)
	b.WriteByte(0)
	b.WriteString(key.Name)
	b.WriteByte(0)
	b.WriteString(value)
	b.WriteByte(0)
	b.Write(item.Encode())
	return b.Bytes()
}

func (s *DiskStore[T]) prefixByKey(ns *string, name string) []byte {
	var b bytes.Buffer
	b.WriteByte(s.prefix)
	b.WriteByte(tagByValue)
	if ns != nil {
		b.WriteString(*ns)
	}
	b.WriteByte(0)
	b.WriteString(name)
	b.WriteByte(0)
	return b.Bytes()
}

func (s *DiskStore[T]) keyMeta() []byte {
	return []byte{s.prefix, tagMeta}
}

func (s *DiskStore[T]) keyHistogram(key model.AnnoKey) []byte {
	var b bytes.Buffer
	b.WriteByte(s.prefix)
	b.WriteByte(tagHistogram)
	b.WriteString(key.NS)
	b.WriteByte(0)
	b.WriteString(key.Name)
	return b.Bytes()
}

func (s *DiskStore[T]) keyCount(key model.AnnoKey) []byte {
	var b bytes.Buffer
	b.WriteByte(s.prefix)
	b.WriteByte(tagCount)
	b.WriteString(key.NS)
	b.WriteByte(0)
	b.WriteString(key.Name)
	return b.Bytes()
}

func (s *DiskStore[T]) incrCount(key model.AnnoKey, delta int64) error {
	v, err := s.m.Get(s.keyCount(key))
	if err != nil {
		return err
	}
	var cur int64
	if len(v) == 8 {
		cur = int64(binary.BigEndian.Uint64(v))
	}
	cur += delta
	if cur < 0 {
		cur = 0
	}
	var out [8]byte
	binary.BigEndian.PutUint64(out[:], uint64(cur))
	return s.m.Insert(s.keyCount(key), out[:])
}

func (s *DiskStore[T]) countOf(key model.AnnoKey) (uint64, error) {
	v, err := s.m.Get(s.keyCount(key))
	if err != nil || len(v) != 8 {
		return 0, err
	}
	return binary.BigEndian.Uint64(v), nil
}

func (s *DiskStore[T]) Insert(item T, a model.Annotation) error {
	if prior, ok, err := s.GetValueForItem(item, a.Key); err != nil {
		return err
	} else if ok {
		if _, err := s.m.Remove(s.keyByValue(a.Key, prior, item)); err != nil {
			return err
		}
		if err := s.incrCount(a.Key, -1); err != nil {
			return err
		}
	}
	if err := s.m.Insert(s.keyItemAnno(item, a.Key), []byte(a.Value)); err != nil {
		return err
	}
	if err := s.m.Insert(s.keyByValue(a.Key, a.Value, item), []byte{}); err != nil {
		return err
	}
	if err := s.incrCount(a.Key, 1); err != nil {
		return err
	}

	largest, ok, err := s.GetLargestItem()
	if err != nil {
		return err
	}
	if !ok || bytes.Compare(item.Encode(), largest.Encode()) > 0 {
		return s.m.Insert(s.keyMeta(), item.Encode())
	}
	return nil
}

func (s *DiskStore[T]) RemoveAnnotationForItem(item T, key model.AnnoKey) (string, bool, error) {
	v, err := s.m.Get(s.keyItemAnno(item, key))
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	value := string(v)
	if _, err := s.m.Remove(s.keyItemAnno(item, key)); err != nil {
		return "", false, err
	}
	if _, err := s.m.Remove(s.keyByValue(key, value, item)); err != nil {
		return "", false, err
	}
	if err := s.incrCount(key, -1); err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *DiskStore[T]) GetValueForItem(item T, key model.AnnoKey) (string, bool, error) {
	v, err := s.m.Get(s.keyItemAnno(item, key))
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return string(v), true, nil
}

func (s *DiskStore[T]) GetAnnotationsForItem(item T) ([]model.Annotation, error) {
	var out []model.Annotation
	prefix := s.prefixItemAnno(item)
	err := s.m.Range(prefix, prefixUpperBoundBytes(prefix), func(e diskmap.Entry) bool {
		ns, name := splitNSName(e.Key[len(prefix):])
		out = append(out, model.Annotation{Key: model.AnnoKey{NS: ns, Name: name}, Value: string(e.Value)})
		return true
	})
	return out, err
}

func (s *DiskStore[T]) GetAllKeysForItem(item T, ns *string, name *string) ([]model.AnnoKey, error) {
	annos, err := s.GetAnnotationsForItem(item)
	if err != nil {
		return nil, err
	}
	var out []model.AnnoKey
	n := ""
	if name != nil {
		n = *name
	}
	for _, a := range annos {
		if qualifies(a.Key, ns, n) {
			out = append(out, a.Key)
		}
	}
	return out, nil
}

func (s *DiskStore[T]) AnnotationKeys() ([]model.AnnoKey, error) {
	seen := map[model.AnnoKey]struct{}{}
	prefix := []byte{s.prefix, tagByValue}
	err := s.m.Range(prefix, prefixUpperBoundBytes(prefix), func(e diskmap.Entry) bool {
		ns, name, _, _ := splitByValueKey(e.Key[2:])
		seen[model.AnnoKey{NS: ns, Name: name}] = struct{}{}
		return true
	})
	if err != nil {
		return nil, err
	}
	out := make([]model.AnnoKey, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (s *DiskStore[T]) GetQNames(name string) ([]model.AnnoKey, error) {
	keys, err := s.AnnotationKeys()
	if err != nil {
		return nil, err
	}
	var out []model.AnnoKey
	for _, k := range keys {
		if k.Name == name {
			out = append(out, k)
		}
	}
	return out, nil
}

// qualifiedKeys scans the by-value index for distinct keys matching an
// optional namespace and required name.
func (s *DiskStore[T]) qualifiedKeys(ns *string, name string) ([]model.AnnoKey, error) {
	keys, err := s.AnnotationKeys()
	if err != nil {
		return nil, err
	}
	var out []model.AnnoKey
	for _, k := range keys {
		if qualifies(k, ns, name) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *DiskStore[T]) ExactAnnoSearch(ns *string, name string, vs ValueSearch) ([]Match[T], error) {
	keys, err := s.qualifiedKeys(ns, name)
	if err != nil {
		return nil, err
	}
	var out []Match[T]
	for _, key := range keys {
		prefix := s.prefixByKey(&key.NS, key.Name)
		err := s.m.Range(prefix, prefixUpperBoundBytes(prefix), func(e diskmap.Entry) bool {
			value, itemBytes := splitValueItem(e.Key[len(prefix):])
			keep := false
			switch vs.Kind {
			case Any:
				keep = true
			case Some:
				keep = value == vs.Value
			case NotSome:
				keep = value != vs.Value
			}
			if keep {
				out = append(out, Match[T]{Item: s.codec.Decode(itemBytes), Key: key})
			}
			return true
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *DiskStore[T]) RegexAnnoSearch(ns *string, name string, pattern string, negated bool) ([]Match[T], error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	keys, err := s.qualifiedKeys(ns, name)
	if err != nil {
		return nil, err
	}
	var out []Match[T]
	for _, key := range keys {
		prefix := s.prefixByKey(&key.NS, key.Name)
		err := s.m.Range(prefix, prefixUpperBoundBytes(prefix), func(e diskmap.Entry) bool {
			value, itemBytes := splitValueItem(e.Key[len(prefix):])
			if re.MatchString(value) != negated {
				out = append(out, Match[T]{Item: s.codec.Decode(itemBytes), Key: key})
			}
			return true
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *DiskStore[T]) GetLargestItem() (T, bool, error) {
	var zero T
	v, err := s.m.Get(s.keyMeta())
	if err != nil {
		return zero, false, err
	}
	if v == nil {
		return zero, false, nil
	}
	return s.codec.Decode(v), true, nil
}

func (s *DiskStore[T]) NumberOfAnnotationsByName(ns *string, name string) (int, error) {
	keys, err := s.qualifiedKeys(ns, name)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, key := range keys {
		c, err := s.countOf(key)
		if err != nil {
			return 0, err
		}
		total += c
	}
	return int(total), nil
}

func (s *DiskStore[T]) GuessMaxCount(ns *string, name, lowerValue, upperValue string) (int, error) {
	keys, err := s.qualifiedKeys(ns, name)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, key := range keys {
		h, err := s.loadHistogram(key)
		if err != nil {
			return 0, err
		}
		total += h.guessMaxCount(lowerValue, upperValue)
	}
	return int(total), nil
}

func (s *DiskStore[T]) GuessMaxCountRegex(ns *string, name, pattern string) (int, error) {
	prefix := regexLiteralPrefix(pattern)
	return s.GuessMaxCount(ns, name, prefix, prefixUpperBound(prefix))
}

type histogramRecord struct {
	Bounds   []string
	Universe uint64
}

func (s *DiskStore[T]) loadHistogram(key model.AnnoKey) (*histogram, error) {
	v, err := s.m.Get(s.keyHistogram(key))
	if err != nil || v == nil {
		return nil, err
	}
	var rec histogramRecord
	if err := json.Unmarshal(v, &rec); err != nil {
		return nil, err
	}
	return &histogram{bounds: rec.Bounds, universe: rec.Universe}, nil
}

// CalculateStatistics rebuilds the per-key histograms by sampling the
// by-value index, matching MemStore's approach but driven by diskmap
// range scans instead of in-memory maps.
func (s *DiskStore[T]) CalculateStatistics() error {
	keys, err := s.AnnotationKeys()
	if err != nil {
		return err
	}
	for _, key := range keys {
		var sample []string
		prefix := s.prefixByKey(&key.NS, key.Name)
		err := s.m.Range(prefix, prefixUpperBoundBytes(prefix), func(e diskmap.Entry) bool {
			value, _ := splitValueItem(e.Key[len(prefix):])
			sample = append(sample, value)
			return len(sample) < maxSampleSize
		})
		if err != nil {
			return err
		}
		count, err := s.countOf(key)
		if err != nil {
			return err
		}
		h := buildHistogram(sample, count)
		rec := histogramRecord{Bounds: h.bounds, Universe: h.universe}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := s.m.Insert(s.keyHistogram(key), data); err != nil {
			return err
		}
	}
	return nil
}

func splitNSName(b []byte) (ns, name string) {
	parts := bytes.SplitN(b, []byte{0}, 2)
	if len(parts) != 2 {
		return "", string(b)
	}
	return string(parts[0]), string(parts[1])
}

func splitByValueKey(b []byte) (ns, name, value string, item []byte) {
	parts := bytes.SplitN(b, []byte{0}, 4)
	if len(parts) != 4 {
		return "", "", "", nil
	}
	return string(parts[0]), string(parts[1]), string(parts[2]), parts[3]
}

func splitValueItem(b []byte) (value string, item []byte) {
	idx := bytes.IndexByte(b, 0)
	if idx < 0 {
		return string(b), nil
	}
	return string(b[:idx]), b[idx+1:]
}

func prefixUpperBoundBytes(p []byte) []byte {
	b := append([]byte(nil), p...)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] != 0xff {
			b[i]++
			return b[:i+1]
		}
	}
	return nil
}
