package anno

import (
	"sort"
	"strings"
)

const (
	maxHistogramBuckets = 250
	maxSampleSize       = 2500
)

// histogram is an equi-depth histogram over the sampled values of one
// AnnoKey, used only for guess_max_count's cardinality estimate (spec
// §4.1). Stale or approximate bucket bounds never affect query
// correctness, only plan quality.
type histogram struct {
	bounds   []string // sorted bucket lower bounds, len <= maxHistogramBuckets
	universe uint64   // total annotation count this key had at build time
}

// buildHistogram samples up to maxSampleSize values (already gathered by
// the caller, e.g. via reservoir sampling while scanning the inverted
// index) and buckets them into up to maxHistogramBuckets equi-depth
// buckets.
func buildHistogram(values []string, universe uint64) *histogram {
	sample := values
	if len(sample) > maxSampleSize {
		sample = sample[:maxSampleSize]
	}
	sorted := append([]string(nil), sample...)
	sort.Strings(sorted)

	if len(sorted) == 0 {
		return &histogram{universe: universe}
	}

	nBuckets := maxHistogramBuckets
	if nBuckets > len(sorted) {
		nBuckets = len(sorted)
	}
	if nBuckets == 0 {
		nBuckets = 1
	}

	bounds := make([]string, 0, nBuckets)
	step := float64(len(sorted)) / float64(nBuckets)
	for i := 0; i < nBuckets; i++ {
		idx := int(float64(i) * step)
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		bounds = append(bounds, sorted[idx])
	}
	return &histogram{bounds: bounds, universe: universe}
}

// guessMaxCount estimates how many items fall in [lo, hi] by counting
// overlapping buckets and scaling by the sampled universe size, per
// spec's guess_max_count formula.
func (h *histogram) guessMaxCount(lo, hi string) uint64 {
	if h == nil || len(h.bounds) == 0 {
		return 0
	}
	total := len(h.bounds)
	overlap := 0
	for i, b := range h.bounds {
		bucketHi := "￿￿￿￿"
		if i+1 < len(h.bounds) {
			bucketHi = h.bounds[i+1]
		}
		if rangesOverlap(b, bucketHi, lo, hi) {
			overlap++
		}
	}
	if total == 0 {
		return 0
	}
	return uint64(float64(overlap) / float64(total) * float64(h.universe))
}

func rangesOverlap(aLo, aHi, bLo, bHi string) bool {
	if bHi != "" && aLo > bHi {
		return false
	}
	if bLo != "" && aHi < bLo {
		return false
	}
	return true
}

// regexLiteralPrefix extracts the longest literal (metacharacter-free)
// prefix of a regex pattern, used by guess_max_count_regex to turn a
// pattern into a range query [prefix, prefix+MAX_CHAR) per spec §4.1.
func regexLiteralPrefix(pattern string) string {
	const meta = `.*+?()[]{}|^$\`
	var b strings.Builder
	for _, r := range pattern {
		if strings.ContainsRune(meta, r) {
			break
		}
		b.WriteRune(r)
	}
	return b.String()
}

// hasRegexMetachar reports whether pattern contains any regex
// metacharacter; specs without one degrade to the exact-value path.
func hasRegexMetachar(pattern string) bool {
	return strings.ContainsAny(pattern, `.*+?()[]{}|^$\`)
}

// prefixUpperBound returns the smallest string greater than every
// string having prefix p, i.e. p's exclusive range upper bound, by
// incrementing its last byte (with carry). Returns "" (unbounded) if p
// is empty or all 0xff bytes.
func prefixUpperBound(p string) string {
	b := []byte(p)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] != 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return ""
}
