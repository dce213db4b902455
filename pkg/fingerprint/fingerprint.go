// Package fingerprint reduces a dispatcher call's arguments to a canonical,
// comparable string and extracts the shape/scalar content back out of it.
//
// The textual form is part of the on-disk contract of the Statistics Store
// (pkg/stats): identical calls must produce byte-identical fingerprints
// across process restarts and across hosts.
package fingerprint

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Shaped is implemented by arguments whose cost is driven by a tensor shape
// (e.g. an image or array wrapper). Args without a Shape() are rendered by
// their printable form instead.
type Shaped interface {
	Shape() []int
}

// Fingerprint renders args and kwargs into a deterministic string.
//
// Each positional argument that is an int or float becomes "number(<value>)".
// Each argument implementing Shaped becomes "shape(<d0,d1,...>)". Anything
// else is rendered with its default %v form. kwargs are rendered in
// ascending key order: Go map iteration order is randomized, unlike the
// insertion-ordered dict the Python original reprs, so sorting keys is what
// makes this function pure and reproducible in Go.
func Fingerprint(args []any, kwargs map[string]any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = render(a)
	}

	keys := make([]string, 0, len(kwargs))
	for k := range kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kvParts := make([]string, len(keys))
	for i, k := range keys {
		kvParts[i] = fmt.Sprintf("%s: %s", k, render(kwargs[k]))
	}

	return fmt.Sprintf("([%s], {%s})", strings.Join(parts, ", "), strings.Join(kvParts, ", "))
}

func render(v any) string {
	switch n := v.(type) {
	case int:
		return fmt.Sprintf("number(%d)", n)
	case int32:
		return fmt.Sprintf("number(%d)", n)
	case int64:
		return fmt.Sprintf("number(%d)", n)
	case float32:
		return fmt.Sprintf("number(%s)", strconv.FormatFloat(float64(n), 'g', -1, 32))
	case float64:
		return fmt.Sprintf("number(%s)", strconv.FormatFloat(n, 'g', -1, 64))
	}

	if s, ok := v.(Shaped); ok {
		dims := make([]string, len(s.Shape()))
		for i, d := range s.Shape() {
			dims[i] = strconv.Itoa(d)
		}
		return fmt.Sprintf("shape(%s)", strings.Join(dims, ","))
	}

	return fmt.Sprintf("%v", v)
}

// Parse extracts every numeric dimension appearing inside a "shape(...)"
// occurrence and every scalar inside a "number(...)" occurrence, in document
// order. It is not a reversible parse of Fingerprint's output — it exists
// solely to feed Score.
func Parse(fp string) (shapes, numbers []float64) {
	shapes = extractTokens(fp, "shape(", true)
	numbers = extractTokens(fp, "number(", false)
	return shapes, numbers
}

// extractTokens scans txt for prefix(...) occurrences and collects the
// numeric content inside. When splitOnComma is true (shape tokens), each
// comma-separated element inside the parens is collected individually.
func extractTokens(txt, prefix string, splitOnComma bool) []float64 {
	var out []float64
	marker := 0
	for {
		start := strings.Index(txt[marker:], prefix)
		if start == -1 {
			break
		}
		start += marker
		contentStart := start + len(prefix)
		end := strings.Index(txt[contentStart:], ")")
		if end == -1 {
			break
		}
		end += contentStart

		content := txt[contentStart:end]
		if splitOnComma {
			for _, elem := range strings.Split(content, ",") {
				elem = strings.TrimSpace(elem)
				if elem == "" {
					continue
				}
				if f, err := strconv.ParseFloat(elem, 64); err == nil {
					out = append(out, f)
				}
			}
		} else {
			if f, err := strconv.ParseFloat(strings.TrimSpace(content), 64); err == nil {
				out = append(out, f)
			}
		}

		marker = end + 1
	}
	return out
}

// scoreCache memoizes Score results, keyed by an xxhash of the fingerprint
// string, since the Similarity Resolver recomputes scores for every bucket
// entry on every cache miss.
var scoreCache sync.Map // map[uint64]float64

// Score computes the product-of-shapes times product-of-numbers for a
// fingerprint (empty products count as 1), used by the Similarity Resolver
// to rank recorded fingerprints by proximity to a target call.
func Score(fp string) float64 {
	key := xxhash.Sum64String(fp)
	if v, ok := scoreCache.Load(key); ok {
		return v.(float64)
	}

	shapes, numbers := Parse(fp)
	score := 1.0
	for _, s := range shapes {
		score *= s
	}
	for _, n := range numbers {
		score *= n
	}

	scoreCache.Store(key, score)
	return score
}
