// Package selector implements the Liquid Engine's Selector: turning
// per-backend throughput estimates into a chosen backend via either
// argmax (exploitation) or weighted-random sampling (exploration).
package selector

import (
	"github.com/nanopyx-go/liquidengine/pkg/similarity"
	"github.com/nanopyx-go/liquidengine/pkg/stats"
)

// Rand is the one-method interface the weighted-random exploration policy
// needs. Injecting it (rather than reaching for a package-level RNG) lets
// tests assert exact empirical frequencies with a fixed seed.
type Rand interface {
	// Float64 returns a pseudo-random number in [0.0, 1.0).
	Float64() float64
}

// Select picks one backend from enabled.
//
// For each enabled backend, an aggregate is obtained via an exact Store
// lookup, falling back to the Similarity Resolver when the exact
// fingerprint is unrecorded for that backend. Backends with neither yield
// no throughput estimate and are excluded from the vote.
//
// If no enabled backend has any estimate, def is returned unchanged.
// Otherwise: when explore is true, one backend is drawn by weighted random
// sampling with weights = throughput^2; when false, the backend with
// maximum throughput is returned, ties broken by first occurrence in
// enabled's order.
func Select(enabled []stats.Designation, fp string, store *stats.Store, def stats.Designation, explore bool, rng Rand) stats.Designation {
	type candidate struct {
		backend    stats.Designation
		throughput float64
	}

	var candidates []candidate
	for _, backend := range enabled {
		agg, ok := store.Get(backend, fp)
		if !ok {
			bucket := store.Bucket(backend)
			if resolved, found := similarity.Resolve(bucket, fp); found {
				agg = bucket[resolved]
				ok = true
			}
		}
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{backend: backend, throughput: agg.Throughput()})
	}

	if len(candidates) == 0 {
		return def
	}

	if !explore {
		best := candidates[0]
		for _, c := range candidates[1:] {
			if c.throughput > best.throughput {
				best = c
			}
		}
		return best.backend
	}

	weights := make([]float64, len(candidates))
	total := 0.0
	for i, c := range candidates {
		w := c.throughput * c.throughput
		weights[i] = w
		total += w
	}

	if total == 0 {
		// every candidate has zero throughput (e.g. every recorded run took
		// 0 elapsed seconds): uniform choice keeps the draw well-defined.
		idx := int(rng.Float64() * float64(len(candidates)))
		if idx >= len(candidates) {
			idx = len(candidates) - 1
		}
		return candidates[idx].backend
	}

	draw := rng.Float64() * total
	cumulative := 0.0
	for i, w := range weights {
		cumulative += w
		if draw < cumulative {
			return candidates[i].backend
		}
	}
	// floating-point edge case: draw landed exactly on total.
	return candidates[len(candidates)-1].backend
}
