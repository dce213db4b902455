// Package similarity implements the Liquid Engine's Similarity Resolver:
// when a backend has no recorded aggregate for a call's exact fingerprint,
// it finds the closest recorded fingerprint for that backend so the
// Selector still has an estimate to weigh.
package similarity

import (
	"sort"

	"github.com/agnivade/levenshtein"

	"github.com/nanopyx-go/liquidengine/pkg/fingerprint"
	"github.com/nanopyx-go/liquidengine/pkg/stats"
)

// Resolve finds the fingerprint in bucket closest to target.
//
// Primary match: the recorded fingerprint whose Score is closest to
// target's Score (|score(target) - score(candidate)| minimized).
//
// Fallback: when every candidate's score is indistinguishable from the
// target's own (e.g. none of them carry any shape/number content, so every
// score collapses to the empty product of 1), textual closeness via
// Levenshtein distance picks the lexically nearest recorded fingerprint
// instead — standing in for the original's difflib.get_close_matches.
//
// ok is false only when bucket is empty; Resolve always picks something
// from a non-empty bucket. Candidate keys are sorted before ranking so a
// tie between equally-close fingerprints always resolves to the same
// answer across runs.
func Resolve(bucket map[string]stats.Aggregate, target string) (string, bool) {
	if len(bucket) == 0 {
		return "", false
	}

	candidates := make([]string, 0, len(bucket))
	for fp := range bucket {
		candidates = append(candidates, fp)
	}
	sort.Strings(candidates)

	targetScore := fingerprint.Score(target)

	best := candidates[0]
	bestDelta := -1.0
	scoresVary := false
	for _, fp := range candidates {
		delta := targetScore - fingerprint.Score(fp)
		if delta < 0 {
			delta = -delta
		}
		if delta != 0 {
			scoresVary = true
		}
		if bestDelta < 0 || delta < bestDelta {
			bestDelta = delta
			best = fp
		}
	}

	// Every candidate's score equals the target's (e.g. all are 1 because no
	// fingerprint carries shape/number content): the primary metric cannot
	// discriminate, so fall back to textual closeness.
	if !scoresVary {
		return resolveByText(candidates, target), true
	}

	return best, true
}

func resolveByText(candidates []string, target string) string {
	best := candidates[0]
	bestDistance := levenshtein.ComputeDistance(target, best)
	for _, fp := range candidates[1:] {
		d := levenshtein.ComputeDistance(target, fp)
		if d < bestDistance {
			bestDistance = d
			best = fp
		}
	}
	return best
}
