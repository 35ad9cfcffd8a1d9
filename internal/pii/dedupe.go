package pii

import "sort"

// Deduplicate resolves overlapping candidate spans into a non-overlapping
// set under a deterministic priority: earlier start first, then longer span
// (more context, fewer truncated entities), then higher score.
//
// The scan is greedy interval selection with that priority. Callers merging
// new candidates into an already-deduplicated set must re-run Deduplicate on
// the union rather than append, because a new candidate can outrank a
// previously accepted span.
func Deduplicate(candidates []Entity) []Entity {
	if len(candidates) <= 1 {
		out := make([]Entity, len(candidates))
		copy(out, candidates)
		return out
	}

	sorted := make([]Entity, len(candidates))
	copy(sorted, candidates)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.Length() != b.Length() {
			return a.Length() > b.Length()
		}
		return a.Score > b.Score
	})

	accepted := make([]Entity, 0, len(sorted))
	for _, candidate := range sorted {
		overlaps := false
		for _, kept := range accepted {
			if candidate.Overlaps(kept) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			accepted = append(accepted, candidate)
		}
	}

	return accepted
}
