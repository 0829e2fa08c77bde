package engine

import (
	"sort"

	"moviesims/pkg/types"
)

// Thresholds is the quality filter. Both comparisons are strict.
type Thresholds struct {
	MinCoRatings int64
	MinScore     float64
}

// DefaultThresholds keeps pairs co-rated by more than 10 users with a
// similarity above 0.95.
var DefaultThresholds = Thresholds{MinCoRatings: 10, MinScore: 0.95}

// Keep reports whether a pair with the given score and co-rating count passes.
func (th Thresholds) Keep(score float64, coRatings int64) bool {
	return coRatings > th.MinCoRatings && score > th.MinScore
}

// Reduce scores every pair in the table and returns the ones that pass th,
// sorted by (A, B). Must only be called on a fully merged table.
func Reduce(t *PairTable, th Thresholds) []types.SimilarityResult {
	var out []types.SimilarityResult
	t.Range(func(k types.PairKey, s PairStats) bool {
		if s.Count <= th.MinCoRatings {
			return true
		}
		score := s.Score()
		if th.Keep(score, s.Count) {
			out = append(out, types.SimilarityResult{Pair: k, Score: score, CoRatings: s.Count})
		}
		return true
	})

	sort.Slice(out, func(i, j int) bool {
		if out[i].Pair.A != out[j].Pair.A {
			return out[i].Pair.A < out[j].Pair.A
		}
		return out[i].Pair.B < out[j].Pair.B
	})
	return out
}
