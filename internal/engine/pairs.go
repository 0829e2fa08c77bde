package engine

import (
	"math"
	"sort"

	"moviesims/pkg/types"
)

// PairStats holds the cosine sufficient statistics for one directed pair.
// x is the rating of the pair's first item, y of the second.
type PairStats struct {
	Count int64
	SumXX float64
	SumYY float64
	SumXY float64
}

// Add folds one co-rating into the statistics.
func (s *PairStats) Add(x, y float64) {
	s.Count++
	s.SumXX += x * x
	s.SumYY += y * y
	s.SumXY += x * y
}

// Merge adds another accumulator for the same key.
func (s *PairStats) Merge(o PairStats) {
	s.Count += o.Count
	s.SumXX += o.SumXX
	s.SumYY += o.SumYY
	s.SumXY += o.SumXY
}

// Score is the cosine similarity, or 0 when either vector is all zeros.
func (s PairStats) Score() float64 {
	if s.SumXX == 0 || s.SumYY == 0 {
		return 0
	}
	return s.SumXY / (math.Sqrt(s.SumXX) * math.Sqrt(s.SumYY))
}

// PairTable maps directed pairs to their accumulated statistics. A table is
// owned by one goroutine; partial tables are combined with Merge.
type PairTable struct {
	stats map[types.PairKey]*PairStats
}

func NewPairTable() *PairTable {
	return &PairTable{stats: make(map[types.PairKey]*PairStats, 1<<12)}
}

// Observe adds one (x, y) co-rating under key.
func (t *PairTable) Observe(key types.PairKey, x, y float64) {
	s := t.stats[key]
	if s == nil {
		s = &PairStats{}
		t.stats[key] = s
	}
	s.Add(x, y)
}

// Merge folds src into t. src is not modified.
func (t *PairTable) Merge(src *PairTable) {
	for k, v := range src.stats {
		t.mergeOne(k, *v)
	}
}

func (t *PairTable) mergeOne(k types.PairKey, v PairStats) {
	s := t.stats[k]
	if s == nil {
		s = &PairStats{}
		t.stats[k] = s
	}
	s.Merge(v)
}

// Get returns the statistics for key.
func (t *PairTable) Get(key types.PairKey) (PairStats, bool) {
	s, ok := t.stats[key]
	if !ok {
		return PairStats{}, false
	}
	return *s, true
}

// Len is the number of directed pair keys.
func (t *PairTable) Len() int { return len(t.stats) }

// Range calls fn for every key until fn returns false. Order is unspecified.
func (t *PairTable) Range(fn func(types.PairKey, PairStats) bool) {
	for k, v := range t.stats {
		if !fn(k, *v) {
			return
		}
	}
}

// Entries returns the wire form of the table, sorted by key.
func (t *PairTable) Entries() []types.PairEntry {
	out := make([]types.PairEntry, 0, len(t.stats))
	for k, v := range t.stats {
		out = append(out, types.PairEntry{
			A: k.A, B: k.B,
			Count: v.Count,
			SumXX: v.SumXX, SumYY: v.SumYY, SumXY: v.SumXY,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

// MergeEntries folds wire entries into t.
func (t *PairTable) MergeEntries(entries []types.PairEntry) {
	for _, e := range entries {
		t.mergeOne(types.PairKey{A: e.A, B: e.B}, PairStats{
			Count: e.Count,
			SumXX: e.SumXX, SumYY: e.SumYY, SumXY: e.SumXY,
		})
	}
}

// ExpandPairs calls emit for every combination of two positions in items,
// once per direction. A list of k items yields k*(k-1) calls.
func ExpandPairs(items []types.ItemRating, emit func(key types.PairKey, x, y float64)) {
	for a := 0; a < len(items); a++ {
		ia := items[a]
		for b := a + 1; b < len(items); b++ {
			ib := items[b]
			emit(types.PairKey{A: ia.ItemID, B: ib.ItemID}, ia.Value, ib.Value)
			emit(types.PairKey{A: ib.ItemID, B: ia.ItemID}, ib.Value, ia.Value)
		}
	}
}

// AddUsers expands and accumulates every user in the block.
func (t *PairTable) AddUsers(users []types.UserRatings) {
	for _, u := range users {
		if len(u.Items) < 2 {
			continue
		}
		ExpandPairs(u.Items, t.Observe)
	}
}

// AccumulateBlock is the unit of work a worker performs: a fresh table for
// one block of users.
func AccumulateBlock(users []types.UserRatings) *PairTable {
	t := NewPairTable()
	t.AddUsers(users)
	return t
}
