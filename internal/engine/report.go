package engine

import (
	"sort"

	"moviesims/pkg/types"
)

// Neighbor is one similar item listed under an anchor.
type Neighbor struct {
	ItemID    string  `json:"item_id"`
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
	CoRatings int64   `json:"co_ratings"`
}

// Anchor groups every neighbor of one item name, highest score first.
type Anchor struct {
	Name      string     `json:"name"`
	Neighbors []Neighbor `json:"neighbors"`
}

// Report is the shaped output: anchors sorted by name.
type Report struct {
	Anchors []Anchor

	index map[string]int
}

// Records flattens the report into output lines in report order.
func (r *Report) Records() []types.NamedSimilarity {
	var out []types.NamedSimilarity
	for _, a := range r.Anchors {
		for _, n := range a.Neighbors {
			out = append(out, types.NamedSimilarity{
				Anchor:    a.Name,
				Neighbor:  n.Name,
				Score:     n.Score,
				CoRatings: n.CoRatings,
			})
		}
	}
	return out
}

// Neighbors returns the list for one anchor name.
func (r *Report) Neighbors(anchor string) ([]Neighbor, bool) {
	i, ok := r.index[anchor]
	if !ok {
		return nil, false
	}
	return r.Anchors[i].Neighbors, true
}

// Len is the number of output records.
func (r *Report) Len() int {
	n := 0
	for _, a := range r.Anchors {
		n += len(a.Neighbors)
	}
	return n
}

type anchorKey struct {
	name  string
	score float64
}

// Shape re-keys results by (anchor name, score), groups them and orders the
// groups by name ascending then score descending. Neighbors sharing a score
// are ordered by name, then id. Any id missing from lookup aborts shaping with
// a *LookupError.
func Shape(results []types.SimilarityResult, lookup Lookup) (*Report, error) {
	groups := make(map[anchorKey][]Neighbor)
	for _, res := range results {
		anchor, ok := lookup.Name(res.Pair.A)
		if !ok {
			return nil, &LookupError{ItemID: res.Pair.A}
		}
		other, ok := lookup.Name(res.Pair.B)
		if !ok {
			return nil, &LookupError{ItemID: res.Pair.B}
		}
		k := anchorKey{name: anchor, score: res.Score}
		groups[k] = append(groups[k], Neighbor{
			ItemID:    res.Pair.B,
			Name:      other,
			Score:     res.Score,
			CoRatings: res.CoRatings,
		})
	}

	keys := make([]anchorKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].name != keys[j].name {
			return keys[i].name < keys[j].name
		}
		return keys[i].score > keys[j].score
	})

	rep := &Report{index: make(map[string]int)}
	for _, k := range keys {
		nbrs := groups[k]
		sort.Slice(nbrs, func(i, j int) bool {
			if nbrs[i].Name != nbrs[j].Name {
				return nbrs[i].Name < nbrs[j].Name
			}
			return nbrs[i].ItemID < nbrs[j].ItemID
		})

		i, ok := rep.index[k.name]
		if !ok {
			i = len(rep.Anchors)
			rep.index[k.name] = i
			rep.Anchors = append(rep.Anchors, Anchor{Name: k.name})
		}
		rep.Anchors[i].Neighbors = append(rep.Anchors[i].Neighbors, nbrs...)
	}
	return rep, nil
}
