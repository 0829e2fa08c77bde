// Package popular counts how often each item was rated.
package popular

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"moviesims/internal/engine"
	"moviesims/pkg/types"
)

// Entry is one item in the popularity ranking.
type Entry struct {
	ItemID string `json:"item_id"`
	Name   string `json:"name"`
	Count  int64  `json:"count"`
}

// Count drains next until io.EOF and returns the number of ratings per item.
func Count(ctx context.Context, next func() (types.Rating, error)) (map[string]int64, error) {
	counts := make(map[string]int64, 2048)
	for n := 0; ; n++ {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		r, err := next()
		if errors.Is(err, io.EOF) {
			return counts, nil
		}
		if err != nil {
			return nil, fmt.Errorf("popular: %w", err)
		}
		counts[r.ItemID]++
	}
}

// Top returns the n most rated items, count descending then id ascending,
// with names resolved through lookup. n <= 0 returns every item.
func Top(counts map[string]int64, n int, lookup engine.Lookup) ([]Entry, error) {
	out := make([]Entry, 0, len(counts))
	for id, c := range counts {
		out = append(out, Entry{ItemID: id, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ItemID < out[j].ItemID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}

	for i := range out {
		name, ok := lookup.Name(out[i].ItemID)
		if !ok {
			return nil, &engine.LookupError{ItemID: out[i].ItemID}
		}
		out[i].Name = name
	}
	return out, nil
}
