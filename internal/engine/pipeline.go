package engine

import (
	"context"
	"fmt"
	"io"
	"time"

	"moviesims/internal/data"
	"moviesims/internal/logging"
	"moviesims/pkg/types"
)

// Stats describes one pipeline run.
type Stats struct {
	Ratings  int `json:"ratings"`
	Skipped  int `json:"skipped"`
	Users    int `json:"users"`
	PairKeys int `json:"pair_keys"`
	Results  int `json:"results"`
	Records  int `json:"records"`

	Group      time.Duration `json:"group_ns"`
	Accumulate time.Duration `json:"accumulate_ns"`
	Reduce     time.Duration `json:"reduce_ns"`
	Shape      time.Duration `json:"shape_ns"`
}

// Pipeline wires the three stages together.
type Pipeline struct {
	Executor        Executor
	Thresholds      Thresholds
	Policy          data.MalformedPolicy
	MaxItemsPerUser int
}

// Compute runs grouping, accumulation and the quality filter over a rating
// stream. The context is checked at every stage barrier.
func (p *Pipeline) Compute(ctx context.Context, ratings io.Reader) ([]types.SimilarityResult, Stats, error) {
	var st Stats
	exec := p.Executor
	if exec == nil {
		exec = LocalExecutor{Workers: 1}
	}

	t0 := time.Now()
	rr := data.NewRatingReader(ratings, p.Policy)
	users, err := GroupByUser(ctx, rr.Next, p.MaxItemsPerUser)
	st.Ratings, st.Skipped = rr.Read(), rr.Skipped()
	if err != nil {
		return nil, st, fmt.Errorf("grouping ratings: %w", err)
	}
	st.Users = len(users)
	st.Group = time.Since(t0)
	logging.Info("grouped ratings by user", "ratings", st.Ratings, "skipped", st.Skipped, "users", st.Users, "took", st.Group)

	if err := ctx.Err(); err != nil {
		return nil, st, err
	}

	t0 = time.Now()
	table, err := exec.Accumulate(ctx, users)
	if err != nil {
		return nil, st, fmt.Errorf("accumulating pairs: %w", err)
	}
	st.PairKeys = table.Len()
	st.Accumulate = time.Since(t0)
	logging.Info("accumulated item pairs", "pair_keys", st.PairKeys, "took", st.Accumulate)

	if err := ctx.Err(); err != nil {
		return nil, st, err
	}

	t0 = time.Now()
	results := Reduce(table, p.Thresholds)
	st.Results = len(results)
	st.Reduce = time.Since(t0)
	logging.Info("filtered similarities", "kept", st.Results,
		"min_co_ratings", p.Thresholds.MinCoRatings, "min_score", p.Thresholds.MinScore, "took", st.Reduce)

	return results, st, nil
}

// Run is Compute followed by output shaping against lookup.
func (p *Pipeline) Run(ctx context.Context, ratings io.Reader, lookup Lookup) (*Report, Stats, error) {
	results, st, err := p.Compute(ctx, ratings)
	if err != nil {
		return nil, st, err
	}
	if err := ctx.Err(); err != nil {
		return nil, st, err
	}

	t0 := time.Now()
	rep, err := Shape(results, lookup)
	if err != nil {
		return nil, st, fmt.Errorf("shaping report: %w", err)
	}
	st.Records = rep.Len()
	st.Shape = time.Since(t0)
	logging.Info("shaped report", "anchors", len(rep.Anchors), "records", st.Records, "took", st.Shape)

	return rep, st, nil
}
