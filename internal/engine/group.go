package engine

import (
	"context"
	"errors"
	"io"
	"sort"

	"moviesims/internal/logging"
	"moviesims/pkg/types"
)

// checkEvery is how many ratings are grouped between context checks.
const checkEvery = 4096

// GroupByUser drains next until io.EOF and returns one entry per user, sorted
// by user id, with each user's items in input order. maxItems > 0 keeps only
// the first maxItems ratings of each user.
func GroupByUser(ctx context.Context, next func() (types.Rating, error), maxItems int) ([]types.UserRatings, error) {
	byUser := make(map[string][]types.ItemRating, 1024)
	truncated := make(map[string]struct{})

	for n := 0; ; n++ {
		if n%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		r, err := next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		items := byUser[r.UserID]
		if maxItems > 0 && len(items) >= maxItems {
			truncated[r.UserID] = struct{}{}
			continue
		}
		byUser[r.UserID] = append(items, types.ItemRating{ItemID: r.ItemID, Value: r.Value})
	}

	if len(truncated) > 0 {
		logging.Debug("capped items per user", "users", len(truncated), "max_items", maxItems)
	}

	users := make([]types.UserRatings, 0, len(byUser))
	for id, items := range byUser {
		users = append(users, types.UserRatings{UserID: id, Items: items})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users, nil
}

// SliceSource adapts a slice to the next-function shape GroupByUser reads.
func SliceSource(ratings []types.Rating) func() (types.Rating, error) {
	i := 0
	return func() (types.Rating, error) {
		if i >= len(ratings) {
			return types.Rating{}, io.EOF
		}
		r := ratings[i]
		i++
		return r, nil
	}
}
