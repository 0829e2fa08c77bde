// Package engine computes item-to-item cosine similarities from user ratings.
//
// The work is split in three stages separated by barriers: ratings are grouped
// by user, every user's items are expanded into directed pairs whose rating
// statistics are accumulated, and the surviving pairs are re-keyed by item name
// into a report. Accumulation is the expensive stage and runs behind the
// Executor interface so it can be done by local goroutines or remote workers.
package engine

import (
	"context"
	"errors"
	"fmt"

	"moviesims/pkg/types"
)

// ErrUnknownItem means a rated item has no entry in the item name table.
var ErrUnknownItem = errors.New("engine: item id missing from lookup table")

// LookupError names the item that could not be resolved.
type LookupError struct {
	ItemID string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%v: %q", ErrUnknownItem, e.ItemID)
}

func (e *LookupError) Unwrap() error { return ErrUnknownItem }

// Lookup resolves item ids to display names. Implementations must be safe for
// concurrent reads.
type Lookup interface {
	Name(id string) (string, bool)
}

// Executor runs the pair expansion and accumulation stage over a set of users
// and returns the fully merged table.
type Executor interface {
	Accumulate(ctx context.Context, users []types.UserRatings) (*PairTable, error)
}
