package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"moviesims/pkg/types"
)

// TSV writes `anchor \t neighbor \t score \t co_ratings` lines.
type TSV struct {
	w      io.Writer
	closer io.Closer
}

// NewTSV writes to w. The caller keeps ownership of w.
func NewTSV(w io.Writer) *TSV { return &TSV{w: w} }

// CreateTSV opens path for writing; "-" means stdout.
func CreateTSV(path string) (*TSV, error) {
	if path == "-" {
		return NewTSV(os.Stdout), nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("sink: creating %s: %w", path, err)
	}
	return &TSV{w: f, closer: f}, nil
}

func (t *TSV) Write(ctx context.Context, records []types.NamedSimilarity) error {
	cw := csv.NewWriter(t.w)
	cw.Comma = '\t'

	row := make([]string, 4)
	for i, r := range records {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		row[0] = r.Anchor
		row[1] = r.Neighbor
		row[2] = strconv.FormatFloat(r.Score, 'f', -1, 64)
		row[3] = strconv.FormatInt(r.CoRatings, 10)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("sink: writing tsv: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("sink: writing tsv: %w", err)
	}
	return nil
}

func (t *TSV) Close() error {
	if t.closer == nil {
		return nil
	}
	return t.closer.Close()
}
