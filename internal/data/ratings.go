// Package data reads the two pipeline inputs: the tab-separated rating
// stream and the pipe-delimited item name table.
package data

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"moviesims/internal/logging"
	"moviesims/pkg/types"
)

var (
	// ErrTooFewFields is returned for lines with fewer than 4 tab-separated fields.
	ErrTooFewFields = errors.New("data: rating line needs user, item, rating and timestamp fields")
	// ErrBadRating is returned when the rating field is not a number.
	ErrBadRating = errors.New("data: rating is not a number")
)

// ParseError describes one malformed rating line.
type ParseError struct {
	Line int // 1-based; 0 when parsed outside a reader
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %v: %q", e.Line, e.Err, e.Text)
	}
	return fmt.Sprintf("%v: %q", e.Err, e.Text)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseRating converts `user \t item \t rating \t timestamp` into a Rating.
// Extra trailing fields are ignored.
func ParseRating(line string) (types.Rating, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Split(line, "\t")
	if len(fields) < 4 {
		return types.Rating{}, &ParseError{Text: line, Err: ErrTooFewFields}
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
	if err != nil {
		return types.Rating{}, &ParseError{Text: line, Err: fmt.Errorf("%w: %w", ErrBadRating, err)}
	}

	return types.Rating{
		UserID: strings.TrimSpace(fields[0]),
		ItemID: strings.TrimSpace(fields[1]),
		Value:  value,
	}, nil
}

// MalformedPolicy decides what the reader does with a bad line.
type MalformedPolicy int

const (
	// FailOnMalformed aborts at the first bad line.
	FailOnMalformed MalformedPolicy = iota
	// SkipMalformed counts the line, logs it and keeps going.
	SkipMalformed
)

// ParsePolicy maps the config names "fail" and "skip".
func ParsePolicy(s string) (MalformedPolicy, error) {
	switch s {
	case "", "fail":
		return FailOnMalformed, nil
	case "skip":
		return SkipMalformed, nil
	}
	return FailOnMalformed, fmt.Errorf("data: unknown malformed-line policy %q", s)
}

// RatingReader streams Ratings out of an io.Reader.
type RatingReader struct {
	sc      *bufio.Scanner
	policy  MalformedPolicy
	line    int
	read    int
	skipped int
}

// NewRatingReader wraps r. Blank lines are ignored.
func NewRatingReader(r io.Reader, policy MalformedPolicy) *RatingReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &RatingReader{sc: sc, policy: policy}
}

// Next returns the next rating, or io.EOF once the input is exhausted.
func (rr *RatingReader) Next() (types.Rating, error) {
	for rr.sc.Scan() {
		rr.line++
		text := rr.sc.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}

		r, err := ParseRating(text)
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				pe.Line = rr.line
			}
			if rr.policy == SkipMalformed {
				rr.skipped++
				logging.Warn("skipping malformed rating", "line", rr.line, "err", err)
				continue
			}
			return types.Rating{}, err
		}
		rr.read++
		return r, nil
	}
	if err := rr.sc.Err(); err != nil {
		return types.Rating{}, fmt.Errorf("data: reading ratings: %w", err)
	}
	return types.Rating{}, io.EOF
}

// Read is the number of ratings returned so far.
func (rr *RatingReader) Read() int { return rr.read }

// Skipped is the number of malformed lines dropped under SkipMalformed.
func (rr *RatingReader) Skipped() int { return rr.skipped }
