package data

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseRating(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		user    string
		item    string
		value   float64
		wantErr error
	}{
		{name: "movielens line", line: "196\t242\t3\t881250949", user: "196", item: "242", value: 3},
		{name: "crlf", line: "1\t2\t4.5\t0\r\n", user: "1", item: "2", value: 4.5},
		{name: "extra fields", line: "1\t2\t5\t0\tx", user: "1", item: "2", value: 5},
		{name: "three fields", line: "1\t2\t5", wantErr: ErrTooFewFields},
		{name: "spaces not tabs", line: "1 2 5 0", wantErr: ErrTooFewFields},
		{name: "bad rating", line: "1\t2\tfive\t0", wantErr: ErrBadRating},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseRating(tt.line)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				var pe *ParseError
				if !errors.As(err, &pe) {
					t.Fatalf("expected *ParseError, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if r.UserID != tt.user || r.ItemID != tt.item || r.Value != tt.value {
				t.Errorf("got %+v", r)
			}
		})
	}
}

const sample = "1\t10\t5\t0\n\n1\t11\t4\t0\nbroken line\n2\t10\tx\t0\n2\t11\t3\t0\n"

func TestRatingReaderFailFast(t *testing.T) {
	rr := NewRatingReader(strings.NewReader(sample), FailOnMalformed)

	for i := 0; i < 2; i++ {
		if _, err := rr.Next(); err != nil {
			t.Fatalf("rating %d: %v", i, err)
		}
	}

	_, err := rr.Next()
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if pe.Line != 4 {
		t.Errorf("Line = %d, want 4", pe.Line)
	}
	if !errors.Is(err, ErrTooFewFields) {
		t.Errorf("expected ErrTooFewFields, got %v", err)
	}
}

func TestRatingReaderSkip(t *testing.T) {
	rr := NewRatingReader(strings.NewReader(sample), SkipMalformed)

	var got []string
	for {
		r, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, r.UserID+":"+r.ItemID)
	}

	want := []string{"1:10", "1:11", "2:11"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("got %v, want %v", got, want)
	}
	if rr.Skipped() != 2 {
		t.Errorf("Skipped = %d, want 2", rr.Skipped())
	}
	if rr.Read() != 3 {
		t.Errorf("Read = %d, want 3", rr.Read())
	}
}

func TestParsePolicy(t *testing.T) {
	if p, err := ParsePolicy("skip"); err != nil || p != SkipMalformed {
		t.Errorf("skip -> %v, %v", p, err)
	}
	if p, err := ParsePolicy(""); err != nil || p != FailOnMalformed {
		t.Errorf("empty -> %v, %v", p, err)
	}
	if _, err := ParsePolicy("drop"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestReadItemNames(t *testing.T) {
	input := "1|Toy Story (1995)|01-Jan-1995||http://x|0|0\n" +
		"2|GoldenEye (1995)|01-Jan-1995\r\n" +
		"3|Caf\xe9 Lumi\xc3\xa8re (1999)|x\n" +
		"nonsense\n" +
		" 4 |Four|\n"

	names, err := ReadItemNames(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadItemNames: %v", err)
	}

	tests := map[string]string{
		"1": "Toy Story (1995)",
		"2": "GoldenEye (1995)",
		"3": "Caf Lumire (1999)",
		"4": "Four",
	}
	for id, want := range tests {
		got, ok := names.Name(id)
		if !ok {
			t.Errorf("id %s missing", id)
			continue
		}
		if got != want {
			t.Errorf("Name(%s) = %q, want %q", id, got, want)
		}
	}
	if len(names) != 4 {
		t.Errorf("len = %d, want 4", len(names))
	}
}

func TestLoadItemNamesMissingFile(t *testing.T) {
	_, err := LoadItemNames(filepath.Join(t.TempDir(), "u.item"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}
