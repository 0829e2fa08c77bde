package popular

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"moviesims/internal/data"
	"moviesims/internal/engine"
)

const input = "1\t10\t5\t0\n" +
	"2\t10\t4\t0\n" +
	"3\t10\t1\t0\n" +
	"1\t20\t3\t0\n" +
	"2\t30\t2\t0\n" +
	"3\t20\t2\t0\n" +
	"4\t40\t2\t0\n"

func TestCountAndTop(t *testing.T) {
	rr := data.NewRatingReader(strings.NewReader(input), data.FailOnMalformed)
	counts, err := Count(context.Background(), rr.Next)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if counts["10"] != 3 || counts["20"] != 2 || counts["30"] != 1 {
		t.Fatalf("counts = %v", counts)
	}

	names := data.ItemNames{"10": "Star Wars (1977)", "20": "Fargo (1996)", "30": "Heat (1995)", "40": "Babe (1995)"}
	top, err := Top(counts, 3, names)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	want := []Entry{
		{ItemID: "10", Name: "Star Wars (1977)", Count: 3},
		{ItemID: "20", Name: "Fargo (1996)", Count: 2},
		{ItemID: "30", Name: "Heat (1995)", Count: 1},
	}
	if !reflect.DeepEqual(top, want) {
		t.Errorf("Top =\n %+v\nwant\n %+v", top, want)
	}

	all, _ := Top(counts, 0, names)
	if len(all) != 4 {
		t.Errorf("Top(0) returned %d entries, want 4", len(all))
	}
}

func TestTopMissingName(t *testing.T) {
	_, err := Top(map[string]int64{"10": 1}, 5, data.ItemNames{})
	if !errors.Is(err, engine.ErrUnknownItem) {
		t.Errorf("err = %v, want ErrUnknownItem", err)
	}
}

func TestCountMalformed(t *testing.T) {
	rr := data.NewRatingReader(strings.NewReader("1\t10\n"), data.FailOnMalformed)
	_, err := Count(context.Background(), rr.Next)
	var pe *data.ParseError
	if !errors.As(err, &pe) {
		t.Errorf("err = %v, want *data.ParseError", err)
	}
}
