package sink

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"moviesims/internal/config"
	"moviesims/pkg/types"
)

var report = []types.NamedSimilarity{
	{Anchor: "Toy Story (1995)", Neighbor: "Babe (1995)", Score: 0.9876, CoRatings: 42},
	{Anchor: "Toy Story (1995)", Neighbor: "Heat (1995)", Score: 1, CoRatings: 12},
}

func TestTSV(t *testing.T) {
	var buf bytes.Buffer
	if err := NewTSV(&buf).Write(context.Background(), report); err != nil {
		t.Fatalf("Write: %v", err)
	}
	want := "Toy Story (1995)\tBabe (1995)\t0.9876\t42\n" +
		"Toy Story (1995)\tHeat (1995)\t1\t12\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestSQLiteReplacesReport(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	if err := s.Write(ctx, report); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Write(ctx, report[:1]); err != nil {
		t.Fatalf("second Write: %v", err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1 after replacement", n)
	}

	var got types.NamedSimilarity
	err = s.db.QueryRowContext(ctx, "SELECT anchor, neighbor, score, co_ratings FROM similarities").
		Scan(&got.Anchor, &got.Neighbor, &got.Score, &got.CoRatings)
	if err != nil {
		t.Fatal(err)
	}
	if got != report[0] {
		t.Errorf("row = %+v, want %+v", got, report[0])
	}
}

type failingSink struct{ closed bool }

func (f *failingSink) Write(context.Context, []types.NamedSimilarity) error {
	return errors.New("disk full")
}
func (f *failingSink) Close() error { f.closed = true; return nil }

func TestMultiStopsOnError(t *testing.T) {
	var buf bytes.Buffer
	bad := &failingSink{}
	m := Multi{bad, NewTSV(&buf)}

	if err := m.Write(context.Background(), report); err == nil {
		t.Error("expected error")
	}
	if buf.Len() != 0 {
		t.Error("sink after the failing one was written")
	}
	if err := m.Close(); err != nil || !bad.closed {
		t.Errorf("Close err = %v, closed = %v", err, bad.closed)
	}
}

func TestConnectMongoNeedsURI(t *testing.T) {
	_, err := ConnectMongo(context.Background(), config.OutputConfig{})
	if !errors.Is(err, ErrMissingMongoURI) {
		t.Errorf("err = %v, want ErrMissingMongoURI", err)
	}
}

func TestFromConfig(t *testing.T) {
	dir := t.TempDir()
	m, err := FromConfig(context.Background(), config.OutputConfig{
		TSVPath:    dir + "/report.tsv",
		SQLitePath: dir + "/report.db",
	})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	defer m.Close()

	if len(m) != 2 {
		t.Fatalf("got %d sinks, want 2", len(m))
	}
	if err := m.Write(context.Background(), report); err != nil {
		t.Fatalf("Write: %v", err)
	}
}
