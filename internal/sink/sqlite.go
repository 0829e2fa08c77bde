package sink

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"moviesims/pkg/types"
)

// SQLite keeps the latest report in a single table. Each Write replaces the
// previous contents in one transaction.
type SQLite struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenSQLite opens or creates the database at path. ":memory:" is supported.
func OpenSQLite(path string) (*SQLite, error) {
	connStr := path
	if path == ":memory:" {
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("sink: open sqlite: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sink: ping sqlite: %w", err)
	}
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("sink: enable WAL mode: %w", err)
		}
	}

	s := &SQLite{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS similarities (
		rank       INTEGER PRIMARY KEY,
		anchor     TEXT NOT NULL,
		neighbor   TEXT NOT NULL,
		score      REAL NOT NULL,
		co_ratings INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_similarities_anchor ON similarities(anchor);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("sink: create schema: %w", err)
	}
	return nil
}

func (s *SQLite) Write(ctx context.Context, records []types.NamedSimilarity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sink: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM similarities"); err != nil {
		return fmt.Errorf("sink: clear similarities: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO similarities (rank, anchor, neighbor, score, co_ratings)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sink: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		if _, err := stmt.ExecContext(ctx, i, r.Anchor, r.Neighbor, r.Score, r.CoRatings); err != nil {
			return fmt.Errorf("sink: insert %q/%q: %w", r.Anchor, r.Neighbor, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sink: commit: %w", err)
	}
	return nil
}

// Count returns the number of stored records.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM similarities").Scan(&n)
	return n, err
}

func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
