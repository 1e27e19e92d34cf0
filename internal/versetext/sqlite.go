package versetext

import (
	"context"
	"database/sql"
	"fmt"
	"iter"

	"github.com/MrWong99/lectern/internal/scripture"

	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS verses (
	book    TEXT    NOT NULL COLLATE NOCASE,
	chapter INTEGER NOT NULL,
	verse   INTEGER NOT NULL,
	text    TEXT    NOT NULL,
	PRIMARY KEY (book, chapter, verse)
)`

// SQLite is a [Store] backed by a SQLite verses table. It is safe for
// concurrent use.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (or creates) the database at path and ensures the verses
// table exists. Use ":memory:" for a throwaway database.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := path + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
	if path == ":memory:" {
		dsn = path
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("versetext: open sqlite %q: %w", path, err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("versetext: create verses table: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Lookup implements [Store].
func (s *SQLite) Lookup(ctx context.Context, ref scripture.Reference) ([]Verse, error) {
	const q = `SELECT verse, text FROM verses
		WHERE book = ? AND chapter = ? AND verse BETWEEN ? AND ?
		ORDER BY verse`

	rows, err := s.db.QueryContext(ctx, q, ref.Book, ref.Chapter, ref.VerseStart, ref.LastVerse())
	if err != nil {
		return nil, fmt.Errorf("versetext: query %s: %w", ref, err)
	}
	defer rows.Close()

	var out []Verse
	for rows.Next() {
		v := Verse{Book: ref.Book, Chapter: ref.Chapter}
		if err := rows.Scan(&v.Verse, &v.Text); err != nil {
			return nil, fmt.Errorf("versetext: scan %s: %w", ref, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("versetext: query %s: %w", ref, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return out, nil
}

// Import writes verses in a single transaction, replacing existing rows for
// the same position. It returns the number of rows written.
func (s *SQLite) Import(ctx context.Context, verses iter.Seq[Verse]) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("versetext: begin import: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO verses (book, chapter, verse, text) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("versetext: prepare import: %w", err)
	}
	defer stmt.Close()

	n := 0
	for v := range verses {
		if _, err := stmt.ExecContext(ctx, v.Book, v.Chapter, v.Verse, v.Text); err != nil {
			return n, fmt.Errorf("versetext: insert %s %d:%d: %w", v.Book, v.Chapter, v.Verse, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("versetext: commit import: %w", err)
	}
	return n, nil
}

// Count returns the number of stored verses.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM verses`).Scan(&n); err != nil {
		return 0, fmt.Errorf("versetext: count: %w", err)
	}
	return n, nil
}

// Ping reports whether the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements [Store].
func (s *SQLite) Close() error { return s.db.Close() }
