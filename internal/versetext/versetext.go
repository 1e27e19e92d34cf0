// Package versetext looks up the text of recognised references in an offline
// bible so that display sinks can show the verse instead of the bare
// reference.
//
// Two [Store] implementations exist: [Memory], loaded from a JSON bible
// ({"books":[{"name","chapters":[{"chapter","verses":[{"verse","text"}]}]}]}),
// and [SQLite], a verses(book, chapter, verse, text) table that the
// import-bible command fills from the JSON form.
package versetext

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/lectern/internal/scripture"
)

// ErrNotFound is returned when none of the requested verses exist.
var ErrNotFound = errors.New("versetext: verse not found")

// Format identifies the on-disk form of a bible.
type Format string

const (
	FormatJSON   Format = "json"
	FormatSQLite Format = "sqlite"
)

// Verse is one verse of text.
type Verse struct {
	Book    string `json:"book"`
	Chapter int    `json:"chapter"`
	Verse   int    `json:"verse"`
	Text    string `json:"text"`
}

// Store looks up verse text.
type Store interface {
	// Lookup returns the verses of ref that exist, in verse order. It returns
	// an error wrapping [ErrNotFound] when none do. Book names compare
	// case-insensitively.
	Lookup(ctx context.Context, ref scripture.Reference) ([]Verse, error)

	// Close releases the store's resources.
	Close() error
}

// Open opens the bible at path in the given format.
func Open(path string, format Format) (Store, error) {
	switch format {
	case FormatJSON, "":
		return OpenJSON(path)
	case FormatSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("versetext: unknown format %q", format)
	}
}

// Render formats the text of ref for display: one "Book C:V — text" line
// per verse found, newline separated. A reference that is not canonical or
// whose verses are all missing renders as "Verse not found: <ref>".
func Render(ctx context.Context, s Store, ref string) string {
	r, err := scripture.ParseReference(ref)
	if err != nil {
		return notFound(ref)
	}
	verses, err := s.Lookup(ctx, r)
	if err != nil || len(verses) == 0 {
		return notFound(ref)
	}
	var b strings.Builder
	for i, v := range verses {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s %d:%d — %s", r.Book, v.Chapter, v.Verse, v.Text)
	}
	return b.String()
}

func notFound(ref string) string { return "Verse not found: " + ref }

// bookKey folds a book name for case-insensitive comparison.
func bookKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
