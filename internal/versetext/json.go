package versetext

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"

	"github.com/MrWong99/lectern/internal/scripture"
)

// jsonBible mirrors the JSON bible layout.
type jsonBible struct {
	Books []struct {
		Name     string `json:"name"`
		Chapters []struct {
			Chapter int `json:"chapter"`
			Verses  []struct {
				Verse int    `json:"verse"`
				Text  string `json:"text"`
			} `json:"verses"`
		} `json:"chapters"`
	} `json:"books"`
}

type verseKey struct {
	book           string
	chapter, verse int
}

// Memory is an in-memory [Store]. It is read-only after construction and safe
// for concurrent use.
type Memory struct {
	verses []Verse
	index  map[verseKey]int
}

var _ Store = (*Memory)(nil)

// OpenJSON loads the JSON bible at path.
func OpenJSON(path string) (*Memory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("versetext: open %q: %w", path, err)
	}
	defer f.Close()
	m, err := LoadJSON(f)
	if err != nil {
		return nil, fmt.Errorf("versetext: load %q: %w", path, err)
	}
	return m, nil
}

// LoadJSON decodes a JSON bible from r. Two layouts are accepted: the nested
// {"books":[{"name","chapters":[{"chapter","verses":[{"verse","text"}]}]}]}
// form and a flat array of {"book","chapter","verse","text"} objects. Verse
// text is trimmed; a repeated verse keeps the last text seen.
func LoadJSON(r io.Reader) (*Memory, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read bible: %w", err)
	}

	var flat []Verse
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &flat); err != nil {
			return nil, fmt.Errorf("decode bible: %w", err)
		}
	} else {
		var nested jsonBible
		if err := json.Unmarshal(data, &nested); err != nil {
			return nil, fmt.Errorf("decode bible: %w", err)
		}
		for _, b := range nested.Books {
			for _, c := range b.Chapters {
				for _, v := range c.Verses {
					flat = append(flat, Verse{Book: b.Name, Chapter: c.Chapter, Verse: v.Verse, Text: v.Text})
				}
			}
		}
	}

	m := &Memory{index: make(map[verseKey]int, len(flat))}
	for _, v := range flat {
		v.Book, v.Text = strings.TrimSpace(v.Book), strings.TrimSpace(v.Text)
		if v.Book == "" {
			return nil, fmt.Errorf("decode bible: verse without a book name")
		}
		if v.Chapter < 1 || v.Verse < 1 {
			return nil, fmt.Errorf("decode bible: %s %d:%d is not a valid position", v.Book, v.Chapter, v.Verse)
		}
		k := verseKey{bookKey(v.Book), v.Chapter, v.Verse}
		if i, ok := m.index[k]; ok {
			m.verses[i] = v
			continue
		}
		m.index[k] = len(m.verses)
		m.verses = append(m.verses, v)
	}
	return m, nil
}

// Len returns the number of distinct verses.
func (m *Memory) Len() int { return len(m.verses) }

// Lookup implements [Store].
func (m *Memory) Lookup(ctx context.Context, ref scripture.Reference) ([]Verse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := bookKey(ref.Book)
	var out []Verse
	for v := ref.VerseStart; v <= ref.LastVerse(); v++ {
		if i, ok := m.index[verseKey{key, ref.Chapter, v}]; ok {
			out = append(out, m.verses[i])
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return out, nil
}

// All yields every verse in source order.
func (m *Memory) All() iter.Seq[Verse] {
	return func(yield func(Verse) bool) {
		for _, v := range m.verses {
			if !yield(v) {
				return
			}
		}
	}
}

// Close implements [Store]. It is a no-op.
func (m *Memory) Close() error { return nil }
