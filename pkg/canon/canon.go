// Package canon holds the chapter and verse structure of the biblical canons
// that references are validated against.
//
// A [Table] is immutable after construction. [New] checks the integrity of the
// supplied rows and refuses malformed input, because every downstream bounds
// check trusts the table. The built-in tables ([Protestant] and [Catholic]) are
// constructed once per call and may be shared freely between goroutines.
//
// Book names are title-cased per word and may start with an ordinal digit
// ("1 Corinthians"). The base of a book name is its lowercase form without the
// ordinal ("corinthians"); ordinal rules are keyed by base.
package canon

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Built-in canon identifiers accepted by [ByName].
const (
	NameProtestant = "protestant"
	NameCatholic   = "catholic"
)

// Book is one row of a canon table.
type Book struct {
	// Name is the canonical, title-cased display name (e.g. "1 Corinthians").
	Name string

	// OSIS is the OSIS book abbreviation (e.g. "1Cor").
	OSIS string

	// Chapters holds the verse count of each chapter; index 0 is chapter 1.
	Chapters []int
}

// ChapterCount returns the number of chapters in b.
func (b Book) ChapterCount() int { return len(b.Chapters) }

// VerseCount returns the number of verses in the 1-based chapter, or 0 when
// the chapter does not exist.
func (b Book) VerseCount(chapter int) int {
	if chapter < 1 || chapter > len(b.Chapters) {
		return 0
	}
	return b.Chapters[chapter-1]
}

// OrdinalRule constrains the ordinal prefix of books sharing a base name.
type OrdinalRule struct {
	// Max is the highest valid ordinal (e.g. 2 for "2 Kings").
	Max int

	// Optional reports whether the bare base name is itself a book, as with
	// "John" next to "1 John".
	Optional bool
}

// Table is an immutable canon. The zero value is not usable; build one with
// [New], [Protestant] or [Catholic].
type Table struct {
	name     string
	books    []Book
	index    map[string]int
	rules    map[string]OrdinalRule
	bases    []string
	maxWords int
}

// ErrMalformed wraps every integrity failure reported by [New].
var ErrMalformed = errors.New("canon: malformed table")

// New validates books and rules and returns the resulting table. All
// integrity problems are reported together, each wrapping [ErrMalformed].
func New(name string, books []Book, rules map[string]OrdinalRule) (*Table, error) {
	t := &Table{
		name:  name,
		books: make([]Book, 0, len(books)),
		index: make(map[string]int, len(books)),
		rules: make(map[string]OrdinalRule, len(rules)),
	}

	var errs []error
	if len(books) == 0 {
		errs = append(errs, fmt.Errorf("%w: %q has no books", ErrMalformed, name))
	}

	seenBase := make(map[string]bool, len(books))
	for i, b := range books {
		prefix := fmt.Sprintf("books[%d] %q", i, b.Name)
		switch {
		case strings.TrimSpace(b.Name) == "":
			errs = append(errs, fmt.Errorf("%w: books[%d] has no name", ErrMalformed, i))
			continue
		case TitleCase(b.Name) != b.Name:
			errs = append(errs, fmt.Errorf("%w: %s is not title-cased", ErrMalformed, prefix))
		}
		key := strings.ToLower(b.Name)
		if prev, dup := t.index[key]; dup {
			errs = append(errs, fmt.Errorf("%w: %s duplicates books[%d]", ErrMalformed, prefix, prev))
			continue
		}
		if len(b.Chapters) == 0 {
			errs = append(errs, fmt.Errorf("%w: %s has no chapters", ErrMalformed, prefix))
		}
		for ch, n := range b.Chapters {
			if n < 1 {
				errs = append(errs, fmt.Errorf("%w: %s chapter %d has %d verses", ErrMalformed, prefix, ch+1, n))
			}
		}

		t.index[key] = len(t.books)
		t.books = append(t.books, Book{Name: b.Name, OSIS: b.OSIS, Chapters: slices.Clone(b.Chapters)})
		if w := len(strings.Fields(b.Name)); w > t.maxWords {
			t.maxWords = w
		}

		base, ord := SplitOrdinal(key)
		if !seenBase[base] {
			seenBase[base] = true
			t.bases = append(t.bases, base)
		}
		if ord > 0 {
			if _, ok := rules[base]; !ok {
				errs = append(errs, fmt.Errorf("%w: %s has an ordinal but no rule for %q", ErrMalformed, prefix, base))
			}
		}
	}

	for base, r := range rules {
		if r.Max < 1 || r.Max > 9 {
			errs = append(errs, fmt.Errorf("%w: ordinal rule %q max %d out of range 1..9", ErrMalformed, base, r.Max))
			continue
		}
		for n := 1; n <= r.Max; n++ {
			if _, ok := t.index[fmt.Sprintf("%d %s", n, base)]; !ok {
				errs = append(errs, fmt.Errorf("%w: ordinal rule %q expects book \"%d %s\"", ErrMalformed, base, n, base))
			}
		}
		_, bare := t.index[base]
		if r.Optional != bare {
			errs = append(errs, fmt.Errorf("%w: ordinal rule %q optional=%t but bare book present=%t", ErrMalformed, base, r.Optional, bare))
		}
		t.rules[base] = r
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return t, nil
}

// Must panics if err is non-nil and returns t otherwise. It is meant for
// compiled-in tables whose corruption must abort startup.
func Must(t *Table, err error) *Table {
	if err != nil {
		panic(err)
	}
	return t
}

// Protestant returns the 66-book canon (KJV versification).
func Protestant() *Table {
	return Must(New(NameProtestant, protestantBooks(), protestantRules()))
}

// Catholic returns the 73-book canon including the deuterocanonical books.
func Catholic() *Table {
	return Must(New(NameCatholic, catholicBooks(), catholicRules()))
}

// ByName returns the built-in table registered under name. An empty name
// selects the Protestant canon.
func ByName(name string) (*Table, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameProtestant:
		return Protestant(), nil
	case NameCatholic:
		return Catholic(), nil
	}
	return nil, fmt.Errorf("canon: unknown canon %q; valid values: %s, %s", name, NameProtestant, NameCatholic)
}

// Name returns the identifier the table was built with.
func (t *Table) Name() string { return t.name }

// Len returns the number of books.
func (t *Table) Len() int { return len(t.books) }

// Books returns a copy of every book in canon order.
func (t *Table) Books() []Book {
	out := make([]Book, len(t.books))
	for i, b := range t.books {
		out[i] = Book{Name: b.Name, OSIS: b.OSIS, Chapters: slices.Clone(b.Chapters)}
	}
	return out
}

// Lookup finds a book by name, ignoring case.
func (t *Table) Lookup(name string) (Book, bool) {
	i, ok := t.index[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Book{}, false
	}
	b := t.books[i]
	return Book{Name: b.Name, OSIS: b.OSIS, Chapters: slices.Clone(b.Chapters)}, true
}

// ChapterCount returns the number of chapters in the named book, or 0 when the
// book is unknown.
func (t *Table) ChapterCount(name string) int {
	i, ok := t.index[strings.ToLower(name)]
	if !ok {
		return 0
	}
	return len(t.books[i].Chapters)
}

// VerseCount returns the verse count of a 1-based chapter, or 0 when the book
// or chapter is unknown.
func (t *Table) VerseCount(name string, chapter int) int {
	i, ok := t.index[strings.ToLower(name)]
	if !ok {
		return 0
	}
	return t.books[i].VerseCount(chapter)
}

// Bases returns the distinct lowercase base names in canon order.
func (t *Table) Bases() []string { return slices.Clone(t.bases) }

// Rule returns the ordinal rule for a lowercase base name.
func (t *Table) Rule(base string) (OrdinalRule, bool) {
	r, ok := t.rules[base]
	return r, ok
}

// MaxWords returns the word count of the longest book name, including the
// ordinal.
func (t *Table) MaxWords() int { return t.maxWords }

// SplitOrdinal separates a leading single-digit ordinal from a book name.
// It returns the remainder unchanged and 0 when there is no ordinal.
func SplitOrdinal(name string) (base string, ordinal int) {
	if len(name) > 2 && name[0] >= '1' && name[0] <= '9' && unicode.IsSpace(rune(name[1])) {
		return strings.TrimSpace(name[2:]), int(name[0] - '0')
	}
	return name, 0
}

// TitleCase upper-cases the first letter of every word and lower-cases the
// rest, the form all canonical book names take.
func TitleCase(s string) string {
	// Casers carry state and are not safe for concurrent use.
	return cases.Title(language.English).String(s)
}
