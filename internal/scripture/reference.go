package scripture

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Reference is a validated scripture reference. VerseEnd is 0 for a single
// verse and greater than VerseStart for a range.
type Reference struct {
	Book       string `json:"book"`
	Chapter    int    `json:"chapter"`
	VerseStart int    `json:"verse_start"`
	VerseEnd   int    `json:"verse_end,omitempty"`
}

// IsRange reports whether r spans more than one verse.
func (r Reference) IsRange() bool { return r.VerseEnd > r.VerseStart }

// LastVerse returns the final verse r covers.
func (r Reference) LastVerse() int {
	if r.IsRange() {
		return r.VerseEnd
	}
	return r.VerseStart
}

// String formats r as "Book C:V" or "Book C:V1-V2".
func (r Reference) String() string {
	if r.IsRange() {
		return fmt.Sprintf("%s %d:%d-%d", r.Book, r.Chapter, r.VerseStart, r.VerseEnd)
	}
	return fmt.Sprintf("%s %d:%d", r.Book, r.Chapter, r.VerseStart)
}

// ErrBadReference is returned by [ParseReference] for text that is not in
// canonical form.
var ErrBadReference = errors.New("scripture: malformed reference")

// ParseReference parses the canonical form produced by [Reference.String].
// The book name is taken verbatim; bounds are not checked.
func ParseReference(s string) (Reference, error) {
	s = strings.TrimSpace(s)
	i := strings.LastIndexByte(s, ' ')
	if i <= 0 {
		return Reference{}, fmt.Errorf("%w: %q", ErrBadReference, s)
	}
	book, loc := strings.TrimSpace(s[:i]), s[i+1:]

	ch, verses, ok := strings.Cut(loc, ":")
	if !ok {
		return Reference{}, fmt.Errorf("%w: %q has no chapter:verse", ErrBadReference, s)
	}
	start, end, ranged := strings.Cut(verses, "-")

	ref := Reference{Book: book}
	var err error
	if ref.Chapter, err = positive(ch); err != nil {
		return Reference{}, fmt.Errorf("%w: chapter in %q: %w", ErrBadReference, s, err)
	}
	if ref.VerseStart, err = positive(start); err != nil {
		return Reference{}, fmt.Errorf("%w: verse in %q: %w", ErrBadReference, s, err)
	}
	if ranged {
		if ref.VerseEnd, err = positive(end); err != nil {
			return Reference{}, fmt.Errorf("%w: range end in %q: %w", ErrBadReference, s, err)
		}
		if ref.VerseEnd < ref.VerseStart {
			return Reference{}, fmt.Errorf("%w: range in %q runs backwards", ErrBadReference, s)
		}
		if ref.VerseEnd == ref.VerseStart {
			ref.VerseEnd = 0
		}
	}
	return ref, nil
}

func positive(s string) (int, error) {
	if !isDigits(s) || len(s) > maxDigits {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("%d is not positive", n)
	}
	return n, nil
}
