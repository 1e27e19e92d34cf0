// Package fuzzy provides similarity scorers for resolving misheard book
// names. Every scorer returns a value in [0, 100] where 100 means identical.
//
// Three scorers are available:
//
//   - [Edit]: optimal-string-alignment distance (Damerau-Levenshtein without
//     repeated edits of a substring) normalised by the longer input. A five
//     letter word one edit away scores 80.
//
//   - [JaroWinkler]: Jaro-Winkler similarity, which rewards shared prefixes.
//     It is lenient with short inputs ("is" scores 82 against "isaiah"), so it
//     is best combined with a higher threshold.
//
//   - [Phonetic]: wraps another scorer. When both inputs share a Double
//     Metaphone code and their Jaro-Winkler similarity clears a floor, the
//     remaining distance to a perfect score is halved. This recovers spellings
//     an ASR engine invents for words it has only heard ("filipians").
//
// All scorers are stateless and safe for concurrent use.
package fuzzy

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticFloor = 0.75

	// minPhoneticRunes keeps short function words ("look", "jail") from
	// riding a shared phonetic code into a book name.
	minPhoneticRunes = 5
)

// Scorer computes a similarity score in [0, 100] between two lowercase
// strings.
type Scorer interface {
	Score(a, b string) float64
}

// Edit scores by optimal-string-alignment edit distance.
type Edit struct{}

var _ Scorer = Edit{}

// Score returns 100 * (1 - distance / max(len(a), len(b))).
func (Edit) Score(a, b string) float64 {
	if a == b {
		return 100
	}
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 0
	}
	d := matchr.OSA(a, b)
	if d >= longest {
		return 0
	}
	return 100 * (1 - float64(d)/float64(longest))
}

// JaroWinkler scores by Jaro-Winkler similarity.
type JaroWinkler struct{}

var _ Scorer = JaroWinkler{}

// Score returns 100 times the Jaro-Winkler similarity of a and b.
func (JaroWinkler) Score(a, b string) float64 {
	if a == b {
		return 100
	}
	return 100 * matchr.JaroWinkler(a, b, false)
}

// Option configures a [Phonetic] scorer.
type Option func(*Phonetic)

// WithFloor sets the minimum Jaro-Winkler similarity (0.0–1.0) a phonetic
// match needs before it may lift the score. Default: 0.75.
func WithFloor(floor float64) Option {
	return func(p *Phonetic) {
		p.floor = floor
	}
}

// Phonetic lifts the score of a base [Scorer] for inputs that sound alike.
type Phonetic struct {
	base  Scorer
	floor float64
}

var _ Scorer = (*Phonetic)(nil)

// NewPhonetic wraps base. A nil base defaults to [Edit].
func NewPhonetic(base Scorer, opts ...Option) *Phonetic {
	if base == nil {
		base = Edit{}
	}
	p := &Phonetic{base: base, floor: defaultPhoneticFloor}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Score returns the base score, raised to 100 - (100 - 100*jw)/2 when a and
// b share a Double Metaphone code and their Jaro-Winkler similarity jw is at
// least the floor.
func (p *Phonetic) Score(a, b string) float64 {
	s := p.base.Score(a, b)
	if s >= 100 {
		return s
	}

	ca, cb := compact(a), compact(b)
	if utf8.RuneCountInString(ca) < minPhoneticRunes || utf8.RuneCountInString(cb) < minPhoneticRunes {
		return s
	}
	if !codesOverlap(ca, cb) {
		return s
	}
	jw := matchr.JaroWinkler(ca, cb, false)
	if jw < p.floor {
		return s
	}
	if lifted := 100 - (100-100*jw)/2; lifted > s {
		return lifted
	}
	return s
}

// ByName returns the scorer registered under name: "edit", "jaro-winkler" or
// "phonetic" (phonetic over edit). An empty name selects "phonetic".
func ByName(name string) (Scorer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "phonetic":
		return NewPhonetic(Edit{}), nil
	case "edit":
		return Edit{}, nil
	case "jaro-winkler", "jarowinkler":
		return JaroWinkler{}, nil
	}
	return nil, fmt.Errorf("fuzzy: unknown scorer %q; valid values: edit, jaro-winkler, phonetic", name)
}

// compact drops the spaces of a multi-word name so "song of solomon" encodes
// as one word.
func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// codesOverlap reports whether the Double Metaphone codes of a and b share a
// non-empty value.
func codesOverlap(a, b string) bool {
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	for _, x := range []string{ap, as} {
		if x == "" {
			continue
		}
		if x == bp || x == bs {
			return true
		}
	}
	return false
}
