package scripture

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

var (
	ordinalRe = regexp.MustCompile(`\b(first|second|third)\b`)
	versesRe  = regexp.MustCompile(`\bvs\b\.?`)
	verseRe   = regexp.MustCompile(`\bv\b\.?`)
	variantRe = regexp.MustCompile(`\b(psalms|revelations|songs of solomon)\b`)
)

var ordinalDigits = map[string]string{
	"first":  "1",
	"second": "2",
	"third":  "3",
}

var variants = map[string]string{
	"psalms":           "psalm",
	"revelations":      "revelation",
	"songs of solomon": "song of solomon",
}

// Normalize rewrites a transcript fragment into the lexical form the
// [Matcher] expects: case-folded, ASCII-width, without diacritics, single
// spaced, with ordinal words as digits, "v"/"vs" spelled out and plural
// book names singular.
//
// Normalize is idempotent.
func Normalize(text string) string {
	s := fold(text)
	s = strings.Join(strings.Fields(s), " ")

	s = ordinalRe.ReplaceAllStringFunc(s, func(w string) string { return ordinalDigits[w] })
	s = versesRe.ReplaceAllLiteralString(s, "verses ")
	s = verseRe.ReplaceAllLiteralString(s, "verse ")
	s = variantRe.ReplaceAllStringFunc(s, func(w string) string { return variants[w] })

	// The abbreviation rewrites may leave a trailing or doubled space.
	return strings.Join(strings.Fields(s), " ")
}

// fold lower-cases s, maps full-width forms to ASCII and strips combining
// marks. On a transform error it falls back to plain lower-casing.
func fold(s string) string {
	// Casers are stateful; one chain per call.
	t := transform.Chain(
		width.Fold,
		cases.Fold(),
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}
