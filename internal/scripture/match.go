package scripture

import (
	"iter"
	"strings"
	"unicode"
)

// Candidate is an unvalidated reference captured from normalized text. All
// fields hold the raw words that were heard; number phrases are parsed by the
// [Validator].
type Candidate struct {
	// Ordinal is a single digit preceding the book ("2"), or empty.
	Ordinal string

	// Book is the text that anchored the capture ("corinthians", "genisis").
	Book string

	// Chapter is the chapter phrase ("thirteen", "22", "one hundred").
	Chapter string

	// VerseStart is the verse phrase, empty when no verse was heard.
	VerseStart string

	// VerseEnd is the range end phrase, empty when no range was heard.
	VerseEnd string

	// Text is the captured span of the input.
	Text string
}

// HasVerse reports whether a verse was heard.
func (c Candidate) HasVerse() bool { return c.VerseStart != "" }

// HasRange reports whether a range end was heard.
func (c Candidate) HasRange() bool { return c.VerseEnd != "" }

type tokenKind uint8

const (
	tokWord   tokenKind = iota
	tokDigits           // "16"
	tokRef              // "3:16"
	tokDash             // "-", en dash, em dash
)

type token struct {
	kind tokenKind
	text string
}

// lex splits text into words, digit runs, chapter:verse pairs and dashes.
// Everything else separates tokens.
func lex(text string) []token {
	rs := []rune(strings.ToLower(text))
	var toks []token
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsLetter(r):
			j := i + 1
			for j < len(rs) && unicode.IsLetter(rs[j]) {
				j++
			}
			toks = append(toks, token{tokWord, string(rs[i:j])})
			i = j
		case isASCIIDigit(r):
			j := i + 1
			for j < len(rs) && isASCIIDigit(rs[j]) {
				j++
			}
			if j+1 < len(rs) && rs[j] == ':' && isASCIIDigit(rs[j+1]) {
				k := j + 2
				for k < len(rs) && isASCIIDigit(rs[k]) {
					k++
				}
				toks = append(toks, token{tokRef, string(rs[i:k])})
				i = k
				continue
			}
			toks = append(toks, token{tokDigits, string(rs[i:j])})
			i = j
		case r == '-' || r == '–' || r == '—':
			toks = append(toks, token{tokDash, string(r)})
			i++
		default:
			i++
		}
	}
	return toks
}

func isASCIIDigit(r rune) bool { return r >= '0' && r <= '9' }

// ordinalWords covers ordinals the normalizer leaves alone so that "fourth
// john" is captured with its (invalid) ordinal instead of as plain "john".
var ordinalWords = map[string]string{
	"first": "1", "second": "2", "third": "3", "fourth": "4", "fifth": "5",
	"sixth": "6", "seventh": "7", "eighth": "8", "ninth": "9",
}

var (
	chapterWords   = map[string]bool{"chapter": true}
	verseWords     = map[string]bool{"verse": true, "verses": true}
	connectorWords = map[string]bool{"to": true, "through": true, "thru": true, "and": true}
)

func wordAt(toks []token, i int, set map[string]bool) bool {
	return i < len(toks) && toks[i].kind == tokWord && set[toks[i].text]
}

func isWordAt(toks []token, i int, w string) bool {
	return i < len(toks) && toks[i].kind == tokWord && toks[i].text == w
}

func isUnitAt(toks []token, i int) bool {
	if i >= len(toks) || toks[i].kind != tokWord {
		return false
	}
	_, ok := unitWords[toks[i].text]
	return ok
}

// ordinalAt returns the digit form of an ordinal token: a lone digit 1–9 or
// an ordinal word.
func ordinalAt(toks []token, i int) (string, bool) {
	t := toks[i]
	switch t.kind {
	case tokDigits:
		if len(t.text) == 1 && t.text != "0" {
			return t.text, true
		}
	case tokWord:
		d, ok := ordinalWords[t.text]
		return d, ok
	}
	return "", false
}

// bookWord reports whether t may be part of a book name.
func bookWord(t token) bool {
	if t.kind != tokWord {
		return false
	}
	w := t.text
	if isNumberWord(w) || chapterWords[w] || verseWords[w] || connectorWords[w] {
		return false
	}
	_, ord := ordinalWords[w]
	return !ord
}

// Matcher finds reference candidates in normalized text. It is read-only
// after construction and safe for concurrent use.
type Matcher struct {
	resolver *Resolver
	maxWords int
}

// NewMatcher returns a Matcher that anchors captures on book names r accepts.
func NewMatcher(r *Resolver) *Matcher {
	return &Matcher{resolver: r, maxWords: max(r.Table().MaxWords(), 1)}
}

// Candidates returns the captures in text in order of appearance. A capture
// is a book name, an optional "chapter", a chapter phrase, an optional
// "verse"/"verses" with a verse phrase and an optional range connector
// ("-", "to", "through", "and") with an end phrase. A number phrase right
// after the chapter is read as the verse ("john three sixteen"). Captures
// without a chapter are skipped.
//
// The sequence is single-use; scanning resumes after each capture.
func (m *Matcher) Candidates(text string) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		toks := lex(text)
		for i := 0; i < len(toks); {
			c, next, ok := m.capture(toks, i)
			if !ok {
				i++
				continue
			}
			if !yield(c) {
				return
			}
			i = next
		}
	}
}

func (m *Matcher) capture(toks []token, i int) (Candidate, int, bool) {
	var c Candidate
	start := i
	if ord, ok := ordinalAt(toks, i); ok {
		c.Ordinal = ord
		i++
	}

	book, j, ok := m.anchor(toks, i)
	if !ok {
		return Candidate{}, 0, false
	}
	c.Book = book

	if wordAt(toks, j, chapterWords) {
		j++
	}

	if j < len(toks) && toks[j].kind == tokRef {
		c.Chapter, c.VerseStart, _ = strings.Cut(toks[j].text, ":")
		j++
	} else {
		ch, k, ok := phrase(toks, j)
		if !ok {
			return Candidate{}, 0, false
		}
		c.Chapter, j = ch, k

		if wordAt(toks, j, verseWords) {
			if v, k, ok := phrase(toks, j+1); ok {
				c.VerseStart, j = v, k
			}
		} else if v, k, ok := phrase(toks, j); ok {
			c.VerseStart, j = v, k
		}
	}

	if c.VerseStart != "" {
		if end, k, ok := rangeEnd(toks, j); ok {
			c.VerseEnd, j = end, k
		}
	}

	c.Text = joinTokens(toks[start:j])
	return c, j, true
}

// anchor finds the book name starting at toks[i]: the best scoring window of
// up to maxWords book words, the longer window winning a tie.
func (m *Matcher) anchor(toks []token, i int) (book string, end int, ok bool) {
	score := -1.0
	for n := 1; n <= m.maxWords && i+n <= len(toks); n++ {
		if !bookWord(toks[i+n-1]) {
			break
		}
		window := joinTokens(toks[i : i+n])
		if _, s, matched := m.resolver.Match(window); matched && s >= score {
			book, end, score, ok = window, i+n, s, true
		}
	}
	return book, end, ok
}

// rangeEnd reads a connector, an optional "verse"/"verses" and an end phrase.
func rangeEnd(toks []token, i int) (string, int, bool) {
	if i >= len(toks) || (toks[i].kind != tokDash && !wordAt(toks, i, connectorWords)) {
		return "", i, false
	}
	k := i + 1
	if wordAt(toks, k, verseWords) {
		k++
	}
	return phrase(toks, k)
}

// phrase reads one well-formed number at toks[i]: a digit run, or number
// words of the form [unit] hundred [and] [tail] or tail alone, where tail is
// tens [-] [unit], a teen or a unit. "and" after "hundred" is dropped.
func phrase(toks []token, i int) (string, int, bool) {
	if i >= len(toks) {
		return "", i, false
	}
	if toks[i].kind == tokDigits {
		return toks[i].text, i + 1, true
	}

	var words []string
	j := i
	switch {
	case isUnitAt(toks, j) && isWordAt(toks, j+1, hundredWord):
		words = append(words, toks[j].text, hundredWord)
		j += 2
	case isWordAt(toks, j, hundredWord):
		words = append(words, hundredWord)
		j++
	}
	hundred := j > i

	k := j
	if hundred && isWordAt(toks, k, "and") {
		if _, n := tail(toks, k+1); n > k+1 {
			k++
		}
	}
	t, n := tail(toks, k)
	if n == k {
		if !hundred {
			return "", i, false
		}
		return strings.Join(words, " "), j, true
	}
	words = append(words, t)
	return strings.Join(words, " "), n, true
}

func tail(toks []token, i int) (string, int) {
	if i >= len(toks) || toks[i].kind != tokWord {
		return "", i
	}
	w := toks[i].text
	if _, ok := tensWords[w]; ok {
		if i+2 < len(toks) && toks[i+1].kind == tokDash && isUnitAt(toks, i+2) {
			return w + "-" + toks[i+2].text, i + 3
		}
		if isUnitAt(toks, i+1) {
			return w + " " + toks[i+1].text, i + 2
		}
		return w, i + 1
	}
	if _, ok := teenWords[w]; ok {
		return w, i + 1
	}
	if _, ok := unitWords[w]; ok {
		return w, i + 1
	}
	return "", i
}

func joinTokens(toks []token) string {
	var b strings.Builder
	for i, t := range toks {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(t.text)
	}
	return b.String()
}
