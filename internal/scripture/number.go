package scripture

import (
	"strconv"
	"strings"
)

// Number words by role. The matcher needs the roles to find phrase
// boundaries; the parser only needs the values.
var (
	zeroWords = map[string]int{"zero": 0, "o": 0, "oh": 0}

	unitWords = map[string]int{
		"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
		"six": 6, "seven": 7, "eight": 8, "nine": 9,
	}

	teenWords = map[string]int{
		"ten": 10, "eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14,
		"fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
	}

	tensWords = map[string]int{
		"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
		"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
	}
)

const hundredWord = "hundred"

// maxDigits bounds a digit-string number; no chapter or verse has more than
// three digits and the bound keeps Atoi clear of overflow.
const maxDigits = 4

func numberValue(w string) (int, bool) {
	for _, m := range []map[string]int{unitWords, teenWords, tensWords, zeroWords} {
		if v, ok := m[w]; ok {
			return v, true
		}
	}
	return 0, false
}

func isNumberWord(w string) bool {
	if w == hundredWord {
		return true
	}
	_, ok := numberValue(w)
	return ok
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// SplitNumberWords splits a number phrase on whitespace and hyphens:
// "twenty-one" becomes ["twenty", "one"].
func SplitNumberWords(span string) []string {
	return strings.FieldsFunc(span, func(r rune) bool {
		return r == '-' || r == ' ' || r == '\t' || r == '\n'
	})
}

// ParseNumber converts a spoken number into an integer. A single digit string
// is parsed directly. Otherwise number words are summed left to right and
// "hundred" multiplies the running total by 100 (a zero total counts as one),
// so "one hundred five" is 105 and "hundred twenty" is 120.
//
// Any word that is not a number word fails the whole phrase, as does an empty
// one.
func ParseNumber(words []string) (int, bool) {
	if len(words) == 0 {
		return 0, false
	}
	if len(words) == 1 && isDigits(words[0]) {
		if len(words[0]) > maxDigits {
			return 0, false
		}
		n, err := strconv.Atoi(words[0])
		if err != nil {
			return 0, false
		}
		return n, true
	}

	current := 0
	for _, w := range words {
		w = strings.ToLower(w)
		if w == hundredWord {
			current = max(current, 1) * 100
			continue
		}
		v, ok := numberValue(w)
		if !ok {
			return 0, false
		}
		current += v
	}
	return current, true
}

// parseSpan is ParseNumber over SplitNumberWords.
func parseSpan(span string) (int, bool) {
	return ParseNumber(SplitNumberWords(span))
}
