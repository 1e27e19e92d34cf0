package scripture

import (
	"fmt"
	"strings"

	"github.com/MrWong99/lectern/pkg/canon"
)

// Scorer computes a similarity score in [0, 100] between two lowercase
// strings. The scorers in package fuzzy implement it.
type Scorer interface {
	Score(a, b string) float64
}

// Resolver maps a misheard book name to a canonical one. It is read-only after
// construction and safe for concurrent use.
type Resolver struct {
	table     *canon.Table
	scorer    Scorer
	threshold float64
	bases     []string
}

// NewResolver returns a Resolver over table. Relevant options:
// [WithThreshold] and [WithScorer].
func NewResolver(table *canon.Table, opts ...Option) *Resolver {
	s := defaultSettings().with(opts)
	return &Resolver{
		table:     table,
		scorer:    s.scorer,
		threshold: s.threshold,
		bases:     table.Bases(),
	}
}

// Table returns the canon the resolver validates against.
func (r *Resolver) Table() *canon.Table { return r.table }

// Threshold returns the minimum accepted score.
func (r *Resolver) Threshold() float64 { return r.threshold }

// Match finds the base book name (lowercase, no ordinal) most similar to book.
// An exact match scores 100 and wins immediately; otherwise the highest score
// wins, ties going to the book that comes first in the canon. ok is false
// when the best score is below the threshold.
func (r *Resolver) Match(book string) (base string, score float64, ok bool) {
	q := strings.ToLower(strings.Join(strings.Fields(book), " "))
	if q == "" {
		return "", 0, false
	}

	best, bestScore := "", -1.0
	for _, b := range r.bases {
		if b == q {
			return b, 100, true
		}
		if s := r.scorer.Score(q, b); s > bestScore {
			best, bestScore = b, s
		}
	}
	if bestScore < r.threshold {
		return "", max(bestScore, 0), false
	}
	return best, bestScore, true
}

// Resolve returns the canonical name for an ordinal (0 when none was heard)
// and a book name.
//
// "John" takes an optional ordinal of 1 to 3 ("3 John"). Other books sharing
// a base name (Samuel, Kings, Corinthians, ...) require an ordinal within
// their rule; a missing or out-of-range one rejects the candidate rather than
// guessing. Books without a rule ignore the ordinal.
func (r *Resolver) Resolve(ordinal int, book string) (name string, score float64, ok bool) {
	base, score, ok := r.Match(book)
	if !ok {
		return "", score, false
	}

	name = base
	if rule, ruled := r.table.Rule(base); ruled {
		switch {
		case ordinal == 0 && rule.Optional:
		case ordinal < 1 || ordinal > rule.Max:
			return "", score, false
		default:
			name = fmt.Sprintf("%d %s", ordinal, base)
		}
	}

	name = canon.TitleCase(name)
	if r.table.ChapterCount(name) == 0 {
		return "", score, false
	}
	return name, score, true
}
