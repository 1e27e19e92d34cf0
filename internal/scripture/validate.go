package scripture

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/MrWong99/lectern/pkg/canon"
)

// RangePolicy decides what happens to a candidate whose range end does not
// parse as a number. An end that parses but lies before the start verse or
// past the end of the chapter is always discarded on its own.
type RangePolicy int

const (
	// RangeDegrade keeps the candidate as a single verse.
	RangeDegrade RangePolicy = iota

	// RangeDrop discards the whole candidate.
	RangeDrop
)

// String returns the configuration name of p.
func (p RangePolicy) String() string {
	switch p {
	case RangeDegrade:
		return "degrade"
	case RangeDrop:
		return "drop"
	}
	return fmt.Sprintf("RangePolicy(%d)", int(p))
}

// ParseRangePolicy converts "degrade" or "drop" into a [RangePolicy]. An empty
// string selects [RangeDegrade].
func ParseRangePolicy(s string) (RangePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "degrade":
		return RangeDegrade, nil
	case "drop":
		return RangeDrop, nil
	}
	return 0, fmt.Errorf("scripture: unknown range policy %q; valid values: degrade, drop", s)
}

// Outcome is the result of validating one candidate. Outcomes are reported to
// metrics only; callers see accepted references and nothing else.
type Outcome string

const (
	OutcomeAccepted          Outcome = "accepted"
	OutcomeRangeDegraded     Outcome = "range_degraded"
	OutcomeUnresolvedBook    Outcome = "unresolved_book"
	OutcomeBadChapter        Outcome = "bad_chapter"
	OutcomeBadVerse          Outcome = "bad_verse"
	OutcomeChapterOutOfRange Outcome = "chapter_out_of_range"
	OutcomeVerseOutOfRange   Outcome = "verse_out_of_range"
	OutcomeRangeDropped      Outcome = "range_dropped"
)

// Accepted reports whether the outcome produced a reference.
func (o Outcome) Accepted() bool {
	return o == OutcomeAccepted || o == OutcomeRangeDegraded
}

// Validator turns candidates into bounds-checked references. It is read-only
// after construction and safe for concurrent use.
type Validator struct {
	resolver *Resolver
	table    *canon.Table
	policy   RangePolicy
}

// NewValidator returns a Validator resolving books through r. Relevant
// option: [WithRangePolicy].
func NewValidator(r *Resolver, opts ...Option) *Validator {
	s := defaultSettings().with(opts)
	return &Validator{resolver: r, table: r.Table(), policy: s.policy}
}

// Validate returns the reference c denotes, or false when any part of it is
// unresolvable or out of bounds.
func (v *Validator) Validate(c Candidate) (Reference, bool) {
	ref, o := v.Check(c)
	return ref, o.Accepted()
}

// Check is [Validator.Validate] reporting why a candidate was rejected.
func (v *Validator) Check(c Candidate) (Reference, Outcome) {
	ordinal := 0
	if c.Ordinal != "" {
		n, err := strconv.Atoi(c.Ordinal)
		if err != nil {
			return Reference{}, OutcomeUnresolvedBook
		}
		ordinal = n
	}
	book, _, ok := v.resolver.Resolve(ordinal, c.Book)
	if !ok {
		return Reference{}, OutcomeUnresolvedBook
	}

	chapter, ok := parseSpan(c.Chapter)
	if !ok {
		return Reference{}, OutcomeBadChapter
	}
	start := 1
	if c.HasVerse() {
		if start, ok = parseSpan(c.VerseStart); !ok {
			return Reference{}, OutcomeBadVerse
		}
	}

	if chapter < 1 || chapter > v.table.ChapterCount(book) {
		return Reference{}, OutcomeChapterOutOfRange
	}
	count := v.table.VerseCount(book, chapter)
	if start < 1 || start > count {
		return Reference{}, OutcomeVerseOutOfRange
	}

	ref := Reference{Book: book, Chapter: chapter, VerseStart: start}
	if !c.HasRange() {
		return ref, OutcomeAccepted
	}

	end, ok := parseSpan(c.VerseEnd)
	switch {
	case !ok && v.policy == RangeDrop:
		return Reference{}, OutcomeRangeDropped
	case !ok:
		return ref, OutcomeRangeDegraded
	case end == start:
		return ref, OutcomeAccepted
	case end > start && end <= count:
		ref.VerseEnd = end
		return ref, OutcomeAccepted
	default:
		return ref, OutcomeRangeDegraded
	}
}
