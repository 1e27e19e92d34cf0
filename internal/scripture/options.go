package scripture

import (
	"github.com/MrWong99/lectern/internal/observe"
	"github.com/MrWong99/lectern/internal/scripture/fuzzy"
	"github.com/MrWong99/lectern/pkg/canon"
)

// DefaultThreshold is the minimum similarity (0–100) a book name candidate
// needs to resolve.
const DefaultThreshold = 80.0

// settings collects the tunables shared by the recognition stages. Each
// constructor reads only the fields it needs.
type settings struct {
	table     *canon.Table
	scorer    Scorer
	threshold float64
	policy    RangePolicy
	metrics   *observe.Metrics
}

func defaultSettings() settings {
	return settings{
		scorer:    fuzzy.NewPhonetic(fuzzy.Edit{}),
		threshold: DefaultThreshold,
		policy:    RangeDegrade,
	}
}

func (s settings) with(opts []Option) settings {
	for _, o := range opts {
		o(&s)
	}
	return s
}

// Option configures a [Resolver], [Validator] or [Recognizer].
type Option func(*settings)

// WithThreshold sets the minimum book similarity score. Default: 80.
func WithThreshold(t float64) Option {
	return func(s *settings) {
		s.threshold = t
	}
}

// WithScorer sets the book similarity scorer. Default: phonetic over edit
// distance. A nil scorer is ignored.
func WithScorer(sc Scorer) Option {
	return func(s *settings) {
		if sc != nil {
			s.scorer = sc
		}
	}
}

// WithRangePolicy sets what happens to a candidate whose range end fails
// validation. Default: [RangeDegrade].
func WithRangePolicy(p RangePolicy) Option {
	return func(s *settings) {
		s.policy = p
	}
}

// WithCanon replaces the canon table of a [Recognizer] on
// [Recognizer.Reconfigure]. A nil table is ignored.
func WithCanon(t *canon.Table) Option {
	return func(s *settings) {
		if t != nil {
			s.table = t
		}
	}
}

// WithMetrics records recognition metrics on m. Default: none.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *settings) {
		s.metrics = m
	}
}
