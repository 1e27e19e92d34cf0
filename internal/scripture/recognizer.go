// Package scripture recognises scripture references in speech transcripts.
//
// Recognition runs in stages, each usable on its own:
//
//  1. [Normalize] folds case, width and diacritics and rewrites ordinal words,
//     verse abbreviations and plural book names.
//  2. A [Matcher] scans the normalized text for [Candidate] captures anchored
//     on book names.
//  3. A [Resolver] maps the heard book name onto the canon through a fuzzy
//     [Scorer], applying ordinal rules ("3 John", "2 Kings").
//  4. A [Validator] parses the spoken numbers ([ParseNumber]) and checks them
//     against the chapter and verse counts of the canon.
//
// A [Recognizer] composes the stages and records every accepted [Reference]
// in a recency buffer. Recognition never fails loudly: transcript noise is
// the steady state, so a candidate that does not validate is dropped.
package scripture

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/lectern/internal/recency"
	"github.com/MrWong99/lectern/pkg/canon"
)

// Detection is a reference confirmed by one [Recognizer.Recognize] call.
type Detection struct {
	Reference Reference

	// Text is the span of the normalized transcript the reference came from.
	Text string

	// Change tells how the reference changed the recency buffer. References
	// that were already the most recent entry report [recency.Unchanged].
	Change recency.Change
}

// engine is an immutable set of recognition stages built from one settings
// value. Reconfiguration swaps the whole engine.
type engine struct {
	settings  settings
	matcher   *Matcher
	validator *Validator
}

func newEngine(s settings) *engine {
	res := NewResolver(s.table, WithScorer(s.scorer), WithThreshold(s.threshold))
	return &engine{
		settings:  s,
		matcher:   NewMatcher(res),
		validator: NewValidator(res, WithRangePolicy(s.policy)),
	}
}

// Recognizer turns transcript fragments into canonical references. Recognize
// and Process may be called concurrently with Recent and Reconfigure.
type Recognizer struct {
	buffer *recency.Buffer
	engine atomic.Pointer[engine]

	mu sync.Mutex // serialises Reconfigure
}

// NewRecognizer returns a Recognizer validating against table and recording
// into buf. A nil buf is replaced by an unbounded buffer.
func NewRecognizer(table *canon.Table, buf *recency.Buffer, opts ...Option) *Recognizer {
	if buf == nil {
		buf = recency.New()
	}
	s := defaultSettings()
	s.table = table
	s = s.with(opts)

	r := &Recognizer{buffer: buf}
	r.engine.Store(newEngine(s))
	return r
}

// Reconfigure applies opts on top of the current settings. Calls in flight
// finish with the previous configuration.
func (r *Recognizer) Reconfigure(opts ...Option) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.engine.Load().settings.with(opts)
	r.engine.Store(newEngine(next))
}

// Process recognises text and returns the canonical form of every reference
// confirmed in it, in order of appearance and without duplicates.
func (r *Recognizer) Process(text string) []string {
	dets := r.Recognize(context.Background(), text)
	out := make([]string, len(dets))
	for i, d := range dets {
		out[i] = d.Reference.String()
	}
	return out
}

// Recognize is [Recognizer.Process] returning detections. ctx carries
// telemetry only; recognition does not block.
func (r *Recognizer) Recognize(ctx context.Context, text string) []Detection {
	e := r.engine.Load()
	m := e.settings.metrics
	start := time.Now()

	var (
		out  []Detection
		seen map[string]int
	)
	for c := range e.matcher.Candidates(Normalize(text)) {
		ref, outcome := e.validator.Check(c)
		if m != nil {
			m.RecordCandidate(ctx, string(outcome))
		}
		if !outcome.Accepted() {
			slog.DebugContext(ctx, "scripture: candidate dropped", "text", c.Text, "outcome", outcome)
			continue
		}

		s := ref.String()
		change := r.buffer.Record(s)
		if m != nil {
			m.RecordReference(ctx, change.String())
		}

		// A repeat refreshes the buffer and the earlier detection's change.
		if i, ok := seen[s]; ok {
			out[i].Change = change
			continue
		}
		if seen == nil {
			seen = make(map[string]int)
		}
		seen[s] = len(out)
		out = append(out, Detection{Reference: ref, Text: c.Text, Change: change})
	}

	if m != nil {
		m.ProcessDuration.Record(ctx, time.Since(start).Seconds())
	}
	return out
}

// Recent returns the confirmed references from least to most recent.
func (r *Recognizer) Recent() []string { return r.buffer.Snapshot() }

// Buffer returns the recency buffer the recognizer records into.
func (r *Recognizer) Buffer() *recency.Buffer { return r.buffer }

// Table returns the canon currently in use.
func (r *Recognizer) Table() *canon.Table { return r.engine.Load().settings.table }

// Threshold returns the book similarity threshold currently in use.
func (r *Recognizer) Threshold() float64 { return r.engine.Load().settings.threshold }

// RangePolicy returns the range policy currently in use.
func (r *Recognizer) RangePolicy() RangePolicy { return r.engine.Load().settings.policy }
