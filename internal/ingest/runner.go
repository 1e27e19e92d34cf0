package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/lectern/internal/observe"
	"github.com/MrWong99/lectern/internal/recency"
	"github.com/MrWong99/lectern/internal/scripture"
)

// ErrNotRunning is reported by [Runner.Check] while no source is running.
var ErrNotRunning = errors.New("ingest: no source running")

// Publisher receives references that changed the recency buffer.
type Publisher interface {
	Publish(ctx context.Context, ref, source string) error
}

// Option configures a [Runner].
type Option func(*Runner)

// WithNoiseWords skips fragments consisting only of one of words.
func WithNoiseWords(words ...string) Option {
	return func(r *Runner) { r.SetNoiseWords(words) }
}

// WithMetrics counts received fragments on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// Runner drives fragments through a [scripture.Recognizer]. Handle is safe
// for concurrent use, so HTTP and MCP callers may share a Runner with a
// running source.
type Runner struct {
	rec     *scripture.Recognizer
	pub     Publisher
	metrics *observe.Metrics

	noise   atomic.Pointer[map[string]bool]
	running atomic.Int32

	mu      sync.Mutex
	lastErr error
}

// NewRunner returns a Runner. pub may be nil, in which case references are
// only recorded.
func NewRunner(rec *scripture.Recognizer, pub Publisher, opts ...Option) *Runner {
	r := &Runner{rec: rec, pub: pub}
	r.SetNoiseWords(nil)
	for _, o := range opts {
		o(r)
	}
	return r
}

// SetNoiseWords replaces the noise word list. It may be called while
// sources are running.
func (r *Runner) SetNoiseWords(words []string) {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		if w = noiseKey(w); w != "" {
			set[w] = true
		}
	}
	r.noise.Store(&set)
}

func noiseKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Recognizer returns the recognizer fragments are fed to.
func (r *Runner) Recognizer() *scripture.Recognizer { return r.rec }

// Handle recognises one fragment and publishes every reference it confirmed
// that was not already the most recent one. It returns all detections,
// including unchanged ones.
func (r *Runner) Handle(ctx context.Context, f Fragment) []scripture.Detection {
	ctx, span := observe.StartSpan(ctx, "ingest.fragment", trace.WithAttributes(
		attribute.String("source", f.Source),
		attribute.Bool("final", f.Final),
	))
	defer span.End()
	log := observe.Logger(ctx)

	if r.metrics != nil {
		r.metrics.RecordTranscript(ctx, f.Source, f.Final)
	}
	if (*r.noise.Load())[noiseKey(f.Text)] {
		log.Debug("ingest: noise fragment skipped", "source", f.Source, "text", f.Text)
		return nil
	}

	dets := r.rec.Recognize(ctx, f.Text)
	span.SetAttributes(attribute.Int("references", len(dets)))
	for _, d := range dets {
		ref := d.Reference.String()
		if d.Change == recency.Unchanged {
			log.Debug("ingest: reference unchanged", "reference", ref)
			continue
		}
		log.Info("reference detected", "reference", ref, "source", f.Source, "heard", d.Text, "final", f.Final)
		if r.pub == nil {
			continue
		}
		if err := r.pub.Publish(ctx, ref, f.Source); err != nil {
			observe.Fail(span, err)
			log.Warn("ingest: publish failed", "reference", ref, "error", err)
		}
	}
	return dets
}

// Run feeds src into the runner until src is exhausted or ctx is cancelled.
// A cancelled ctx is not an error.
func (r *Runner) Run(ctx context.Context, src Source) error {
	r.running.Add(1)
	defer r.running.Add(-1)

	slog.Info("ingest source started", "source", src.Name())
	err := src.Run(ctx, func(ctx context.Context, f Fragment) { r.Handle(ctx, f) })
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		err = nil
	}

	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("ingest: source %s: %w", src.Name(), err)
	}
	slog.Info("ingest source finished", "source", src.Name())
	return nil
}

// Check reports whether a source is running. It returns the error of the
// last source that stopped, if any, while none is running.
func (r *Runner) Check(context.Context) error {
	if r.running.Load() > 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastErr != nil {
		return fmt.Errorf("%w: %w", ErrNotRunning, r.lastErr)
	}
	return ErrNotRunning
}
