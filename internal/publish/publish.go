// Package publish delivers newly confirmed references to display sinks.
//
// A [Fanout] owns one queue and one worker goroutine per [Sink]. Publishing
// never blocks the recognition path: a message is queued for every sink and
// a sink whose queue is full loses the message with a warning. Each sink is
// wrapped in a circuit breaker, so a projector that has gone offline is not
// redialled on every verse.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/lectern/internal/health"
	"github.com/MrWong99/lectern/internal/observe"
	"github.com/MrWong99/lectern/internal/resilience"
)

// Message is one confirmed reference on its way to the displays.
type Message struct {
	// Reference is the canonical reference string, e.g. "John 3:16".
	Reference string `json:"reference"`

	// Text is the rendered verse text when rendering is enabled.
	Text string `json:"text,omitempty"`

	// Source names the ingest source that heard the reference.
	Source string `json:"source,omitempty"`

	// At is when the reference was confirmed.
	At time.Time `json:"at"`
}

// Display returns what a display should show: the rendered text when present,
// the bare reference otherwise.
func (m Message) Display() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Reference
}

// Sink is a destination for confirmed references.
type Sink interface {
	// Name is a short label used in logs, metrics and health checks.
	Name() string

	// Publish delivers one message. It must honour ctx cancellation.
	Publish(ctx context.Context, m Message) error
}

// Renderer produces the display text of a reference.
type Renderer func(ctx context.Context, ref string) string

// ErrStopped is returned by [Fanout.Publish] after [Fanout.Run] has returned.
var ErrStopped = errors.New("publish: fanout stopped")

const (
	defaultQueue   = 64
	defaultTimeout = 5 * time.Second
)

// Option configures a [Fanout].
type Option func(*Fanout)

// WithMetrics records publish latency and errors on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(f *Fanout) { f.metrics = m }
}

// WithRenderer fills [Message.Text] before delivery.
func WithRenderer(r Renderer) Option {
	return func(f *Fanout) { f.render = r }
}

// WithTimeout bounds each Publish call on a sink. Default: 5s.
func WithTimeout(d time.Duration) Option {
	return func(f *Fanout) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithQueueSize sets the per-sink queue length. Default: 64.
func WithQueueSize(n int) Option {
	return func(f *Fanout) {
		if n > 0 {
			f.queue = n
		}
	}
}

// WithBreaker sets the template for each sink's circuit breaker.
func WithBreaker(cfg resilience.BreakerConfig) Option {
	return func(f *Fanout) { f.breaker = cfg }
}

type route struct {
	sink    Sink
	breaker *resilience.Breaker
	queue   chan Message
}

// Fanout distributes messages to a fixed set of sinks.
type Fanout struct {
	metrics *observe.Metrics
	render  Renderer
	timeout time.Duration
	queue   int
	breaker resilience.BreakerConfig

	routes []*route

	mu      sync.RWMutex
	started bool
	stopped bool
}

// NewFanout returns a Fanout delivering to sinks.
func NewFanout(sinks []Sink, opts ...Option) *Fanout {
	f := &Fanout{
		timeout: defaultTimeout,
		queue:   defaultQueue,
		breaker: resilience.BreakerConfig{MaxFailures: 3, ResetTimeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(f)
	}
	for _, s := range sinks {
		cfg := f.breaker
		cfg.Name = "sink:" + s.Name()
		f.routes = append(f.routes, &route{
			sink:    s,
			breaker: resilience.NewBreaker(cfg),
			queue:   make(chan Message, f.queue),
		})
	}
	return f
}

// Sinks returns the sink names in registration order.
func (f *Fanout) Sinks() []string {
	names := make([]string, len(f.routes))
	for i, r := range f.routes {
		names[i] = r.sink.Name()
	}
	return names
}

// Checkers returns one readiness checker per sink, failing while the sink's
// circuit is open.
func (f *Fanout) Checkers() []health.Checker {
	out := make([]health.Checker, len(f.routes))
	for i, r := range f.routes {
		out[i] = health.Checker{Name: r.breaker.Name(), Check: r.breaker.Check}
	}
	return out
}

// Publish queues ref for every sink. Text is rendered once, here, when a
// renderer is configured. Sinks with a full queue drop the message.
func (f *Fanout) Publish(ctx context.Context, ref, source string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.stopped {
		return ErrStopped
	}

	m := Message{Reference: ref, Source: source, At: time.Now()}
	if f.render != nil {
		m.Text = f.render(ctx, ref)
	}
	for _, r := range f.routes {
		select {
		case r.queue <- m:
		default:
			slog.Warn("publish: queue full, dropping reference", "sink", r.sink.Name(), "reference", ref)
			if f.metrics != nil {
				f.metrics.RecordPublish(ctx, r.sink.Name(), 0, errQueueFull)
			}
		}
	}
	return nil
}

var errQueueFull = errors.New("queue full")

// Run delivers queued messages until ctx is cancelled, then drains what is
// already queued with a fresh deadline and returns. Run may be called once.
func (f *Fanout) Run(ctx context.Context) error {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return errors.New("publish: fanout already running")
	}
	f.started = true
	f.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range f.routes {
		g.Go(func() error {
			f.work(gctx, r)
			return nil
		})
	}
	err := g.Wait()
	f.stop()
	return err
}

// stop rejects further messages. Publish enqueues under the read lock, so
// once stop returns nothing more can land in a queue.
func (f *Fanout) stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *Fanout) work(ctx context.Context, r *route) {
	for {
		select {
		case m := <-r.queue:
			f.deliver(ctx, r, m)
		case <-ctx.Done():
			f.stop()
			f.drain(r)
			return
		}
	}
}

// drain delivers messages still queued at shutdown.
func (f *Fanout) drain(r *route) {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	for {
		select {
		case m := <-r.queue:
			f.deliver(ctx, r, m)
		default:
			return
		}
	}
}

func (f *Fanout) deliver(ctx context.Context, r *route, m Message) {
	name := r.sink.Name()
	ctx, span := observe.StartSpan(ctx, "publish."+name,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attribute.String("reference", m.Reference)),
	)
	defer span.End()

	start := time.Now()
	err := r.breaker.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()
		return r.sink.Publish(ctx, m)
	})
	if f.metrics != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		f.metrics.RecordPublish(ctx, name, time.Since(start).Seconds(), err)
	}

	log := observe.Logger(ctx).With("sink", name, "reference", m.Reference)
	switch {
	case err == nil:
		log.Debug("reference published")
	case errors.Is(err, resilience.ErrCircuitOpen):
		span.SetStatus(codes.Error, "circuit open")
		log.Debug("sink circuit open, reference skipped")
	default:
		observe.Fail(span, err)
		log.Warn("publish failed", "error", fmt.Errorf("publish: %w", err))
	}
}
