// Package observe wires lectern's telemetry: OpenTelemetry metric
// instruments exported in the Prometheus format, tracing helpers, span-aware
// slog loggers and the HTTP middleware that joins them.
//
// Code under test builds its own [Metrics] with [NewMetrics]; the binary uses
// [DefaultMetrics] on the provider installed by [InitProvider].
package observe

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/lectern"

// Metrics holds every instrument lectern records. Safe for concurrent use.
type Metrics struct {
	// Recognition. Transcripts carries source and final, Candidates the
	// validation outcome, References the recency change.
	Transcripts     metric.Int64Counter
	Candidates      metric.Int64Counter
	References      metric.Int64Counter
	ProcessDuration metric.Float64Histogram

	// Publishing, by sink.
	PublishDuration metric.Float64Histogram
	PublishErrors   metric.Int64Counter

	// ProviderErrors carries provider and kind; ToolCalls carries tool and
	// status.
	ProviderErrors        metric.Int64Counter
	ToolCalls             metric.Int64Counter
	ToolExecutionDuration metric.Float64Histogram

	ActiveSTTSessions metric.Int64UpDownCounter
	ActiveWSClients   metric.Int64UpDownCounter

	// HTTPRequestDuration carries method, path (the matched route) and status.
	HTTPRequestDuration metric.Float64Histogram
}

// Bucket boundaries in seconds.
var (
	// Round trips to display sinks and MCP tools.
	latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

	// In-memory recognition of one fragment.
	processBuckets = []float64{0.00001, 0.000025, 0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01}
)

// builder creates instruments on one meter and keeps the first error.
type builder struct {
	meter metric.Meter
	err   error
}

func (b *builder) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	b.keep(err)
	return c
}

func (b *builder) gauge(name, desc string) metric.Int64UpDownCounter {
	g, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	b.keep(err)
	return g
}

func (b *builder) seconds(name, desc string, buckets []float64) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(desc), metric.WithUnit("s")}
	if buckets != nil {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := b.meter.Float64Histogram(name, opts...)
	b.keep(err)
	return h
}

func (b *builder) keep(err error) {
	if b.err == nil && err != nil {
		b.err = err
	}
}

// NewMetrics creates every instrument on mp. Tests pass a provider backed by
// a ManualReader.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	b := &builder{meter: mp.Meter(meterName)}
	m := &Metrics{
		Transcripts:     b.counter("lectern.transcripts", "Transcript fragments received by source and finality."),
		Candidates:      b.counter("lectern.candidates", "Reference candidates by validation outcome."),
		References:      b.counter("lectern.references", "Confirmed references by recency change."),
		ProcessDuration: b.seconds("lectern.process.duration", "Latency of recognising one transcript fragment.", processBuckets),

		PublishDuration: b.seconds("lectern.publish.duration", "Latency of publishing a reference by sink.", latencyBuckets),
		PublishErrors:   b.counter("lectern.publish.errors", "Failed publish calls by sink."),

		ProviderErrors:        b.counter("lectern.provider.errors", "Speech-to-text errors by provider and kind."),
		ToolCalls:             b.counter("lectern.tool.calls", "MCP tool invocations by tool and status."),
		ToolExecutionDuration: b.seconds("lectern.tool_execution.duration", "Latency of MCP tool execution.", latencyBuckets),

		ActiveSTTSessions: b.gauge("lectern.stt.sessions", "Open speech-to-text sessions."),
		ActiveWSClients:   b.gauge("lectern.ws.clients", "Connected websocket subscribers."),

		HTTPRequestDuration: b.seconds("lectern.http.request.duration", "HTTP request latency by method and route.", nil),
	}
	if b.err != nil {
		return nil, fmt.Errorf("observe: create instruments: %w", b.err)
	}
	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics lazily builds a shared [Metrics] on the global meter
// provider. Call it after [InitProvider].
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		if defaultMetrics, err = NewMetrics(otel.GetMeterProvider()); err != nil {
			panic(err)
		}
	})
	return defaultMetrics
}

// Attr is [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTranscript records one received transcript fragment.
func (m *Metrics) RecordTranscript(ctx context.Context, source string, final bool) {
	m.Transcripts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("source", source),
			attribute.String("final", strconv.FormatBool(final)),
		),
	)
}

// RecordCandidate records the validation outcome of one matcher capture.
func (m *Metrics) RecordCandidate(ctx context.Context, outcome string) {
	m.Candidates.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordReference records a confirmed reference and how it changed the
// recency buffer.
func (m *Metrics) RecordReference(ctx context.Context, change string) {
	m.References.Add(ctx, 1, metric.WithAttributes(attribute.String("change", change)))
}

// RecordPublish records the latency of one publish call and, when err is
// non-nil, a publish error for the sink.
func (m *Metrics) RecordPublish(ctx context.Context, sink string, seconds float64, err error) {
	attrs := metric.WithAttributes(attribute.String("sink", sink))
	m.PublishDuration.Record(ctx, seconds, attrs)
	if err != nil {
		m.PublishErrors.Add(ctx, 1, attrs)
	}
}

// RecordProviderError counts one STT failure of the given kind.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordToolCall counts one MCP tool invocation.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}
