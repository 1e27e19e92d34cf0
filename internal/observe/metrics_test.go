package observe

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the counter value of the data point carrying key=value.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q: got=%T, want a sum", name, met.Data)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	return 0
}

// samples returns the total observation count of a histogram.
func samples(t *testing.T, rm metricdata.ResourceMetrics, name string) uint64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric %q: got=%T, want a histogram", name, met.Data)
	}
	var n uint64
	for _, dp := range hist.DataPoints {
		n += dp.Count
	}
	return n
}

func TestRecorders(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTranscript(ctx, "stt", true)
	m.RecordTranscript(ctx, "stt", false)
	m.RecordTranscript(ctx, "http", true)
	m.RecordCandidate(ctx, "accepted")
	m.RecordCandidate(ctx, "accepted")
	m.RecordCandidate(ctx, "unresolved_book")
	m.RecordReference(ctx, "added")
	m.RecordReference(ctx, "moved")
	m.RecordPublish(ctx, "propresenter", 0.02, nil)
	m.RecordPublish(ctx, "propresenter", 3, errors.New("timeout"))
	m.RecordProviderError(ctx, "vosk", "stt")
	m.RecordToolCall(ctx, "lookup_verse", "ok")
	m.RecordToolCall(ctx, "lookup_verse", "error")

	rm := collect(t, reader)
	tests := []struct {
		metric, key, value string
		want               int64
	}{
		{"lectern.transcripts", "final", "true", 2},
		{"lectern.transcripts", "source", "http", 1},
		{"lectern.candidates", "outcome", "accepted", 2},
		{"lectern.candidates", "outcome", "unresolved_book", 1},
		{"lectern.references", "change", "moved", 1},
		{"lectern.publish.errors", "sink", "propresenter", 1},
		{"lectern.provider.errors", "provider", "vosk", 1},
		{"lectern.tool.calls", "status", "ok", 1},
		{"lectern.tool.calls", "status", "error", 1},
	}
	for _, tc := range tests {
		if got := sumFor(t, rm, tc.metric, tc.key, tc.value); got != tc.want {
			t.Errorf("%s{%s=%q}: got=%d, want %d", tc.metric, tc.key, tc.value, got, tc.want)
		}
	}
	if got := samples(t, rm, "lectern.publish.duration"); got != 2 {
		t.Errorf("publish duration samples: got=%d, want 2", got)
	}
}

func TestHistograms(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ProcessDuration.Record(ctx, 0.00004)
	m.ToolExecutionDuration.Record(ctx, 0.3)
	m.ToolExecutionDuration.Record(ctx, 0.4)
	m.HTTPRequestDuration.Record(ctx, 0.05)

	rm := collect(t, reader)
	for name, want := range map[string]uint64{
		"lectern.process.duration":        1,
		"lectern.tool_execution.duration": 2,
		"lectern.http.request.duration":   1,
	} {
		if got := samples(t, rm, name); got != want {
			t.Errorf("%s samples: got=%d, want %d", name, got, want)
		}
	}
}

func TestGauges(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSTTSessions.Add(ctx, 1)
	m.ActiveWSClients.Add(ctx, 3)
	m.ActiveWSClients.Add(ctx, -1)

	rm := collect(t, reader)
	for name, want := range map[string]int64{
		"lectern.stt.sessions": 1,
		"lectern.ws.clients":   2,
	} {
		sum, ok := findMetric(rm, name).Data.(metricdata.Sum[int64])
		if !ok || len(sum.DataPoints) != 1 {
			t.Fatalf("%s: got=%+v, want one sum data point", name, findMetric(rm, name))
		}
		if got := sum.DataPoints[0].Value; got != want {
			t.Errorf("%s: got=%d, want %d", name, got, want)
		}
	}
}

func TestDefaultMetrics_Shared(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics: got two instances, want one")
	}
}
