package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
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

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
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

// sumValue fetches the first data point of an int64 sum, failing the test if
// the metric is missing or the wrong shape.
func sumValue(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", name)
	}
	if len(sum.DataPoints) == 0 {
		t.Fatalf("metric %q has no data points", name)
	}
	return sum.DataPoints[0].Value
}

// histPoint fetches the first data point of a float64 histogram.
func histPoint(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.HistogramDataPoint[float64] {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric %q is not a float64 histogram", name)
	}
	if len(hist.DataPoints) == 0 {
		t.Fatalf("metric %q has no data points", name)
	}
	return hist.DataPoints[0]
}

func TestStageHistograms(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	for _, h := range []metric.Float64Histogram{
		m.TranscriptionDuration, m.AnalysisDuration, m.GenerationDuration,
	} {
		h.Record(ctx, 0.123)
		h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)
	for _, name := range []string{
		"convoke.transcription.duration",
		"convoke.analysis.duration",
		"convoke.generation.duration",
	} {
		if got := histPoint(t, rm, name).Count; got != 2 {
			t.Errorf("%s sample count = %d, want 2", name, got)
		}
	}
}

func TestProviderRequests_SplitByStatus(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "anthropic", "llm", "ok")
	m.RecordProviderRequest(ctx, "anthropic", "llm", "ok")
	m.RecordProviderRequest(ctx, "anthropic", "llm", "error")

	rm := collect(t, reader)
	met := findMetric(rm, "convoke.provider.requests")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not an int64 sum")
	}

	byStatus := make(map[string]int64, len(sum.DataPoints))
	for _, dp := range sum.DataPoints {
		if v, found := dp.Attributes.Value(attribute.Key("status")); found {
			byStatus[v.AsString()] = dp.Value
		}
	}
	if byStatus["ok"] != 2 {
		t.Errorf("status=ok count = %d, want 2", byStatus["ok"])
	}
	if byStatus["error"] != 1 {
		t.Errorf("status=error count = %d, want 1", byStatus["error"])
	}
}

func TestPipelineCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	kind := metric.WithAttributes(attribute.String("kind", "goal_deviation"))
	m.ChunksIngested.Add(ctx, 3)
	m.TriggersDetected.Add(ctx, 1, kind)
	m.TriggersDetected.Add(ctx, 1, kind)
	m.InterventionsEmitted.Add(ctx, 1, kind)
	m.InterventionsSuppressed.Add(ctx, 1, kind)
	m.TranscriptionFailures.Add(ctx, 1)
	m.RecordProviderError(ctx, "whisper", "stt")

	rm := collect(t, reader)
	for name, want := range map[string]int64{
		"convoke.chunks.ingested":          3,
		"convoke.triggers.detected":        2,
		"convoke.interventions.emitted":    1,
		"convoke.interventions.suppressed": 1,
		"convoke.transcription.failures":   1,
		"convoke.provider.errors":          1,
	} {
		if got := sumValue(t, rm, name); got != want {
			t.Errorf("%s = %d, want %d", name, got, want)
		}
	}
}

func TestGaugesTrackUpAndDown(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveMeetings.Add(ctx, 1)
	m.ActiveMeetings.Add(ctx, 1)
	m.EventSubscribers.Add(ctx, 3)
	m.EventSubscribers.Add(ctx, -1)

	rm := collect(t, reader)
	if got := sumValue(t, rm, "convoke.active_meetings"); got != 2 {
		t.Errorf("active_meetings = %d, want 2", got)
	}
	if got := sumValue(t, rm, "convoke.event_subscribers"); got != 2 {
		t.Errorf("event_subscribers = %d, want 2", got)
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.HTTPRequestDuration.Record(context.Background(), 0.05,
		metric.WithAttributes(
			attribute.String("method", "GET"),
			attribute.String("route", "/healthz"),
		),
	)

	rm := collect(t, reader)
	if got := histPoint(t, rm, "convoke.http.request.duration").Count; got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	// DefaultMetrics uses the global OTel provider so we just check
	// that repeated calls return the same pointer.
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
