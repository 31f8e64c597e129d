// Package observe provides application-wide observability primitives for
// Convoke: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Convoke metrics.
const meterName = "github.com/stageleft/convoke"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TranscriptionDuration tracks speech-to-text transcription latency per
	// chunk.
	TranscriptionDuration metric.Float64Histogram

	// AnalysisDuration tracks trigger-analysis latency per window.
	AnalysisDuration metric.Float64Histogram

	// GenerationDuration tracks intervention question generation latency.
	GenerationDuration metric.Float64Histogram

	// --- Counters ---

	// ChunksIngested counts audio chunks accepted into meetings.
	ChunksIngested metric.Int64Counter

	// TriggersDetected counts analysis triggers. Use with attribute:
	//   attribute.String("kind", ...)
	TriggersDetected metric.Int64Counter

	// InterventionsEmitted counts interventions delivered to facilitators.
	// Use with attribute: attribute.String("kind", ...)
	InterventionsEmitted metric.Int64Counter

	// InterventionsSuppressed counts triggers dropped by the cooldown
	// policy. Use with attribute: attribute.String("kind", ...)
	InterventionsSuppressed metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// --- Error counters ---

	// TranscriptionFailures counts chunks whose transcription failed.
	TranscriptionFailures metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveMeetings tracks the number of currently active meetings.
	ActiveMeetings metric.Int64UpDownCounter

	// EventSubscribers tracks the number of connected event-stream
	// subscribers across all meetings.
	EventSubscribers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// per-chunk pipeline latencies, which span from sub-second analysis calls to
// multi-second native transcription.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)

	var errs []error
	stageHist := func(name, desc string) metric.Float64Histogram {
		h, err := meter.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
		errs = append(errs, err)
		return h
	}
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		return c
	}
	gauge := func(name, desc string) metric.Int64UpDownCounter {
		g, err := meter.Int64UpDownCounter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		return g
	}

	met := &Metrics{
		TranscriptionDuration: stageHist("convoke.transcription.duration",
			"Latency of speech-to-text transcription per chunk."),
		AnalysisDuration: stageHist("convoke.analysis.duration",
			"Latency of trigger analysis per window."),
		GenerationDuration: stageHist("convoke.generation.duration",
			"Latency of intervention question generation."),

		ChunksIngested: counter("convoke.chunks.ingested",
			"Total audio chunks accepted into meetings."),
		TriggersDetected: counter("convoke.triggers.detected",
			"Total analysis triggers by kind."),
		InterventionsEmitted: counter("convoke.interventions.emitted",
			"Total interventions delivered by kind."),
		InterventionsSuppressed: counter("convoke.interventions.suppressed",
			"Total triggers suppressed by the cooldown policy, by kind."),
		ProviderRequests: counter("convoke.provider.requests",
			"Total provider API requests by provider, kind, and status."),

		TranscriptionFailures: counter("convoke.transcription.failures",
			"Total chunks whose transcription failed."),
		ProviderErrors: counter("convoke.provider.errors",
			"Total provider errors by provider and kind."),

		ActiveMeetings: gauge("convoke.active_meetings",
			"Number of currently active meetings."),
		EventSubscribers: gauge("convoke.event_subscribers",
			"Number of connected event-stream subscribers."),
	}

	// The HTTP histogram keeps the SDK's default buckets; request latency is
	// dominated by handler work, not the pipeline stages.
	httpHist, err := meter.Float64Histogram("convoke.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	)
	errs = append(errs, err)
	met.HTTPRequestDuration = httpHist

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest increments the provider request counter with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError increments the provider error counter.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
