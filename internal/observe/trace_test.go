package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newRecordingTracer installs a recording tracer provider globally for the
// duration of the test.
func newRecordingTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return rec
}

func TestTraceID_NoSpan(t *testing.T) {
	if got := TraceID(context.Background()); got != "" {
		t.Fatalf("TraceID on empty context = %q, want empty", got)
	}
}

func TestTraceID_ActiveSpan(t *testing.T) {
	newRecordingTracer(t)

	ctx, span := StartSpan(context.Background(), "test-span")
	defer span.End()

	got := TraceID(ctx)
	if got == "" {
		t.Fatal("TraceID inside span is empty")
	}
	if want := span.SpanContext().TraceID().String(); got != want {
		t.Fatalf("TraceID = %q, want %q", got, want)
	}
}

func TestStartSpan_Records(t *testing.T) {
	rec := newRecordingTracer(t)

	_, span := StartSpan(context.Background(), "ingest chunk")
	span.End()

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Name() != "ingest chunk" {
		t.Fatalf("span name = %q, want %q", spans[0].Name(), "ingest chunk")
	}
}

func TestLogger(t *testing.T) {
	newRecordingTracer(t)

	ctx, span := StartSpan(context.Background(), "test-span")
	defer span.End()

	if Logger(context.Background()) != Logger(context.Background()) {
		t.Error("Logger outside a span should return the shared default")
	}
	if Logger(ctx) == Logger(context.Background()) {
		t.Error("Logger inside a span should return a derived logger")
	}
}
