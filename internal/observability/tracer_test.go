package observability

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestDisabledTracerIsNoop(t *testing.T) {
	if err := Init(context.Background(), Config{Enabled: false}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if Enabled() {
		t.Fatal("tracing should be disabled")
	}

	ctx, span := StartClientSpan(context.Background(), "db.query", AttrDBSystem.String("postgresql"))
	EndSpan(span, errors.New("boom"))

	if id := GetTraceID(ctx); id != "" {
		t.Fatalf("noop span has trace id %q", id)
	}
	if err := Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestInitNoneExporterRecordsTraceIDs(t *testing.T) {
	err := Init(context.Background(), Config{Enabled: true, Exporter: "none", SampleRate: 1})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer func() {
		Shutdown(context.Background())
		Init(context.Background(), Config{})
	}()

	ctx, span := StartSpan(context.Background(), "lookup")
	defer span.End()
	if GetTraceID(ctx) == "" || GetSpanID(ctx) == "" {
		t.Fatal("expected sampled span ids")
	}
}

func TestInitUnknownExporter(t *testing.T) {
	if err := Init(context.Background(), Config{Enabled: true, Exporter: "zipkin"}); err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

func TestSamplerFollowsParent(t *testing.T) {
	err := Init(context.Background(), Config{Enabled: true, Exporter: "none", SampleRate: 0})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer func() {
		Shutdown(context.Background())
		Init(context.Background(), Config{})
	}()

	_, root := StartSpan(context.Background(), "lookup")
	defer root.End()
	if root.SpanContext().IsSampled() {
		t.Fatal("rate 0 must not sample root spans")
	}

	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1},
		SpanID:     trace.SpanID{1},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	_, child := StartSpan(trace.ContextWithRemoteSpanContext(context.Background(), parent), "lookup")
	defer child.End()
	if !child.SpanContext().IsSampled() {
		t.Fatal("a sampled remote parent must be followed")
	}
}
