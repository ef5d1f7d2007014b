package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Config selects where lookup and statement spans go.
type Config struct {
	Enabled bool
	// Exporter is "otlp-http" (or "otlp") or "none". "stdout" is accepted
	// as an alias of "none".
	Exporter    string
	Endpoint    string // host:port of the collector, e.g. localhost:4318
	ServiceName string // defaults to fmidb
	// SampleRate is the fraction of root spans kept. Spans started under a
	// remote parent follow the parent's decision.
	SampleRate float64
}

// Version is reported as the service version of exported spans.
var Version = "dev"

// Provider holds the tracer every session and repository starts spans from.
type Provider struct {
	tp      *sdktrace.TracerProvider
	tracer  trace.Tracer
	enabled bool
}

func disabled() *Provider {
	return &Provider{tracer: trace.NewNoopTracerProvider().Tracer("")}
}

var globalProvider = disabled()

// Init installs the tracer provider described by cfg. A disabled config
// resets tracing to a no-op.
func Init(ctx context.Context, cfg Config) error {
	if !cfg.Enabled {
		globalProvider = disabled()
		return nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "fmidb"
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return err
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(Version),
	))
	if err != nil {
		return fmt.Errorf("telemetry resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(cfg.SampleRate)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	globalProvider = &Provider{tp: tp, tracer: tp.Tracer(cfg.ServiceName), enabled: true}
	return nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "otlp-http", "otlp":
		exp, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("otlp exporter for %s: %w", cfg.Endpoint, err)
		}
		return exp, nil
	case "none", "stdout":
		return discardExporter{}, nil
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}
}

// newSampler keeps rate of the root spans; out of range rates keep all.
func newSampler(rate float64) sdktrace.Sampler {
	root := sdktrace.AlwaysSample()
	if rate >= 0 && rate < 1 {
		root = sdktrace.TraceIDRatioBased(rate)
	}
	return sdktrace.ParentBased(root)
}

// Shutdown flushes pending spans, waiting at most 5 seconds.
func Shutdown(ctx context.Context) error {
	if globalProvider.tp == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return globalProvider.tp.Shutdown(ctx)
}

// Tracer returns the current tracer, a no-op one when tracing is off.
func Tracer() trace.Tracer {
	return globalProvider.tracer
}

// Enabled reports whether spans are recorded.
func Enabled() bool {
	return globalProvider.enabled
}

// discardExporter drops finished spans. Span and trace ids are still
// assigned, so logs keep their trace fields.
type discardExporter struct{}

func (discardExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error { return nil }
func (discardExporter) Shutdown(context.Context) error                             { return nil }
