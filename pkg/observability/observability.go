// Package observability provides OpenTelemetry tracing and metrics for the
// orchestrator's two loops: cycle spans, intent/action/guardrail counters,
// and cycle duration. When disabled it degrades to no-ops.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName  string
	OTLPEndpoint string // e.g. "localhost:4317"
	Enabled      bool
	Insecure     bool
}

// Provider owns the trace and metric pipelines plus the orchestrator's
// instruments.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	logger         *slog.Logger

	intentsDetected     metric.Int64Counter
	actionsCreated      metric.Int64Counter
	guardrailsTriggered metric.Int64Counter
	cycleDuration       metric.Float64Histogram
}

// New creates a provider. With Enabled false (or a nil config) everything
// is a no-op and Shutdown is safe to call.
func New(ctx context.Context, cfg *Config) (*Provider, error) {
	p := &Provider{
		tracer: noop.NewTracerProvider().Tracer("autonomy"),
		logger: slog.Default().With("component", "observability"),
	}
	if cfg == nil || !cfg.Enabled {
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	traceExp, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("otlp trace exporter: %w", err)
	}
	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(p.tracerProvider)
	p.tracer = p.tracerProvider.Tracer("autonomy")

	metricExp, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("otlp metric exporter: %w", err)
	}
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(p.meterProvider)

	meter := p.meterProvider.Meter("autonomy")
	if p.intentsDetected, err = meter.Int64Counter("autonomy.intents.detected",
		metric.WithDescription("Intents created by scan cycles")); err != nil {
		return nil, err
	}
	if p.actionsCreated, err = meter.Int64Counter("autonomy.actions.created",
		metric.WithDescription("Actions created by scan cycles")); err != nil {
		return nil, err
	}
	if p.guardrailsTriggered, err = meter.Int64Counter("autonomy.guardrails.triggered",
		metric.WithDescription("Guardrail violations recorded")); err != nil {
		return nil, err
	}
	if p.cycleDuration, err = meter.Float64Histogram("autonomy.cycle.duration",
		metric.WithDescription("Scan cycle duration"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return p, nil
}

// StartCycle opens a span for one scan or simulation cycle.
func (p *Provider) StartCycle(ctx context.Context, name string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name)
}

// RecordCycle records one completed scan cycle's totals.
func (p *Provider) RecordCycle(ctx context.Context, scanType string, intents, actions, guardrails int, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("scan_type", scanType))
	if p.intentsDetected != nil {
		p.intentsDetected.Add(ctx, int64(intents), attrs)
		p.actionsCreated.Add(ctx, int64(actions), attrs)
		p.guardrailsTriggered.Add(ctx, int64(guardrails), attrs)
		p.cycleDuration.Record(ctx, elapsed.Seconds(), attrs)
	}
}

// Shutdown flushes and stops the pipelines.
func (p *Provider) Shutdown(ctx context.Context) error {
	var firstErr error
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
