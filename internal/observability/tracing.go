// Package observability provides OpenTelemetry tracing and the JSONL audit
// trail for runner executions.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope for runner spans.
const TracerName = "github.com/efebarandurmaz/llm-ci-runner"

// TracingConfig configures the OpenTelemetry tracing.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string // e.g. "ci", "local"

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317").
	// If empty, tracing is disabled.
	OTLPEndpoint string

	// SampleRate is the trace sampling rate (0.0 to 1.0, default: 1.0)
	SampleRate float64
}

// DefaultTracingConfig returns a default tracing configuration.
func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{
		ServiceName:    "llm-ci-runner",
		ServiceVersion: "dev",
		Environment:    "ci",
		SampleRate:     1.0,
	}
}

// TracerProvider wraps the OpenTelemetry tracer provider.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing installs a global tracer provider exporting over OTLP gRPC.
// With no endpoint configured the global no-op provider is left in place
// and spans cost nothing.
func InitTracing(ctx context.Context, cfg *TracingConfig) (*TracerProvider, error) {
	if cfg == nil {
		cfg = DefaultTracingConfig()
	}
	if cfg.OTLPEndpoint == "" {
		return &TracerProvider{tracer: otel.Tracer(TracerName)}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(), // collectors in CI are usually sidecars
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}
	res, err := runResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	// The process exits right after the run, so spans are exported
	// synchronously instead of batched.
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(cfg.SampleRate)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{provider: provider, tracer: provider.Tracer(TracerName)}, nil
}

func runResource(cfg *TracingConfig) (*resource.Resource, error) {
	// Schemaless so the merge cannot conflict with the SDK default's schema URL.
	return resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
	))
}

// samplerFor maps a rate in [0, 1] to a sampler. Child spans follow the
// decision of the run span.
func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
}

// Shutdown flushes and stops the tracer provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider != nil {
		return tp.provider.Shutdown(ctx)
	}
	return nil
}

// Tracer returns the underlying tracer.
func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// StartRunSpan starts the span covering one complete execution.
func StartRunSpan(ctx context.Context, provider string, structured bool, schemaName string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("llm.provider", provider),
		attribute.Bool("runner.structured", structured),
	}
	if schemaName != "" {
		attrs = append(attrs, attribute.String("runner.schema", schemaName))
	}
	return otel.Tracer(TracerName).Start(ctx, "runner.execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// StartAttemptSpan starts a span for one backend call.
func StartAttemptSpan(ctx context.Context, provider string, attempt int) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "llm.complete",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.provider", provider),
			attribute.Int("llm.attempt", attempt),
		),
	)
}

// RecordLLMMetrics records token usage and latency on an attempt span.
func RecordLLMMetrics(span trace.Span, model string, inputTokens, outputTokens int, duration time.Duration) {
	span.SetAttributes(
		attribute.String("llm.model", model),
		attribute.Int("llm.input_tokens", inputTokens),
		attribute.Int("llm.output_tokens", outputTokens),
		attribute.Int("llm.total_tokens", inputTokens+outputTokens),
		attribute.Int64("llm.duration_ms", duration.Milliseconds()),
	)
}

// RecordRetry notes on the run span that an attempt failed and will be
// retried.
func RecordRetry(span trace.Span, attempt int, reason string, wait time.Duration) {
	span.AddEvent("retry", trace.WithAttributes(
		attribute.Int("llm.attempt", attempt),
		attribute.String("retry.reason", reason),
		attribute.Int64("retry.wait_ms", wait.Milliseconds()),
	))
}

// RecordOutcome tags the run span with the final outcome kind.
func RecordOutcome(span trace.Span, kind string, attempts int) {
	span.SetAttributes(
		attribute.String("runner.outcome", kind),
		attribute.Int("runner.attempts", attempts),
	)
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
