// Package tracing wires the agent loop and tool dispatch into OpenTelemetry.
// Spans nest through context.Context the normal otel way: whichever span is
// active on the incoming ctx becomes the parent of whatever this package's
// callers start next. There is no bespoke span-collector or store — the
// OTel SDK and exporter own that.
package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/open1s/aisbot/internal/config"
)

const tracerName = "github.com/open1s/aisbot/internal/agent"

// Tracer returns the package-wide tracer. Safe to call before Setup; in that
// case it resolves to otel's global no-op tracer provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// Setup installs a TracerProvider exporting via OTLP/HTTP when telemetry is
// enabled in config, or a no-op provider otherwise. The returned shutdown
// func flushes and closes the exporter; callers should defer it.
func Setup(ctx context.Context, cfg config.TelemetryConfig, serviceName string) (shutdown func(context.Context) error, err error) {
	if !cfg.Enabled {
		otel.SetTracerProvider(trace.NewNoopTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	name := cfg.ServiceName
	if name == "" {
		name = serviceName
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(name)),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// StartHistorical starts a span whose start timestamp is already in the
// past, for recording a unit of work (an LLM call, a tool execution) after
// the fact instead of wrapping it live. span.End() stamps the current time
// as the end; pass trace.WithTimestamp(end) to End for an earlier end.
func StartHistorical(ctx context.Context, name string, start time.Time, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithTimestamp(start), trace.WithAttributes(attrs...))
}

// Detach returns a context carrying the same trace/span identity as ctx but
// severed from its cancellation chain, so spans can still be emitted after
// the parent request context is cancelled (e.g. a subagent outliving the
// inbound request that spawned it).
func Detach(ctx context.Context) context.Context {
	sc := trace.SpanContextFromContext(ctx)
	return trace.ContextWithSpanContext(context.Background(), sc)
}
