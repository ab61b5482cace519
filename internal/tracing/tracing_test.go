package tracing

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/open1s/aisbot/internal/config"
)

func TestSetupDisabledReturnsNoopShutdown(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{Enabled: false}, "aisbot")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shutdown == nil {
		t.Fatal("expected a non-nil shutdown func even when disabled")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("expected no-op shutdown to succeed, got %v", err)
	}
}

func TestTracerReturnsUsableTracerBeforeSetup(t *testing.T) {
	tr := Tracer()
	if tr == nil {
		t.Fatal("expected a non-nil tracer even before Setup")
	}
	_, span := tr.Start(context.Background(), "probe")
	defer span.End()
}

func TestStartHistoricalReturnsSpanAndContext(t *testing.T) {
	start := time.Now().Add(-time.Hour)
	ctx, span := StartHistorical(context.Background(), "past-op", start)
	if span == nil {
		t.Fatal("expected a non-nil span")
	}
	span.End()
	if ctx == nil {
		t.Fatal("expected a non-nil context")
	}
}

func TestDetachPreservesSpanContextButDropsCancellation(t *testing.T) {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    [16]byte{1},
		SpanID:     [8]byte{1},
		TraceFlags: trace.FlagsSampled,
	})
	parent, cancel := context.WithCancel(trace.ContextWithSpanContext(context.Background(), sc))
	cancel()

	detached := Detach(parent)
	if detached.Err() != nil {
		t.Fatalf("expected detached context to not inherit cancellation, got %v", detached.Err())
	}
	gotSC := trace.SpanContextFromContext(detached)
	if gotSC.TraceID() != sc.TraceID() || gotSC.SpanID() != sc.SpanID() {
		t.Fatal("expected detached context to carry the same span identity")
	}
}
