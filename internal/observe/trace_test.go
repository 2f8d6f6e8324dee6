package observe

import (
	"context"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestStartSpanProducesValidTraceID(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer(tracerName).Start(context.Background(), "test-span")
	defer span.End()

	if got := CorrelationID(ctx); got == "" {
		t.Error("CorrelationID returned empty string inside active span")
	}
}

func TestCorrelationIDWithoutSpan(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID = %q, want empty", got)
	}
}

func TestLoggerWithoutSpanReturnsDefault(t *testing.T) {
	l := Logger(context.Background())
	if l == nil {
		t.Fatal("Logger returned nil")
	}
}
