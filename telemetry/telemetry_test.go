package telemetry_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/freekieb7/loam/telemetry"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func restoreLogger(t *testing.T) {
	logger := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(logger)
	})
}

func TestSetup_Local(t *testing.T) {
	restoreLogger(t)

	shutdown, err := telemetry.Setup(context.Background(), telemetry.Config{
		ServiceName: "loam-test",
		Level:       slog.LevelWarn,
	})
	if err != nil {
		t.Fatal(err)
	}

	if slog.Default().Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be filtered at warn level")
	}
	if !slog.Default().Enabled(context.Background(), slog.LevelError) {
		t.Error("error should pass at warn level")
	}

	if err := shutdown(context.Background()); err != nil {
		t.Errorf("local shutdown: %v", err)
	}
}

func TestSetup_OTLP(t *testing.T) {
	restoreLogger(t)

	shutdown, err := telemetry.Setup(context.Background(), telemetry.Config{
		ServiceName: "loam-test",
		Endpoint:    "http://127.0.0.1:4317",
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Errorf("expected the SDK tracer provider, got %T", otel.GetTracerProvider())
	}

	// No collector listens in tests, so flushing may fail; it must not hang.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	shutdown(ctx)
}
