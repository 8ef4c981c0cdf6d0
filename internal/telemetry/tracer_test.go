package telemetry

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitTracer_ExportsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err := InitTracer("relaycode-test", slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithWriter(&buf), WithServiceVersion("9.9.9"), WithSyncExport())
	if err != nil {
		t.Fatalf("InitTracer() error = %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "simulation.run")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"simulation.run", "relaycode-test", "9.9.9"} {
		if !strings.Contains(out, want) {
			t.Errorf("exported spans missing %q: %s", want, out)
		}
	}
}
