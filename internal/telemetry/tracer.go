// Package telemetry sets up OpenTelemetry tracing for the relay service.
package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

type options struct {
	writer  io.Writer
	version string
	pretty  bool
	sync    bool
}

// Option configures InitTracer.
type Option func(*options)

// WithWriter sends exported spans to w instead of stdout.
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.writer = w }
}

// WithServiceVersion records the service version on every span.
func WithServiceVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithPrettyPrint indents exported spans.
func WithPrettyPrint() Option {
	return func(o *options) { o.pretty = true }
}

// WithSyncExport exports each span as it ends instead of batching.
func WithSyncExport() Option {
	return func(o *options) { o.sync = true }
}

// InitTracer initializes OpenTelemetry tracing and installs the provider globally.
// The returned function flushes and stops the provider.
func InitTracer(serviceName string, logger *slog.Logger, opts ...Option) (func(context.Context) error, error) {
	o := options{writer: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = slog.Default()
	}

	exporterOpts := []stdouttrace.Option{stdouttrace.WithWriter(o.writer)}
	if o.pretty {
		exporterOpts = append(exporterOpts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(exporterOpts...)
	if err != nil {
		return nil, err
	}

	attrs := []attribute.KeyValue{semconv.ServiceName(serviceName)}
	if o.version != "" {
		attrs = append(attrs, semconv.ServiceVersion(o.version))
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes("", attrs...),
	)
	if err != nil {
		return nil, err
	}

	spanExport := sdktrace.WithBatcher(exporter)
	if o.sync {
		spanExport = sdktrace.WithSyncer(exporter)
	}
	tp := sdktrace.NewTracerProvider(
		spanExport,
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)

	logger.Info("OpenTelemetry initialized", slog.String("service", serviceName))

	return tp.Shutdown, nil
}
