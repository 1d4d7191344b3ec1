// Package telemetry sets up OpenTelemetry tracing for a pipeline run.
package telemetry

import (
	"context"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NewTracerProvider returns a provider exporting spans as JSON to w, and the
// function that flushes and stops it. A nil writer yields a no-op provider.
func NewTracerProvider(w io.Writer, serviceName, runID string, logger *slog.Logger) (trace.TracerProvider, func(context.Context) error, error) {
	if w == nil {
		return noop.NewTracerProvider(), func(context.Context) error { return nil }, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", serviceName),
			attribute.String("connectome.run_id", runID),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	logger.Debug("OpenTelemetry initialized.", slog.String("service", serviceName))

	return tp, tp.Shutdown, nil
}
