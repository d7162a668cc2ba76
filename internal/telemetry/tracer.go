package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/karenlarocque/feature-forgetting/internal/config"
)

const tracerName = "github.com/karenlarocque/feature-forgetting"

// Tracer returns the tracer used for session and submission spans. It uses
// the global provider, which is a no-op until InitTracer runs.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// InitTracer initializes OpenTelemetry tracing. When tracing is disabled the
// returned shutdown function does nothing.
func InitTracer(cfg config.TelemetryConfig, logger *slog.Logger) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	// Create stdout exporter for development
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	// Create resource with service name
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	// Create trace provider
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)

	logger.Info("OpenTelemetry initialized", slog.String("service", cfg.ServiceName))

	// Return shutdown function
	return tp.Shutdown, nil
}
