// internal/telemetry/telemetry.go
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
)

// Init installs a global tracer provider exporting over OTLP/HTTP and
// returns its shutdown func. With no endpoint tracing stays a no-op and the
// returned func does nothing.
func Init(serviceName, endpoint string) (func(), error) {
	if endpoint == "" {
		log.Debug().Msg("no OTLP endpoint configured, tracing disabled")
		return func() {}, nil
	}
	if serviceName == "" {
		return nil, errors.New("service name cannot be empty")
	}

	client := otlptracehttp.NewClient(
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	exporter, err := otlptrace.New(context.Background(), client)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	log.Info().Str("endpoint", endpoint).Str("service", serviceName).Msg("tracing enabled")

	return func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("shutting down tracer provider")
		}
	}, nil
}
