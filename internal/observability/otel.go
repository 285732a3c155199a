// Package observability bootstraps process-wide telemetry: OpenTelemetry
// tracing exported over OTLP/gRPC and the global zerolog logger.
package observability

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/credentials"

	"github.com/tbourn/files-cache-gateway/internal/config"
)

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// tracing holds the constructors SetupOTel depends on; tests swap them.
var tracing = struct {
	exporter func(ctx context.Context, opts ...otlptracegrpc.Option) (sdktrace.SpanExporter, error)
	resource func(ctx context.Context, service, version string) (*resource.Resource, error)
}{
	exporter: func(ctx context.Context, opts ...otlptracegrpc.Option) (sdktrace.SpanExporter, error) {
		// The gRPC connection is established lazily, so a missing collector
		// does not fail startup.
		return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	},
	resource: func(ctx context.Context, service, version string) (*resource.Resource, error) {
		return resource.New(ctx,
			resource.WithAttributes(semconv.ServiceName(service), semconv.ServiceVersion(version)),
			resource.WithProcessRuntimeName(),
			resource.WithHost(),
		)
	},
}

func grpcOptions(cfg config.OTELConfig) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		return append(opts, otlptracegrpc.WithInsecure())
	}
	return append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
}

// SetupOTel installs a batching tracer provider that exports to cfg.Endpoint.
// Spans come from the gin middleware, the upstream HTTP transport, the GORM
// plugin and the cache service. With tracing disabled the global no-op
// provider is left alone. Globals are only replaced once every part has been
// built, so a failed setup changes nothing.
func SetupOTel(ctx context.Context, cfg config.OTELConfig, version string) (ShutdownFunc, error) {
	if !cfg.Enabled {
		return noopShutdown, nil
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("otel: empty exporter endpoint")
	}

	exp, err := tracing.exporter(ctx, grpcOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("otel: exporter: %w", err)
	}
	res, err := tracing.resource(ctx, cfg.ServiceName, version)
	if err != nil {
		_ = exp.Shutdown(ctx)
		return nil, fmt.Errorf("otel: resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		log.Warn().Err(err).Str("component", "otel").Msg("telemetry error")
	}))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	log.Info().Str("endpoint", cfg.Endpoint).Float64("sample_ratio", cfg.SampleRatio).
		Bool("insecure", cfg.Insecure).Msg("tracing enabled")
	return tp.Shutdown, nil
}
