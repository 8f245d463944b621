// Package observe configures OpenTelemetry tracing and metrics for the
// broker, and wraps the HTTP surfaces (mux and outgoing transport) with
// instrumentation.
package observe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/subculture-collective/transcript-create-sub001/internal/config"
)

// Configure bootstraps the OTel SDK from configuration and returns a
// shutdown function that flushes both providers. When telemetry is disabled
// the returned shutdown is a no-op.
func Configure(ctx context.Context, cfg config.ObserveConfig) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	if !cfg.Enabled {
		log.Info().Msg("telemetry: disabled")
		return noop, nil
	}

	configureSDKLogging(cfg)

	res, err := telemetryResource(ctx, cfg)
	if err != nil {
		return noop, fmt.Errorf("telemetry resource configuration failed: %w", err)
	}

	tracerShutdown, err := configureTracing(ctx, cfg, res)
	if err != nil {
		return noop, err
	}

	meterShutdown := noop
	if cfg.MetricsEnabled {
		meterShutdown, err = configureMetrics(ctx, cfg, res)
		if err != nil {
			// tracing is already live; wind it back before failing
			_ = tracerShutdown(ctx)
			return noop, err
		}
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info().
		Str("type", cfg.Type).
		Bool("metrics", cfg.MetricsEnabled).
		Msg("telemetry: configured")

	return func(ctx context.Context) error {
		return errors.Join(tracerShutdown(ctx), meterShutdown(ctx))
	}, nil
}

// configureSDKLogging routes the OTel SDK's internal logging through zerolog
// at its own level, independent of the application logger.
func configureSDKLogging(cfg config.ObserveConfig) {
	level, err := zerolog.ParseLevel(cfg.SDKLogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.SDKLogLevel).Msg("telemetry: unknown SDK log level, using info")
		level = zerolog.InfoLevel
	}

	sdkLogger := log.Logger.Level(level)
	otel.SetLogger(zerologr.New(&sdkLogger))
}

func telemetryResource(ctx context.Context, cfg config.ObserveConfig) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
}

func configureTracing(ctx context.Context, cfg config.ObserveConfig, res *resource.Resource) (func(context.Context) error, error) {
	var exporter sdktrace.SpanExporter
	var err error

	switch cfg.Type {
	case "grpc":
		exporter, err = otlptracegrpc.New(ctx)
	case "stdout":
		exporter, err = stdouttrace.New()
	default:
		err = fmt.Errorf("unknown telemetry type: %q", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("trace exporter configuration failed: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(time.Duration(cfg.TraceBatchTimeoutSeconds)*time.Second),
		),
	)

	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}

func configureMetrics(ctx context.Context, cfg config.ObserveConfig, res *resource.Resource) (func(context.Context) error, error) {
	var exporter sdkmetric.Exporter
	var err error

	switch cfg.Type {
	case "grpc":
		exporter, err = otlpmetricgrpc.New(ctx)
	case "stdout":
		exporter, err = stdoutmetric.New()
	default:
		err = fmt.Errorf("unknown telemetry type: %q", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("metric exporter configuration failed: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(time.Duration(cfg.MetricReadIntervalSeconds)*time.Second),
		)),
	)

	otel.SetMeterProvider(provider)

	return provider.Shutdown, nil
}
