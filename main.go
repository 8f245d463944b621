package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/justinas/alice"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/subculture-collective/transcript-create-sub001/internal/audit"
	"github.com/subculture-collective/transcript-create-sub001/internal/broker"
	"github.com/subculture-collective/transcript-create-sub001/internal/config"
	"github.com/subculture-collective/transcript-create-sub001/internal/observe"
	"github.com/subculture-collective/transcript-create-sub001/internal/provider"
	"github.com/subculture-collective/transcript-create-sub001/internal/server"
)

func configureServerRoutes(cfg config.Config, manager *broker.Manager) http.Handler {
	// wrap a mux such that HTTP telemetry is configured by default
	muxWithoutTelemetry := http.NewServeMux()
	mux := observe.NewMux(muxWithoutTelemetry)

	// Request bodies on this API are small; anything larger is abuse.
	requestLimitBytes := int64(20 << 10) // 20 KB
	requestLimiter := maxRequestSize(requestLimitBytes)

	auditor := audit.Middleware()
	authorizer := bearerAuth(cfg.Server.AuthToken)

	brokerRouteMiddleware := alice.New(requestLimiter, auditor, authorizer)
	standardRouteMiddleware := alice.New(requestLimiter)

	mux.Handle("GET /token/{type}", brokerRouteMiddleware.Then(handleGetToken(manager)))
	mux.Handle("POST /token/{type}/invalid", brokerRouteMiddleware.Then(handleInvalidateToken(manager)))
	mux.Handle("POST /cache/clear", brokerRouteMiddleware.Then(handleClearCache(manager)))
	mux.Handle("GET /stats", brokerRouteMiddleware.Then(handleStats(manager)))

	// healthchecks are not included in telemetry or authorization
	muxWithoutTelemetry.Handle("GET /healthcheck", standardRouteMiddleware.Then(handleHealthCheck()))

	return mux
}

func main() {
	configureLogging()

	logBuildInfo()

	err := launchServer()
	if err != nil {
		log.Fatal().Err(err).Msg("server failed to start")
	}
}

func launchServer() error {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("configuration load failed: %w", err)
	}

	// configure telemetry, including wrapping the default HTTP client so the
	// issuer provider's requests are traced
	shutdownTelemetry, err := observe.Configure(ctx, cfg.Observe)
	if err != nil {
		return fmt.Errorf("telemetry bootstrap failed: %w", err)
	}

	http.DefaultTransport = observe.HTTPTransport(
		configureHTTPTransport(cfg.Server),
		cfg.Observe,
	)
	http.DefaultClient = &http.Client{
		Transport: http.DefaultTransport,
	}

	providers, err := provider.Defaults(cfg)
	if err != nil {
		return fmt.Errorf("provider configuration failed: %w", err)
	}

	for _, p := range providers {
		log.Info().
			Str("provider", p.Name()).
			Bool("available", p.Available()).
			Msg("token provider configured")
	}

	manager := broker.New(cfg.Token.TTL(), cfg.Token.Cooldown(), providers)

	handler := configureServerRoutes(cfg, manager)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		MaxHeaderBytes:    20 << 10,         // 20 KB
		ReadHeaderTimeout: 20 * time.Second, // Prevent Slowloris attacks
	}

	hooks := &server.ShutdownHooks{}
	hooks.Add("telemetry", shutdownTelemetry)

	err = server.Serve(cfg.Server, srv, hooks)
	if err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

func configureLogging() {
	// Set global level to the minimum: allows the OpenTelemetry SDK logging
	// to be configured separately. Any logger that sets its own level will
	// log, as this effectively disables the global level.
	zerolog.SetGlobalLevel(zerolog.Level(-128))

	// default level is Info
	log.Logger = log.Level(zerolog.InfoLevel)

	if os.Getenv("ENV") == "development" {
		log.Logger = log.
			Output(zerolog.ConsoleWriter{Out: os.Stdout}).
			Level(zerolog.DebugLevel)
	}

	zerolog.DefaultContextLogger = &log.Logger
}

func logBuildInfo() {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	ev := log.Info()
	for _, v := range buildInfo.Settings {
		if strings.HasPrefix(v.Key, "vcs.") ||
			strings.HasPrefix(v.Key, "GO") ||
			v.Key == "CGO_ENABLED" {
			ev = ev.Str(v.Key, v.Value)
		}
	}

	ev.Msg("build information")
}

func configureHTTPTransport(cfg config.ServerConfig) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	transport.MaxIdleConns = cfg.OutgoingHTTPMaxIdleConns
	transport.MaxConnsPerHost = cfg.OutgoingHTTPMaxConnsPerHost

	return transport
}
