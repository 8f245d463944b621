package server

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/subculture-collective/transcript-create-sub001/internal/config"
)

// Serve runs the HTTP server until SIGINT/SIGTERM, then drains in-flight
// requests within the configured shutdown timeout and executes the shutdown
// hooks. A hook failure is logged, not returned: by that point the listener
// has already stopped.
func Serve(cfg config.ServerConfig, srv *http.Server, hooks *ShutdownHooks) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server: listening")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		// ListenAndServe never returns nil; this is a bind or accept failure
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("server: shutdown signal received")

	timeout := time.Duration(cfg.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn().Err(err).Msg("server: shutdown did not complete cleanly")
	}

	hooks.Execute(shutdownCtx)

	log.Info().Msg("server: stopped")
	return nil
}
