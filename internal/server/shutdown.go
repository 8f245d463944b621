// Package server runs the broker's HTTP listener with ordered, graceful
// shutdown.
package server

import (
	"context"

	"github.com/rs/zerolog/log"
)

type hook struct {
	name string
	fn   func(context.Context) error
}

// ShutdownHooks is an ordered collection of cleanup functions executed when
// the server stops. Execution continues past failing hooks: a failed
// telemetry flush must not prevent later hooks from running.
type ShutdownHooks struct {
	hooks []hook
}

// Add registers a shutdown hook. Nil hooks are ignored with a warning.
func (s *ShutdownHooks) Add(name string, fn func(context.Context) error) {
	if fn == nil {
		log.Warn().Str("hook", name).Msg("ignoring nil shutdown hook")
		return
	}

	s.hooks = append(s.hooks, hook{name: name, fn: fn})
}

// Execute runs the hooks in registration order under the given context.
func (s *ShutdownHooks) Execute(ctx context.Context) {
	for _, h := range s.hooks {
		logger := log.With().Str("hook", h.name).Logger()

		if err := h.fn(ctx); err != nil {
			logger.Warn().Err(err).Msg("shutdown hook failed")
		} else {
			logger.Info().Msg("shutdown hook complete")
		}
	}
}
