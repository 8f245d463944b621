// Package audit emits one structured log event per API request, recording
// what was asked for and what the broker answered. The audit trail is the
// operator's record of token traffic; it is written even when a request
// fails.
package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

type contextKey struct{}

// Entry accumulates auditable facts about a request as it moves through the
// handler chain. Handlers annotate the entry via FromContext.
type Entry struct {
	Method      string
	Path        string
	TokenType   string
	TokenServed bool
	Status      int
	Identified  bool
}

// FromContext returns the request's audit entry. Outside the middleware a
// discarded entry is returned, so annotation is always safe.
func FromContext(ctx context.Context) *Entry {
	if e, ok := ctx.Value(contextKey{}).(*Entry); ok {
		return e
	}
	return &Entry{}
}

// statusRecorder captures the response status for the audit event.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Middleware installs an audit entry into the request context and logs it
// once the handler completes.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			entry := &Entry{
				Method: r.Method,
				Path:   r.URL.Path,
			}
			ctx := context.WithValue(r.Context(), contextKey{}, entry)

			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r.WithContext(ctx))
			entry.Status = recorder.status

			ev := log.Info().
				Str("method", entry.Method).
				Str("path", entry.Path).
				Int("status", entry.Status).
				Dur("duration", time.Since(start)).
				Bool("identified", entry.Identified)

			if entry.TokenType != "" {
				ev = ev.Str("tokenType", entry.TokenType).
					Bool("tokenServed", entry.TokenServed)
			}

			ev.Msg("audit: request")
		})
	}
}
