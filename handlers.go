package main

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/subculture-collective/transcript-create-sub001/internal/audit"
	"github.com/subculture-collective/transcript-create-sub001/internal/broker"
	"github.com/subculture-collective/transcript-create-sub001/internal/potoken"
)

// ErrorResponse is the JSON body for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// TokenResponse is the JSON body for a served token. Source and age let the
// consumer distinguish a fresh issuer token from a long-cached manual one.
type TokenResponse struct {
	Token      string  `json:"token"`
	Type       string  `json:"type"`
	Source     string  `json:"source"`
	AgeSeconds float64 `json:"ageSeconds"`
}

// InvalidateRequest is the JSON body reporting a rejected token.
type InvalidateRequest struct {
	Context map[string]string `json:"context,omitempty"`
	Reason  string            `json:"reason,omitempty"`
}

// parseTokenRequest extracts the token type from the path and the optional
// context from the query string. The context parameter, when present, must
// be a JSON object of string values.
func parseTokenRequest(r *http.Request) (potoken.Type, map[string]string, error) {
	typ, err := potoken.ParseType(r.PathValue("type"))
	if err != nil {
		return "", nil, err
	}

	var reqCtx map[string]string
	if raw := r.URL.Query().Get("context"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &reqCtx); err != nil {
			return "", nil, err
		}
	}

	return typ, reqCtx, nil
}

func handleGetToken(manager *broker.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		typ, reqCtx, err := parseTokenRequest(r)
		if err != nil {
			log.Info().Msgf("invalid token request: %v", err)
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		entry := audit.FromContext(r.Context())
		entry.TokenType = typ.String()

		token, ok := manager.GetToken(r.Context(), typ, reqCtx)
		if !ok {
			// expected absence: cache and every provider came up empty
			writeJSONError(w, http.StatusNotFound, "no token available")
			return
		}
		entry.TokenServed = true

		writeJSON(w, http.StatusOK, TokenResponse{
			Token:      token.Value,
			Type:       typ.String(),
			Source:     token.Source,
			AgeSeconds: token.Age(time.Now()).Seconds(),
		})
	})
}

func handleInvalidateToken(manager *broker.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		typ, err := potoken.ParseType(r.PathValue("type"))
		if err != nil {
			log.Info().Msgf("invalid token type: %v", err)
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		var report InvalidateRequest
		if err := json.NewDecoder(r.Body).Decode(&report); err != nil && err != io.EOF {
			log.Info().Msgf("invalid invalidation body: %v", err)
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		audit.FromContext(r.Context()).TokenType = typ.String()

		manager.MarkTokenInvalid(typ, report.Context, report.Reason)
		w.WriteHeader(http.StatusNoContent)
	})
}

func handleClearCache(manager *broker.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		manager.ClearCache()
		w.WriteHeader(http.StatusNoContent)
	})
}

func handleStats(manager *broker.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		writeJSON(w, http.StatusOK, manager.Stats())
	})
}

func handleHealthCheck() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

// bearerAuth requires the configured shared token on every request. With no
// token configured the middleware passes everything through, for deployments
// where the broker is reachable only from the pipeline's own network.
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				writeJSONError(w, http.StatusUnauthorized, "invalid or missing bearer token")
				return
			}

			audit.FromContext(r.Context()).Identified = true
			next.ServeHTTP(w, r)
		})
	}
}

func maxRequestSize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.MaxBytesHandler(next, limit)
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		// the status line is already written; logging is all that's left
		log.Info().Msgf("failed to write JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{Error: message})
}

// drainRequestBody reads and discards any remaining request body so HTTP/1
// connections can be reused.
func drainRequestBody(r *http.Request) {
	if r.Body != nil {
		// past this the client is assumed broken and the connection dropped
		io.CopyN(io.Discard, r.Body, 5*1024*1024)
	}
}
