// Package testhelpers provides fakes for exercising the broker against a
// token-issuing service without the real upstream.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// MockIssuer is a stand-in for the remote token-issuing service. It serves
// the configured per-type tokens on GET /token and counts requests.
type MockIssuer struct {
	Server *httptest.Server

	requests atomic.Int64
	tokens   map[string]string
	status   int
}

// NewMockIssuer starts a mock issuing service serving the given tokens,
// keyed by wire-format type name. The server stops with the test.
func NewMockIssuer(t *testing.T, tokens map[string]string) *MockIssuer {
	t.Helper()

	issuer := &MockIssuer{
		tokens: tokens,
		status: http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /token", issuer.handleToken)

	issuer.Server = httptest.NewServer(mux)
	t.Cleanup(issuer.Server.Close)

	return issuer
}

// Fail makes the issuer respond with the given status to all further
// requests.
func (m *MockIssuer) Fail(status int) {
	m.status = status
}

// Requests reports how many token requests the issuer has served.
func (m *MockIssuer) Requests() int64 {
	return m.requests.Load()
}

func (m *MockIssuer) handleToken(w http.ResponseWriter, r *http.Request) {
	m.requests.Add(1)

	if m.status != http.StatusOK {
		w.WriteHeader(m.status)
		return
	}

	value, ok := m.tokens[r.URL.Query().Get("type")]
	if !ok || value == "" {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"error": "no token for type"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": value})
}
