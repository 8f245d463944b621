package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/subculture-collective/transcript-create-sub001/internal/broker"
	"github.com/subculture-collective/transcript-create-sub001/internal/config"
	"github.com/subculture-collective/transcript-create-sub001/internal/potoken"
	"github.com/subculture-collective/transcript-create-sub001/internal/provider"
)

func testManager(t *testing.T, tokenCfg config.TokenConfig) *broker.Manager {
	t.Helper()

	static, err := provider.NewStatic(tokenCfg)
	require.NoError(t, err)

	return broker.New(time.Hour, time.Minute, []provider.Provider{static})
}

func getTokenRequest(typ string, query string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/token/"+typ+query, nil)
	req.SetPathValue("type", typ)
	return req
}

func TestHandleGetToken_Success(t *testing.T) {
	manager := testManager(t, config.TokenConfig{PlayerToken: "p1"})

	rr := httptest.NewRecorder()
	handleGetToken(manager).ServeHTTP(rr, getTokenRequest("player", ""))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var resp TokenResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "p1", resp.Token)
	assert.Equal(t, "player", resp.Type)
	assert.Equal(t, potoken.SourceManual, resp.Source)
	assert.GreaterOrEqual(t, resp.AgeSeconds, 0.0)
}

func TestHandleGetToken_WithContextParameter(t *testing.T) {
	manager := testManager(t, config.TokenConfig{GVSToken: "g1"})

	rr := httptest.NewRecorder()
	handleGetToken(manager).ServeHTTP(rr, getTokenRequest("gvs", `?context=%7B%22region%22%3A%22au%22%7D`))

	require.Equal(t, http.StatusOK, rr.Code)

	// the context scoped the cache entry
	assert.Equal(t, 1, manager.Stats().Cache.CachedTokens)
}

func TestHandleGetToken_AbsenceIsNotFound(t *testing.T) {
	manager := testManager(t, config.TokenConfig{})

	rr := httptest.NewRecorder()
	handleGetToken(manager).ServeHTTP(rr, getTokenRequest("player", ""))

	require.Equal(t, http.StatusNotFound, rr.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "no token available", resp.Error)
}

func TestHandleGetToken_RejectsUnknownType(t *testing.T) {
	manager := testManager(t, config.TokenConfig{PlayerToken: "p1"})

	rr := httptest.NewRecorder()
	handleGetToken(manager).ServeHTTP(rr, getTokenRequest("visitor", ""))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleGetToken_RejectsMalformedContext(t *testing.T) {
	manager := testManager(t, config.TokenConfig{PlayerToken: "p1"})

	rr := httptest.NewRecorder()
	handleGetToken(manager).ServeHTTP(rr, getTokenRequest("player", `?context=not-json`))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleInvalidateToken_StartsCooldown(t *testing.T) {
	manager := testManager(t, config.TokenConfig{PlayerToken: "p1"})

	// prime the cache
	rr := httptest.NewRecorder()
	handleGetToken(manager).ServeHTTP(rr, getTokenRequest("player", ""))
	require.Equal(t, http.StatusOK, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/token/player/invalid",
		strings.NewReader(`{"reason":"upstream 403"}`))
	req.SetPathValue("type", "player")

	rr = httptest.NewRecorder()
	handleInvalidateToken(manager).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	// the manual provider immediately re-supplies, replacing the failed
	// entry, so the next request still succeeds
	rr = httptest.NewRecorder()
	handleGetToken(manager).ServeHTTP(rr, getTokenRequest("player", ""))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHandleInvalidateToken_EmptyBodyAllowed(t *testing.T) {
	manager := testManager(t, config.TokenConfig{PlayerToken: "p1"})

	req := httptest.NewRequest(http.MethodPost, "/token/player/invalid", nil)
	req.SetPathValue("type", "player")

	rr := httptest.NewRecorder()
	handleInvalidateToken(manager).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestHandleInvalidateToken_RejectsUnknownType(t *testing.T) {
	manager := testManager(t, config.TokenConfig{})

	req := httptest.NewRequest(http.MethodPost, "/token/visitor/invalid", nil)
	req.SetPathValue("type", "visitor")

	rr := httptest.NewRecorder()
	handleInvalidateToken(manager).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleClearCache(t *testing.T) {
	manager := testManager(t, config.TokenConfig{PlayerToken: "p1"})

	rr := httptest.NewRecorder()
	handleGetToken(manager).ServeHTTP(rr, getTokenRequest("player", ""))
	require.Equal(t, 1, manager.Stats().Cache.CachedTokens)

	rr = httptest.NewRecorder()
	handleClearCache(manager).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/cache/clear", nil))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, 0, manager.Stats().Cache.CachedTokens)
}

func TestHandleStats(t *testing.T) {
	manager := testManager(t, config.TokenConfig{PlayerToken: "p1"})

	rr := httptest.NewRecorder()
	handleGetToken(manager).ServeHTTP(rr, getTokenRequest("player", ""))

	rr = httptest.NewRecorder()
	handleStats(manager).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stats", nil))

	require.Equal(t, http.StatusOK, rr.Code)

	var stats broker.Stats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.Retrievals.Total)
	assert.Equal(t, int64(1), stats.Retrievals.Success)
	assert.Contains(t, stats.Providers, "manual")
}

func TestHandleHealthCheck(t *testing.T) {
	rr := httptest.NewRecorder()
	handleHealthCheck().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}

func TestBearerAuth(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("unconfigured passes through", func(t *testing.T) {
		rr := httptest.NewRecorder()
		bearerAuth("")(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stats", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("missing token rejected", func(t *testing.T) {
		rr := httptest.NewRecorder()
		bearerAuth("secret")(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stats", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("wrong token rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/stats", nil)
		req.Header.Set("Authorization", "Bearer wrong")

		rr := httptest.NewRecorder()
		bearerAuth("secret")(next).ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("correct token accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/stats", nil)
		req.Header.Set("Authorization", "Bearer secret")

		rr := httptest.NewRecorder()
		bearerAuth("secret")(next).ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}
