package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/subculture-collective/transcript-create-sub001/internal/config"
	"github.com/subculture-collective/transcript-create-sub001/internal/potoken"
)

// issuerSourceName identifies tokens obtained from the remote issuing
// service.
const issuerSourceName = "issuer"

// Issuer obtains tokens from a remote issuing service over HTTP. Every
// operational failure (non-200 status, transport error, timeout, missing
// token field) is logged and reported as absence; the broker then moves on
// or returns empty-handed.
type Issuer struct {
	baseURL string
	client  *http.Client
}

// issuerResponse is the wire format of the issuing service.
type issuerResponse struct {
	Token string `json:"token"`
	Error string `json:"error,omitempty"`
}

// NewIssuer creates the HTTP provider. The client deliberately rides on
// http.DefaultTransport so outgoing requests share the process-wide
// instrumented transport.
func NewIssuer(cfg config.IssuerConfig) (*Issuer, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("could not parse issuer URL: %w", err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("issuer URL must be absolute: %s", cfg.BaseURL)
	}

	return &Issuer{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		client: &http.Client{
			Transport: http.DefaultTransport,
			Timeout:   cfg.Timeout(),
		},
	}, nil
}

func (i *Issuer) Name() string {
	return issuerSourceName
}

// Available reports whether the provider is configured. Reachability of the
// service is only discovered on Fetch; this check performs no I/O.
func (i *Issuer) Available() bool {
	return i.baseURL != ""
}

func (i *Issuer) Fetch(ctx context.Context, typ potoken.Type, reqCtx map[string]string) (string, error) {
	logger := log.With().
		Str("provider", issuerSourceName).
		Stringer("type", typ).
		Logger()

	query := url.Values{}
	query.Set("type", typ.String())

	if len(reqCtx) > 0 {
		serialized, err := json.Marshal(reqCtx)
		if err != nil {
			// a map[string]string always serializes; treat defensively anyway
			logger.Error().Err(err).Msg("could not serialize request context")
			return "", nil
		}
		query.Set("context", string(serialized))
	}

	requestURL := i.baseURL + "/token?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		logger.Error().Err(err).Msg("could not build issuer request")
		return "", nil
	}

	resp, err := i.client.Do(req)
	if err != nil {
		logger.Warn().Err(err).Msg("issuer request failed")
		return "", nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Warn().Int("status", resp.StatusCode).Msg("issuer returned non-200 status")
		return "", nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		logger.Warn().Err(err).Msg("could not read issuer response")
		return "", nil
	}

	var parsed issuerResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		logger.Warn().Err(err).Msg("could not decode issuer response")
		return "", nil
	}

	if parsed.Token == "" {
		logger.Warn().Str("issuerError", parsed.Error).Msg("issuer response contained no token")
		return "", nil
	}

	return parsed.Token, nil
}
