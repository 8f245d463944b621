// Package provider defines the token sources consulted on a cache miss.
// Providers are consulted in registration order; the first one returning a
// non-empty value wins.
package provider

import (
	"context"

	"github.com/subculture-collective/transcript-create-sub001/internal/config"
	"github.com/subculture-collective/transcript-create-sub001/internal/potoken"
)

// Provider is a single source of PO tokens.
//
// Implementations absorb ordinary operational failures (timeouts, bad
// responses, transport errors): those are logged internally and reported as
// an empty value with a nil error. A non-nil error indicates misuse, not an
// operational condition.
type Provider interface {
	// Name identifies the provider; it is recorded as the source of tokens
	// it produces.
	Name() string

	// Available is a cheap readiness check. It must not perform network I/O.
	Available() bool

	// Fetch returns a token value for the type and request context, or ""
	// when no token could be obtained.
	Fetch(ctx context.Context, typ potoken.Type, reqCtx map[string]string) (string, error)
}

// Defaults builds the provider chain in priority order: manual configuration
// first, so an operator-supplied token always wins, then the remote issuing
// service when configured. The order is part of the contract and must not be
// changed.
func Defaults(cfg config.Config) ([]Provider, error) {
	static, err := NewStatic(cfg.Token)
	if err != nil {
		return nil, err
	}

	providers := []Provider{static}

	if cfg.Issuer.Enabled && cfg.Issuer.BaseURL != "" {
		issuer, err := NewIssuer(cfg.Issuer)
		if err != nil {
			return nil, err
		}
		providers = append(providers, issuer)
	}

	return providers, nil
}
