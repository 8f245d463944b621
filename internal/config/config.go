package config

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Server  ServerConfig
	Token   TokenConfig
	Issuer  IssuerConfig
	Observe ObserveConfig
}

type ServerConfig struct {
	Port                   int `env:"SERVER_PORT, default=8080"`
	ShutdownTimeoutSeconds int `env:"SERVER_SHUTDOWN_TIMEOUT_SECS, default=25"`

	OutgoingHTTPMaxIdleConns    int `env:"SERVER_OUTGOING_MAX_IDLE_CONNS, default=100"`
	OutgoingHTTPMaxConnsPerHost int `env:"SERVER_OUTGOING_MAX_CONNS_PER_HOST, default=20"`

	// AuthToken, when set, is the shared bearer token clients must present
	// on token and cache routes. Empty disables authentication.
	AuthToken string `env:"SERVER_AUTH_TOKEN"`
}

// TokenConfig specifies cache policy and manually configured token values.
type TokenConfig struct {
	// TTLSeconds is the maximum age of a cached token before it is evicted.
	TTLSeconds int `env:"POTOKEN_TTL_SECS, default=21600"`

	// CooldownSeconds is the window after a reported failure during which a
	// cached token is withheld.
	CooldownSeconds int `env:"POTOKEN_FAILURE_COOLDOWN_SECS, default=300"`

	// Per-type manual tokens. These take priority over any issuing service.
	PlayerToken string `env:"POTOKEN_PLAYER"`
	GVSToken    string `env:"POTOKEN_GVS"`
	SubsToken   string `env:"POTOKEN_SUBS"`

	// File is an optional YAML document of manual tokens; values from the
	// file fill in any type not already set by environment.
	File string `env:"POTOKEN_FILE"`
}

func (c TokenConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

func (c TokenConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// IssuerConfig specifies the remote token-issuing service. The HTTP provider
// is active only when Enabled is true and BaseURL is set.
type IssuerConfig struct {
	Enabled        bool   `env:"POTOKEN_ISSUER_ENABLED, default=false"`
	BaseURL        string `env:"POTOKEN_ISSUER_URL"`
	TimeoutSeconds int    `env:"POTOKEN_ISSUER_TIMEOUT_SECS, default=10"`
}

func (c IssuerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type ObserveConfig struct {
	SDKLogLevel                string `env:"OBSERVE_OTEL_LOG_LEVEL, default=info"`
	Enabled                    bool   `env:"OBSERVE_ENABLED, default=false"`
	MetricsEnabled             bool   `env:"OBSERVE_METRICS_ENABLED, default=true"`
	Type                       string `env:"OBSERVE_TYPE, default=grpc"`
	ServiceName                string `env:"OBSERVE_SERVICE_NAME, default=potoken-broker"`
	TraceBatchTimeoutSeconds   int    `env:"OBSERVE_TRACE_BATCH_TIMEOUT_SECS, default=20"`
	MetricReadIntervalSeconds  int    `env:"OBSERVE_METRIC_READ_INTERVAL_SECS, default=60"`
	HTTPTransportEnabled       bool   `env:"OBSERVE_HTTP_TRANSPORT_ENABLED, default=true"`
	HTTPConnectionTraceEnabled bool   `env:"OBSERVE_CONNECTION_TRACE_ENABLED, default=true"`
}

func Load(ctx context.Context) (Config, error) {
	return load(ctx, nil) // load from OS environment
}

func load(ctx context.Context, lookup envconfig.Lookuper) (Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookup, // nil defaults to OS environment
	})
	if err != nil {
		return cfg, err
	}

	if err := cfg.Token.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid token configuration: %w", err)
	}

	if err := cfg.Issuer.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid issuer configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that cache policy values are usable.
func (c TokenConfig) Validate() error {
	if c.TTLSeconds <= 0 {
		return fmt.Errorf("POTOKEN_TTL_SECS must be positive, got %d", c.TTLSeconds)
	}
	if c.CooldownSeconds < 0 {
		return fmt.Errorf("POTOKEN_FAILURE_COOLDOWN_SECS must not be negative, got %d", c.CooldownSeconds)
	}
	return nil
}

// Validate checks the issuer settings. An enabled issuer without a base URL
// is not an error: the provider simply never activates.
func (c IssuerConfig) Validate() error {
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil {
			return fmt.Errorf("POTOKEN_ISSUER_URL is not a valid URL: %w", err)
		}
		if !u.IsAbs() {
			return fmt.Errorf("POTOKEN_ISSUER_URL must be absolute: %s", c.BaseURL)
		}
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("POTOKEN_ISSUER_TIMEOUT_SECS must be positive, got %d", c.TimeoutSeconds)
	}
	return nil
}
