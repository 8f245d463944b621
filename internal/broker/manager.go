// Package broker orchestrates PO token retrieval: cache first, then a
// priority-ordered provider chain, with the winning token cached for
// subsequent callers.
package broker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/subculture-collective/transcript-create-sub001/internal/cache"
	"github.com/subculture-collective/transcript-create-sub001/internal/potoken"
	"github.com/subculture-collective/transcript-create-sub001/internal/provider"
	"golang.org/x/sync/singleflight"
)

// Manager coordinates the token cache and the provider chain. It is safe for
// concurrent use: cache state is internally serialized, and provider walks
// for the same key are collapsed into a single flight so concurrent misses do
// not trigger redundant issuer calls.
type Manager struct {
	cache  *cache.Cache
	flight singleflight.Group

	mu        sync.Mutex
	providers []provider.Provider
	total     int64
	success   int64
	failed    int64
	attempts  map[string]int64
	successes map[string]int64
}

// RetrievalStats summarizes GetToken outcomes.
type RetrievalStats struct {
	Total       int64   `json:"total"`
	Success     int64   `json:"success"`
	Failed      int64   `json:"failed"`
	SuccessRate float64 `json:"successRate"`
}

// ProviderStats counts chain activity for one provider.
type ProviderStats struct {
	Attempts  int64 `json:"attempts"`
	Successes int64 `json:"successes"`
}

// Stats merges cache statistics with retrieval and per-provider counters.
// It is purely observational: retrieval logic never consults it.
type Stats struct {
	Cache      cache.Stats              `json:"cache"`
	Retrievals RetrievalStats           `json:"retrievals"`
	Providers  map[string]ProviderStats `json:"providers"`
}

// New creates a Manager over the given cache policy and provider chain.
// Provider order is retrieval priority and is preserved as given.
func New(ttl, cooldown time.Duration, providers []provider.Provider) *Manager {
	return &Manager{
		cache:     cache.New(ttl, cooldown),
		providers: providers,
		attempts:  make(map[string]int64),
		successes: make(map[string]int64),
	}
}

// GetToken returns a usable token for the type and request context, with its
// retrieval metadata, or (zero, false) when neither the cache nor any
// provider can supply one. Exhaustion is a normal outcome, not an error.
func (m *Manager) GetToken(ctx context.Context, typ potoken.Type, reqCtx map[string]string) (potoken.Token, bool) {
	m.mu.Lock()
	m.total++
	m.mu.Unlock()

	key := potoken.NewKey(typ, reqCtx)

	// Concurrent callers for the same key share one cache check and, on a
	// miss, one provider walk. Followers receive the leader's result.
	value, _, _ := m.flight.Do(key.String(), func() (any, error) {
		if tok, ok := m.cache.Get(key); ok {
			log.Debug().
				Stringer("key", key).
				Str("source", tok.Source).
				Dur("age", tok.Age(time.Now())).
				Msg("broker: token served from cache")
			return tok, nil
		}

		return m.fetchFromProviders(ctx, typ, reqCtx, key), nil
	})

	result := value.(potoken.Token)
	ok := result.Value != ""

	m.mu.Lock()
	if ok {
		m.success++
	} else {
		m.failed++
	}
	m.mu.Unlock()

	return result, ok
}

// fetchFromProviders walks the chain in priority order and caches the first
// non-empty result. A zero token reports exhaustion. The cache mutex is never
// held across provider I/O.
func (m *Manager) fetchFromProviders(ctx context.Context, typ potoken.Type, reqCtx map[string]string, key potoken.Key) potoken.Token {
	m.mu.Lock()
	providers := make([]provider.Provider, len(m.providers))
	copy(providers, m.providers)
	m.mu.Unlock()

	for _, p := range providers {
		if !p.Available() {
			log.Debug().
				Str("provider", p.Name()).
				Stringer("key", key).
				Msg("broker: provider not available, skipping")
			continue
		}

		m.mu.Lock()
		m.attempts[p.Name()]++
		m.mu.Unlock()

		value := fetchOne(ctx, p, typ, reqCtx)
		if value == "" {
			continue
		}

		m.mu.Lock()
		m.successes[p.Name()]++
		m.mu.Unlock()

		token := potoken.New(value, typ, p.Name(), reqCtx)
		m.cache.Set(token)

		log.Info().
			Str("provider", p.Name()).
			Stringer("key", key).
			Msg("broker: token obtained and cached")

		return token
	}

	log.Warn().
		Stringer("key", key).
		Int("providers", len(providers)).
		Msg("broker: no provider could supply a token")

	return potoken.Token{}
}

// fetchOne calls a single provider, absorbing errors and panics. Providers
// are contracted not to raise for operational failures, but a misbehaving
// implementation must not abort the retrieval chain.
func fetchOne(ctx context.Context, p provider.Provider, typ potoken.Type, reqCtx map[string]string) (value string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("provider", p.Name()).
				Interface("recover", r).
				Msg("broker: provider panicked, treating as absence")
			value = ""
		}
	}()

	value, err := p.Fetch(ctx, typ, reqCtx)
	if err != nil {
		log.Error().
			Err(err).
			Str("provider", p.Name()).
			Msg("broker: provider returned an error, treating as absence")
		return ""
	}

	return value
}

// MarkTokenInvalid records that a previously returned token was rejected in
// actual use. The broker cannot observe rejection itself; consumers push it
// in, which starts the cache cooldown for the key.
func (m *Manager) MarkTokenInvalid(typ potoken.Type, reqCtx map[string]string, reason string) {
	key := potoken.NewKey(typ, reqCtx)

	log.Warn().
		Stringer("key", key).
		Str("reason", reason).
		Msg("broker: token reported invalid by consumer")

	m.cache.MarkFailure(key)
}

// AddProvider appends a provider to the end of the live chain.
func (m *Manager) AddProvider(p provider.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.providers = append(m.providers, p)
	log.Info().Str("provider", p.Name()).Msg("broker: provider registered")
}

// ClearCache drops all cached tokens.
func (m *Manager) ClearCache() {
	m.cache.Clear()
}

// Stats snapshots cache, retrieval and per-provider counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	rate := 0.0
	if m.total > 0 {
		rate = float64(m.success) / float64(m.total)
	}

	providers := make(map[string]ProviderStats, len(m.attempts))
	for name, attempts := range m.attempts {
		providers[name] = ProviderStats{
			Attempts:  attempts,
			Successes: m.successes[name],
		}
	}

	return Stats{
		Cache: m.cache.Stats(),
		Retrievals: RetrievalStats{
			Total:       m.total,
			Success:     m.success,
			Failed:      m.failed,
			SuccessRate: rate,
		},
		Providers: providers,
	}
}
