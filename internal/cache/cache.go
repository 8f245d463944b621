// Package cache holds PO tokens keyed by (type, context) with TTL expiry and
// a post-failure cooldown. Expiry and cooldown are computed from timestamps
// at read time; there is no background sweeper, and no entry carries a stored
// "expired" flag.
package cache

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/subculture-collective/transcript-create-sub001/internal/potoken"
)

// entry pairs a token with its failure state. At most one entry exists per
// key; Set replaces the whole entry, discarding any failure state.
type entry struct {
	token        potoken.Token
	failedAt     time.Time
	failureCount int
}

func (e *entry) inCooldown(now time.Time, cooldown time.Duration) bool {
	return !e.failedAt.IsZero() && now.Sub(e.failedAt) < cooldown
}

// Cache is a mutex-guarded in-memory token store. It is safe for concurrent
// use; no method blocks on anything but the mutex.
type Cache struct {
	mu      sync.Mutex
	entries map[potoken.Key]*entry

	ttl      time.Duration
	cooldown time.Duration

	hits   int64
	misses int64
}

// Stats is a point-in-time snapshot of cache effectiveness counters and
// configuration. Counters survive Clear.
type Stats struct {
	Hits            int64   `json:"hits"`
	Misses          int64   `json:"misses"`
	TotalRequests   int64   `json:"totalRequests"`
	HitRate         float64 `json:"hitRate"`
	CachedTokens    int     `json:"cachedTokens"`
	TTLSeconds      float64 `json:"ttlSeconds"`
	CooldownSeconds float64 `json:"cooldownSeconds"`
}

// New creates a cache with the given token TTL and failure cooldown.
func New(ttl, cooldown time.Duration) *Cache {
	return &Cache{
		entries:  make(map[potoken.Key]*entry),
		ttl:      ttl,
		cooldown: cooldown,
	}
}

// Get returns the cached token for the key, if one is present, not in
// cooldown and not expired. An expired entry is removed on observation; an
// entry in cooldown is left in place but not returned. Every call counts as
// a hit or a miss, whatever the reason for the miss.
func (c *Cache) Get(key potoken.Key) (potoken.Token, bool) {
	token, status := c.lookup(key)

	// Metrics are recorded outside the critical section: the exporter must
	// never extend mutex hold time.
	recordOperation("get", status)

	return token, status == "hit"
}

func (c *Cache) lookup(key potoken.Key) (potoken.Token, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return potoken.Token{}, "miss"
	}

	if e.inCooldown(now, c.cooldown) {
		c.misses++
		log.Debug().
			Stringer("key", key).
			Time("failedAt", e.failedAt).
			Int("failureCount", e.failureCount).
			Msg("cache: token withheld during cooldown")
		return potoken.Token{}, "cooldown"
	}

	if e.token.Expired(now, c.ttl) {
		delete(c.entries, key)
		c.misses++
		log.Debug().
			Stringer("key", key).
			Dur("age", e.token.Age(now)).
			Msg("cache: expired token evicted")
		return potoken.Token{}, "expired"
	}

	c.hits++
	return e.token, "hit"
}

// Set installs a fresh entry for the token's key, replacing any previous
// entry and its failure state. Last write wins.
func (c *Cache) Set(token potoken.Token) {
	key := potoken.NewKey(token.Type, token.Context)

	c.mu.Lock()
	c.entries[key] = &entry{token: token}
	c.mu.Unlock()

	recordOperation("set", "success")

	log.Debug().
		Stringer("key", key).
		Str("source", token.Source).
		Msg("cache: token stored")
}

// MarkFailure records that the cached token for the key was rejected in use,
// starting its cooldown window. Marking a key with no entry is a no-op: there
// is nothing to suppress.
func (c *Cache) MarkFailure(key potoken.Key) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()

		recordOperation("markFailure", "absent")
		log.Debug().
			Stringer("key", key).
			Msg("cache: failure reported for token that is not cached")
		return
	}

	e.failedAt = time.Now()
	e.failureCount++
	source, count := e.token.Source, e.failureCount
	c.mu.Unlock()

	recordOperation("markFailure", "recorded")

	log.Warn().
		Stringer("key", key).
		Str("source", source).
		Int("failureCount", count).
		Msg("cache: token marked failed, cooldown started")
}

// Clear drops all entries. Hit/miss counters are retained.
func (c *Cache) Clear() {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[potoken.Key]*entry)
	c.mu.Unlock()

	recordOperation("clear", "success")

	log.Info().Int("dropped", n).Msg("cache: cleared")
}

// Stats snapshots the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}

	return Stats{
		Hits:            c.hits,
		Misses:          c.misses,
		TotalRequests:   total,
		HitRate:         rate,
		CachedTokens:    len(c.entries),
		TTLSeconds:      c.ttl.Seconds(),
		CooldownSeconds: c.cooldown.Seconds(),
	}
}
