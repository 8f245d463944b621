// Package potoken defines the PO token model shared by the cache, the
// provider chain and the broker. A PO token is an opaque credential the
// upstream video platform requires; the broker stores and coordinates
// retrieval of tokens but never computes their content.
package potoken

import (
	"fmt"
	"maps"
	"time"
)

// Type identifies the authorization surface a token is valid for.
type Type string

const (
	TypePlayer Type = "player"
	TypeGVS    Type = "gvs"
	TypeSubs   Type = "subs"
)

// SourceManual marks tokens supplied by operator configuration rather than a
// provider.
const SourceManual = "manual"

// SourceUnknown marks tokens whose origin was not recorded.
const SourceUnknown = "unknown"

// ParseType validates a wire-format token type. The set is closed: anything
// outside player/gvs/subs is a caller error.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypePlayer, TypeGVS, TypeSubs:
		return Type(s), nil
	}
	return "", fmt.Errorf("unknown token type: %q", s)
}

func (t Type) String() string {
	return string(t)
}

// Token is an immutable token value with its retrieval metadata. A fresh
// token for the same key is always a new Token, never a mutation.
type Token struct {
	Value    string
	Type     Type
	IssuedAt time.Time
	Source   string
	Context  map[string]string
}

// New constructs a token issued now. The context map is copied so later
// mutation by the caller cannot leak into the stored token.
func New(value string, typ Type, source string, context map[string]string) Token {
	if source == "" {
		source = SourceUnknown
	}
	return Token{
		Value:    value,
		Type:     typ,
		IssuedAt: time.Now(),
		Source:   source,
		Context:  maps.Clone(context),
	}
}

// Age reports how long ago the token was issued.
func (t Token) Age(now time.Time) time.Duration {
	return now.Sub(t.IssuedAt)
}

// Expired reports whether the token has outlived the given TTL.
func (t Token) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(t.IssuedAt) > ttl
}
