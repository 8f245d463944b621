package potoken

import (
	"net/url"
	"sort"
	"strings"
)

// Key is the composite cache key for a token: the token type plus the
// canonical encoding of the request context. Key is comparable, so equality
// and map hashing come from the struct itself rather than from formatted
// strings.
type Key struct {
	Type    Type
	Context string
}

// NewKey derives the key for a type and context. Context pairs are sorted by
// key and percent-encoded before joining, so two maps with the same pairs
// produce the same Key regardless of insertion order, and separator
// characters inside values cannot collide with the pair delimiters. A nil or
// empty context yields a type-only key.
func NewKey(typ Type, context map[string]string) Key {
	if len(context) == 0 {
		return Key{Type: typ}
	}

	names := make([]string, 0, len(context))
	for name := range context {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, url.QueryEscape(name)+"="+url.QueryEscape(context[name]))
	}

	return Key{Type: typ, Context: strings.Join(pairs, "&")}
}

// String renders the key for logging.
func (k Key) String() string {
	if k.Context == "" {
		return k.Type.String()
	}
	return k.Type.String() + "?" + k.Context
}
