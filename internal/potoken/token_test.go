package potoken_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/subculture-collective/transcript-create-sub001/internal/potoken"
)

func TestParseType(t *testing.T) {
	cases := []struct {
		input    string
		expected potoken.Type
		valid    bool
	}{
		{"player", potoken.TypePlayer, true},
		{"gvs", potoken.TypeGVS, true},
		{"subs", potoken.TypeSubs, true},
		{"", "", false},
		{"PLAYER", "", false},
		{"playr", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			typ, err := potoken.ParseType(tc.input)
			if tc.valid {
				require.NoError(t, err)
				assert.Equal(t, tc.expected, typ)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestNewDefaultsSource(t *testing.T) {
	tok := potoken.New("value", potoken.TypePlayer, "", nil)
	assert.Equal(t, potoken.SourceUnknown, tok.Source)

	tok = potoken.New("value", potoken.TypePlayer, "issuer", nil)
	assert.Equal(t, "issuer", tok.Source)
}

func TestNewCopiesContext(t *testing.T) {
	ctx := map[string]string{"region": "au"}
	tok := potoken.New("value", potoken.TypeGVS, potoken.SourceManual, ctx)

	ctx["region"] = "us"

	assert.Equal(t, "au", tok.Context["region"])
}

func TestExpired(t *testing.T) {
	tok := potoken.New("value", potoken.TypePlayer, potoken.SourceManual, nil)

	now := tok.IssuedAt
	assert.False(t, tok.Expired(now, time.Hour))
	assert.False(t, tok.Expired(now.Add(time.Hour), time.Hour))
	assert.True(t, tok.Expired(now.Add(time.Hour+time.Second), time.Hour))
}

func TestAge(t *testing.T) {
	tok := potoken.New("value", potoken.TypePlayer, potoken.SourceManual, nil)

	assert.Equal(t, 90*time.Second, tok.Age(tok.IssuedAt.Add(90*time.Second)))
}

func TestKeyOrderIndependence(t *testing.T) {
	a := potoken.NewKey(potoken.TypePlayer, map[string]string{"a": "1", "b": "2"})
	b := potoken.NewKey(potoken.TypePlayer, map[string]string{"b": "2", "a": "1"})

	assert.Equal(t, a, b)
}

func TestKeyTypeOnly(t *testing.T) {
	assert.Equal(t, potoken.Key{Type: potoken.TypeSubs}, potoken.NewKey(potoken.TypeSubs, nil))
	assert.Equal(t, potoken.Key{Type: potoken.TypeSubs}, potoken.NewKey(potoken.TypeSubs, map[string]string{}))
	assert.Equal(t, "subs", potoken.NewKey(potoken.TypeSubs, nil).String())
}

func TestKeySeparatorSafety(t *testing.T) {
	// values containing the join characters must not collide with distinct
	// contexts that produce the same naive concatenation
	a := potoken.NewKey(potoken.TypePlayer, map[string]string{"a": "1&b=2"})
	b := potoken.NewKey(potoken.TypePlayer, map[string]string{"a": "1", "b": "2"})

	assert.NotEqual(t, a, b)
}

func TestKeyDistinguishesTypes(t *testing.T) {
	ctx := map[string]string{"session": "s1"}

	assert.NotEqual(t,
		potoken.NewKey(potoken.TypePlayer, ctx),
		potoken.NewKey(potoken.TypeGVS, ctx),
	)
}
