package observe_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/subculture-collective/transcript-create-sub001/internal/observe"
)

func TestTrimMethod(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		expected string
	}{
		{
			name:     "GET with path",
			pattern:  "GET /token/{type}",
			expected: "/token/{type}",
		},
		{
			name:     "POST with path",
			pattern:  "POST /cache/clear",
			expected: "/cache/clear",
		},
		{
			name:     "path only",
			pattern:  "/healthcheck",
			expected: "/healthcheck",
		},
		{
			name:     "unknown method left intact",
			pattern:  "FETCH /token",
			expected: "FETCH /token",
		},
		{
			name:     "empty pattern",
			pattern:  "",
			expected: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, observe.TrimMethod(tc.pattern))
		})
	}
}
