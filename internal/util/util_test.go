package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHumanBytes(t *testing.T) {
	tests := []struct {
		name     string
		input    int
		expected string
	}{
		{
			name:     "zero",
			input:    0,
			expected: "0 B",
		},
		{
			name:     "below one kibibyte",
			input:    1023,
			expected: "1023 B",
		},
		{
			name:     "exactly one kibibyte",
			input:    1024,
			expected: "1.0 KiB",
		},
		{
			name:     "fractional kibibytes",
			input:    1536,
			expected: "1.5 KiB",
		},
		{
			name:     "mebibytes",
			input:    5 * 1024 * 1024,
			expected: "5.0 MiB",
		},
		{
			name:     "gibibytes",
			input:    3 * 1024 * 1024 * 1024,
			expected: "3.0 GiB",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, HumanBytes(tt.input))
		})
	}
}

func TestRelPath(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		id       string
		expected string
	}{
		{
			name:     "inside base",
			base:     "/app",
			id:       "/app/src/index.js",
			expected: "src/index.js",
		},
		{
			name:     "base itself",
			base:     "/app",
			id:       "/app",
			expected: ".",
		},
		{
			name:     "outside base",
			base:     "/app",
			id:       "/lib/shared.js",
			expected: "/lib/shared.js",
		},
		{
			name:     "sibling with common prefix",
			base:     "/app",
			id:       "/application/x.js",
			expected: "/application/x.js",
		},
		{
			name:     "dot dot prefixed file name",
			base:     "/app",
			id:       "/app/..data/x.js",
			expected: "..data/x.js",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, RelPath(tt.base, tt.id))
		})
	}
}
