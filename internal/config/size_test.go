package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBandwidth(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"", 0},
		{"0", 0},
		{"  0 ", 0},
		{"5MB/s", 5_000_000},
		{"5 MB/s", 5_000_000},
		{"1.5MB/s", 1_500_000},
		{"512KiB/s", 524_288},
		{"10MiB/s", 10_485_760},
		{"1GB/s", 1_000_000_000},
		{"100B/s", 100},
		{"2048/s", 2048},
		{"1mb/S", 1_000_000},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseBandwidth(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestParseBandwidth_Invalid(t *testing.T) {
	tests := map[string]string{
		"5MB":    "must end in /s",
		"fast/s": "invalid bandwidth",
		"MB/s":   "invalid bandwidth",
		"-1MB/s": "must be non-negative",
		"5XB/s":  "invalid bandwidth",
	}

	for input, want := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := ParseBandwidth(input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), want)
		})
	}
}
