package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardize_CommonFormats(t *testing.T) {
	s := NewDateStandardizer()

	testCases := []struct {
		input    string
		expected string
	}{
		{"2024-01-17", "2024-01-17"},
		{"2024/01/17", "2024-01-17"},
		{"20240117", "2024-01-17"},
		{"01/17/2024", "2024-01-17"},
		{"01-17-2024", "2024-01-17"},
		{"01/17/24", "2024-01-17"},
		{"01.17.2024", "2024-01-17"},
		{"17/01/2024", "2024-01-17"},
		{"January 17, 2024", "2024-01-17"},
		{"Jan 17, 2024", "2024-01-17"},
		{"17 January 2024", "2024-01-17"},
		{"01 17 2024", "2024-01-17"},
		{"MX01/17/2024", "2024-01-17"},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.expected, s.Standardize(tc.input))
		})
	}
}

func TestStandardize_RangeTakesFirstDate(t *testing.T) {
	s := NewDateStandardizer()

	assert.Equal(t, "2024-12-26", s.Standardize("12/26/24 - 12/27/24"))
	assert.Equal(t, "2024-12-26", s.Standardize("12/26/2024 to 12/27/2024"))
	assert.Equal(t, "2024-12-26", s.Standardize("12/26/24-12/27/24"))
	assert.Equal(t, "2024-12-26", s.Standardize("12/26/24 – 12/27/24"))
}

func TestStandardize_TwoDigitYearPivot(t *testing.T) {
	s := NewDateStandardizer()

	// 00-30 resolve to the 2000s, 31-99 to the 1900s.
	assert.Equal(t, "2029-01-17", s.Standardize("01/17/29"))
	assert.Equal(t, "2030-01-17", s.Standardize("01/17/30"))
	assert.Equal(t, "1931-01-17", s.Standardize("01/17/31"))
	assert.Equal(t, "1999-01-17", s.Standardize("01/17/99"))
}

func TestStandardize_RejectsOutOfRangeAndInvalid(t *testing.T) {
	s := NewDateStandardizer()

	testCases := []string{
		"",
		"not a date",
		"01/17/1895",
		"2031-05-01",
		"02/30/2024",
		"13/45/2024",
	}

	for _, input := range testCases {
		assert.Empty(t, s.Standardize(input), "input %q should not standardize", input)
	}
}

func TestParseDateOfService(t *testing.T) {
	d, ok := ParseDateOfService("01/17/2024")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, time.January, 17, 0, 0, 0, 0, time.UTC), d)

	_, ok = ParseDateOfService("garbage")
	assert.False(t, ok)
}
