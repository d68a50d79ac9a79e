package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenSetRatio_ExactMatch(t *testing.T) {
	assert.Equal(t, 1.0, TokenSetRatio("john doe", "john doe"))
	assert.Equal(t, 1.0, TokenSetRatio("john doe", "doe john"), "token order must not matter")
	assert.Equal(t, 1.0, TokenSetRatio("john john doe", "john doe"), "duplicate tokens must not matter")
}

func TestTokenSetRatio_Empty(t *testing.T) {
	assert.Equal(t, 0.0, TokenSetRatio("", ""))
	assert.Equal(t, 0.0, TokenSetRatio("john", ""))
	assert.Equal(t, 0.0, TokenSetRatio("", "john"))
}

func TestTokenSetRatio_PartialOverlap(t *testing.T) {
	// Shared surname, different first name: well above zero, below one.
	r := TokenSetRatio("john doe", "jane doe")
	assert.Greater(t, r, 0.5)
	assert.Less(t, r, 1.0)
}

func TestTokenSetRatio_KnownValues(t *testing.T) {
	// Single diverging tokens reduce to a sequence ratio of
	// 2*common/(lenA+lenB), giving exact expected values.
	a := strings.Repeat("a", 17)
	b := strings.Repeat("a", 17) + strings.Repeat("b", 6)
	assert.InDelta(t, 0.85, TokenSetRatio(a, b), 1e-9)

	a = strings.Repeat("a", 21)
	b = strings.Repeat("a", 21) + strings.Repeat("b", 8)
	assert.InDelta(t, 0.84, TokenSetRatio(a, b), 1e-9)
}
