package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUserToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		token := NewUserToken()

		require.True(t, strings.HasPrefix(token, "tokusr_"), token)
		suffix := strings.TrimPrefix(token, "tokusr_")
		require.Len(t, suffix, 8)
		for _, r := range suffix {
			assert.Contains(t, userTokenAlphabet, string(r))
		}

		// No ambiguous glyphs: these are read aloud over the counter.
		assert.NotContains(t, suffix, "0")
		assert.NotContains(t, suffix, "1")
		assert.NotContains(t, suffix, "l")

		assert.False(t, seen[token], "duplicate token %s", token)
		seen[token] = true
	}
}

func TestNewVoucherToken(t *testing.T) {
	token := NewVoucherToken(7)

	parts := strings.SplitN(token, "-", 2)
	require.Len(t, parts, 2)
	assert.Equal(t, "0007", parts[0])
	require.Len(t, parts[1], 5)
	for _, r := range parts[1] {
		assert.True(t, r >= 'A' && r <= 'Z', "unexpected rune %q in %s", r, token)
	}
}

func TestNewVoucherToken_WideSortnumber(t *testing.T) {
	token := NewVoucherToken(12345)
	assert.True(t, strings.HasPrefix(token, "12345-"), token)
}
