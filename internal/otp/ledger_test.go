package otp

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

var sixDigits = regexp.MustCompile(`^[0-9]{6}$`)

func TestGenerateCode_SixDigits(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		require.Regexp(t, sixDigits, code)
		seen[code] = struct{}{}
	}
	// 200 draws from a million values; a handful of collisions at most.
	require.Greater(t, len(seen), 190)
}

func TestWellFormed(t *testing.T) {
	t.Parallel()

	require.True(t, wellFormed("000123"))
	require.False(t, wellFormed("12345"))
	require.False(t, wellFormed("1234567"))
	require.False(t, wellFormed("12a456"))
	require.False(t, wellFormed(""))
}

func TestDigest_StableAndDistinct(t *testing.T) {
	t.Parallel()

	require.Equal(t, digest("123456"), digest("123456"))
	require.NotEqual(t, digest("123456"), digest("654321"))
	require.Len(t, digest("123456"), 64)
}
