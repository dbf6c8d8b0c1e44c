package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	require.NotEqual(t, "s3cret", hash)

	require.True(t, VerifyPassword(hash, "s3cret"))
	require.False(t, VerifyPassword(hash, "wrong"))
	require.False(t, VerifyPassword("", "s3cret"))
}

func TestGenerateToken(t *testing.T) {
	first, err := GenerateToken(48)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := GenerateToken(48)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}
