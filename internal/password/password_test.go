package password_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/litshare/internal/password"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := password.Hash("password123")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))

	ok, err := password.Verify("password123", hash)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = password.Verify("password124", hash)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHashIsSalted(t *testing.T) {
	a, err := password.Hash("same")
	require.NoError(t, err)
	b, err := password.Hash("same")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	for _, hash := range []string{
		"",
		"plain",
		"$argon2i$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA",
		"$argon2id$v=1$m=65536,t=3,p=2$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=3$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=3,p=0$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=3,p=2$!!!$aGFzaA",
	} {
		ok, err := password.Verify("x", hash)
		require.Error(t, err, hash)
		require.False(t, ok)
	}
}

func TestVerifyDummyNeverMatches(t *testing.T) {
	require.False(t, password.VerifyDummy("dummy-password-never-matches"))
	require.False(t, password.VerifyDummy(""))
}

func TestCheckPolicy(t *testing.T) {
	require.ErrorIs(t, password.CheckPolicy("short", 8), password.ErrTooShort)
	require.NoError(t, password.CheckPolicy("password123", 8))
	require.ErrorIs(t, password.CheckPolicy(strings.Repeat("a", 2000), 8), password.ErrTooLong)
}
