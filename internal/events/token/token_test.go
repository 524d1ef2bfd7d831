package token_test

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/events/token"
)

func TestGenerateToken_PlaintextCarriesEnoughRandomness(t *testing.T) {
	plain, _, err := token.GenerateToken()
	require.NoError(t, err)
	// 64 hex chars = 256 random bits, comfortably past the 128-bit floor.
	require.Len(t, plain, 64)
	_, err = hex.DecodeString(plain)
	require.NoError(t, err)
}

func TestGenerateToken_HashIsSHA256OfPlaintext(t *testing.T) {
	plain, hash, err := token.GenerateToken()
	require.NoError(t, err)

	sum := sha256.Sum256([]byte(plain))
	require.Equal(t, hex.EncodeToString(sum[:]), hash)
	require.Len(t, hash, 64)
}

func TestGenerateToken_NeverRepeats(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		plain, _, err := token.GenerateToken()
		require.NoError(t, err)
		require.False(t, seen[plain])
		seen[plain] = true
	}
}
