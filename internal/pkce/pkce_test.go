package pkce

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChallenge(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
		assert.Equal(t, Challenge(verifier), Challenge(verifier))
	})

	t.Run("RFC 7636 Appendix B test vector", func(t *testing.T) {
		verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
		assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", Challenge(verifier))
	})

	t.Run("URL safe without padding", func(t *testing.T) {
		for _, verifier := range []string{"a", "short", strings.Repeat("z", 128)} {
			challenge := Challenge(verifier)
			assert.NotContains(t, challenge, "+")
			assert.NotContains(t, challenge, "/")
			assert.NotContains(t, challenge, "=")
		}
	})

	t.Run("matches base64url of SHA-256", func(t *testing.T) {
		verifier := strings.Repeat("q", 128)
		h := sha256.Sum256([]byte(verifier))
		assert.Equal(t, base64.RawURLEncoding.EncodeToString(h[:]), Challenge(verifier))
	})
}

func TestGenerateRandomString(t *testing.T) {
	t.Run("length and charset", func(t *testing.T) {
		s, err := GenerateRandomString(128)
		require.NoError(t, err)
		require.Len(t, s, 128)
		for _, r := range s {
			assert.True(t, r >= 'a' && r <= 'z', "unexpected character %q", r)
		}
	})

	t.Run("successive values differ", func(t *testing.T) {
		a, err := GenerateRandomString(32)
		require.NoError(t, err)
		b, err := GenerateRandomString(32)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})
}

func TestNewPair(t *testing.T) {
	pair, err := NewPair()
	require.NoError(t, err)
	assert.Len(t, pair.State, StateLength)
	assert.Len(t, pair.Verifier, VerifierLength)
	assert.Equal(t, Challenge(pair.Verifier), pair.Challenge)
}
