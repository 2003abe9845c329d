// Package pkce implements the Proof Key for Code Exchange pieces of the
// authorization code flow (RFC 7636, S256 method).
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	// StateLength is the length of the anti-CSRF state parameter.
	StateLength = 32
	// VerifierLength is the length of the code verifier (RFC 7636 maximum).
	VerifierLength = 128
)

// Pair holds the per-login-attempt PKCE values. State and Verifier are
// persisted across the authorization redirect; Challenge goes into the
// authorization URL.
type Pair struct {
	State     string
	Verifier  string
	Challenge string
}

// NewPair generates a fresh state/verifier/challenge triple.
func NewPair() (*Pair, error) {
	state, err := GenerateRandomString(StateLength)
	if err != nil {
		return nil, err
	}
	verifier, err := GenerateRandomString(VerifierLength)
	if err != nil {
		return nil, err
	}
	return &Pair{
		State:     state,
		Verifier:  verifier,
		Challenge: Challenge(verifier),
	}, nil
}

// GenerateRandomString returns n cryptographically random lowercase letters.
// 256 is not a multiple of 26, so 'a' through 'd' are marginally favored;
// the bias is negligible for the entropy needed here and the mapping is
// kept as-is.
func GenerateRandomString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = 'a' + b%26
	}
	return string(out), nil
}

// Challenge derives the S256 code challenge for a verifier:
// base64url(SHA-256(verifier)) without padding.
func Challenge(verifier string) string {
	h := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(h[:])
}
