package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// GenerateCSRFToken returns a fresh random CSRF token (32 bytes, hex).
// The token lives only in the client's cookie; the cookie is the source of
// truth for the double-submit check, nothing is stored server-side.
func GenerateCSRFToken() (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate csrf token: %w", err)
	}
	return hex.EncodeToString(tokenBytes), nil
}

// CSRFTokensEqual compares a header token against the cookie token in
// constant time.
func CSRFTokensEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
