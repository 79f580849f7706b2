package crypto

import (
	"crypto/rand"
	"fmt"
)

// GenerateSecureRandom returns n bytes from a cryptographically secure
// RNG. Non-positive lengths are rejected.
func GenerateSecureRandom(n int) ([]byte, error) {
	if n <= 0 {
		return nil, &ValidationError{Field: "length", Reason: fmt.Sprintf("must be a positive integer, got %d", n)}
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, cryptoErrf("generate secure random", "failed to read random bytes: %w", err)
	}
	return buf, nil
}
