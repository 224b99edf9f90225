package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const temporaryTokenBytes = 32

// GenerateTemporaryToken produces a single-use token for email verification
// and password reset links. The raw value goes out in the mail; only the
// digest is persisted, so a leaked database record cannot be replayed.
func GenerateTemporaryToken() (raw string, digest string, err error) {
	buf := make([]byte, temporaryTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate temporary token: %w", err)
	}
	raw = hex.EncodeToString(buf)
	return raw, HashToken(raw), nil
}

// HashToken returns the sha256 hex digest of a raw single-use token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
