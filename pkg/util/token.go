package util

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const apiKeyBytes = 16

// GenerateAPIKey returns a URL-safe random bearer token. 128 bits from the
// system CSPRNG, so keys are unguessable and collisions are not a practical
// concern.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, apiKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
