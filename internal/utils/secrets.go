package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateSecret generates a hex-encoded random secret of the given byte length
func GenerateSecret(bytes int) (string, error) {
	if bytes < 16 {
		return "", fmt.Errorf("secret must be at least 16 bytes, got %d", bytes)
	}
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
