// Package misc holds small helpers shared across the auth flow.
package misc

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateRandomState generates a cryptographically secure random state
// parameter for the authorize leg of the token exchange.
func GenerateRandomState() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
