package app

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// GenerateSecret returns a 32-byte, URL-safe base64 string suitable for
// HMAC-signing outbound deliveries. Generated once on subscription create
// and again on regenerate_secret.
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// HashAdminSecret returns a bcrypt hash of the operator's pre-shared
// management-API secret, suitable for storing in AppConfig.AdminSecretHash.
func HashAdminSecret(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), 10)
	if err != nil {
		return "", fmt.Errorf("hashing admin secret: %w", err)
	}
	return string(hash), nil
}

// ValidateAdminSecret compares a plaintext candidate against the configured
// bcrypt hash. A blank configured hash disables the check entirely (used in
// local/dev configurations with no management-API auth).
func ValidateAdminSecret(configuredHash, candidate string) bool {
	if configuredHash == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(configuredHash), []byte(candidate)) == nil
}
