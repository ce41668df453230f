package utils

import (
	"crypto/rand"
	"encoding/base64"
)

const apiKeyPrefix = "ap_"

// GenerateAPIKey returns a prefixed URL-safe key built from length random bytes.
func GenerateAPIKey(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return apiKeyPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}
