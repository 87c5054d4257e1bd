package utils

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashSecret hashes a secret using bcrypt. Used with a high cost for
// passwords and a low cost for short-lived one-time codes.
func HashSecret(secret string, cost int) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(bytes), nil
}

// CheckSecretHash compares a secret with a hash. The comparison is
// constant-time with respect to the secret; mismatch returns false, never
// an error.
func CheckSecretHash(secret, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	return err == nil
}
