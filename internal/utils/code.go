package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// GenerateNumericCode generates a random numeric one-time code of the given
// length, zero-padded. Codes are low-entropy by design: they are single-use
// and expire within minutes.
func GenerateNumericCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid code length %d", length)
	}

	max := big.NewInt(1)
	for i := 0; i < length; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}

	return fmt.Sprintf("%0*d", length, n), nil
}
