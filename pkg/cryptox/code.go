package cryptox

import (
	"crypto/rand"
	"fmt"
)

// GenerateNumericCode returns a string of n decimal digits drawn from
// crypto/rand, one byte reduced mod 10 per digit. Two-factor codes must not
// come from a guessable PRNG.
func GenerateNumericCode(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("code length must be positive, got %d", n)
	}

	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}

	digits := make([]byte, n)
	for i, b := range buf {
		digits[i] = '0' + b%10
	}
	return string(digits), nil
}
