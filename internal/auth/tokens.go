package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
)

func randomURLSafe(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateAPIKey returns 32 random bytes, URL-safe encoded.
func GenerateAPIKey() (string, error) {
	return randomURLSafe(32)
}

// GenerateSessionToken returns 64 random bytes, URL-safe encoded. Also used
// for password reset links.
func GenerateSessionToken() (string, error) {
	return randomURLSafe(64)
}

// HashToken is the digest stored in place of a bearer secret such as a reset token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// GenerateNumericCode returns a zero-padded random code with the given number of digits.
func GenerateNumericCode(digits int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n.Int64()), nil
}
