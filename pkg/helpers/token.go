package helpers

import (
	"crypto/rand"
	"encoding/base64"
)

// KeyEmailVerifyToken is the Redis key holding the user id a verification token was issued for.
func KeyEmailVerifyToken(token string) string {
	return "email:verify:token:" + token
}

// GenURLToken returns a random URL-safe token carrying n bytes of entropy.
func GenURLToken(n int) (string, error) {
	if n <= 0 {
		n = 32
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
