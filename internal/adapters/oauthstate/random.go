// Package oauthstate generates the opaque state and nonce values used in OAuth redirects.
package oauthstate

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// DefaultLength is the length of generated state and nonce values.
const DefaultLength = 32

// Generate returns a cryptographically secure URL-safe random string of exactly n characters.
func Generate(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	// 3 bytes encode to 4 chars; round up so the encoding is never short.
	b := make([]byte, (n*3+3)/4+1)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:n], nil
}

// Pair returns a fresh state and nonce.
func Pair() (state, nonce string, err error) {
	state, err = Generate(DefaultLength)
	if err != nil {
		return "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err = Generate(DefaultLength)
	if err != nil {
		return "", "", fmt.Errorf("generate nonce: %w", err)
	}
	return state, nonce, nil
}
