package approval

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
)

// nonceBytes is 80 bits of entropy, 16 base32 characters.
const nonceBytes = 10

var nonceEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// newNonce returns a lowercase base32 token from crypto/rand.
func newNonce() (string, error) {
	b := make([]byte, nonceBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return strings.ToLower(nonceEncoding.EncodeToString(b)), nil
}

// NormalizeNonce canonicalizes a nonce typed or pasted by a human.
func NormalizeNonce(nonce string) string {
	return strings.ToLower(strings.TrimSpace(nonce))
}
