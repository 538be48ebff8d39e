// Package tokens generates opaque, unguessable URL tokens.
package tokens

import (
	"crypto/rand"
	"fmt"

	"github.com/mr-tron/base58"
)

// Size is the number of random bytes behind each token (256 bits).
const Size = 32

// New returns a base58-encoded token built from Size random bytes.
func New() (string, error) {
	buf := make([]byte, Size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random token: %w", err)
	}
	return base58.Encode(buf), nil
}
