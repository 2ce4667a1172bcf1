package wpacrypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NonceSize is the length of SNonce and ANonce in bytes.
const NonceSize = 16

// Nonce is a single-use random value drawn per handshake attempt.
type Nonce [NonceSize]byte

// NewNonce draws a fresh random nonce.
func NewNonce() (Nonce, error) {
	var n Nonce
	if _, err := rand.Read(n[:]); err != nil {
		return Nonce{}, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return n, nil
}

// ParseNonce decodes a hex-encoded nonce.
func ParseNonce(s string) (Nonce, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Nonce{}, fmt.Errorf("%w: nonce: %v", ErrFormat, err)
	}
	if len(b) != NonceSize {
		return Nonce{}, fmt.Errorf("%w: nonce must be %d bytes, got %d", ErrFormat, NonceSize, len(b))
	}
	var n Nonce
	copy(n[:], b)
	return n, nil
}

// String returns the lowercase hex encoding.
func (n Nonce) String() string {
	return hex.EncodeToString(n[:])
}

// IsZero reports whether the nonce was never set.
func (n Nonce) IsZero() bool {
	return n == Nonce{}
}
