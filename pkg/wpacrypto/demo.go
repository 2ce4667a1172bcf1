package wpacrypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// DemoSealed is a record sealed under a throwaway key that travels with it.
//
// INSECURE: DemoKeyHex is the symmetric key in the clear. This is a teaching
// aid for inspecting AEAD frames and has nothing to do with the session key.
type DemoSealed struct {
	Sealed
	DemoKeyHex string
	Alg        Suite
}

// EncryptWithRandomKey seals plaintext under a fresh random 32-byte key and
// returns the key alongside the record. Teaching mode only.
func (s Suite) EncryptWithRandomKey(plaintext []byte, associatedData string) (*DemoSealed, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate demo key: %w", err)
	}

	sealed, err := s.Encrypt(key, plaintext, associatedData)
	if err != nil {
		return nil, err
	}

	alg := s
	if alg == "" {
		alg = DefaultSuite
	}
	return &DemoSealed{
		Sealed:     *sealed,
		DemoKeyHex: hex.EncodeToString(key),
		Alg:        alg,
	}, nil
}

// EncryptWithRandomKey is Suite.EncryptWithRandomKey for the default suite.
func EncryptWithRandomKey(plaintext []byte, associatedData string) (*DemoSealed, error) {
	return DefaultSuite.EncryptWithRandomKey(plaintext, associatedData)
}

// ParseDemoKey decodes a demo key carried in a teaching-mode frame.
func ParseDemoKey(demoKeyHex string) ([]byte, error) {
	return decodeField("demoKey", demoKeyHex, KeySize)
}
