package wpacrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// AEAD framing constants.
const (
	// IVSize is the random initialization vector length (96 bits).
	IVSize = 12

	// TagSize is the authentication tag length.
	TagSize = 16
)

// Suite names an AEAD cipher suite.
type Suite string

const (
	// SuiteAES256GCM is AES-256 in Galois/Counter Mode.
	SuiteAES256GCM Suite = "AES-256-GCM"

	// SuiteChaCha20Poly1305 is ChaCha20-Poly1305 (RFC 8439).
	SuiteChaCha20Poly1305 Suite = "CHACHA20-POLY1305"
)

// DefaultSuite is used by the package-level Encrypt and Decrypt.
const DefaultSuite = SuiteAES256GCM

// ParseSuite validates a suite name, ignoring case, and returns its
// canonical form. An empty name selects DefaultSuite.
func ParseSuite(name string) (Suite, error) {
	switch s := Suite(strings.ToUpper(name)); s {
	case "":
		return DefaultSuite, nil
	case SuiteAES256GCM, SuiteChaCha20Poly1305:
		return s, nil
	default:
		return "", fmt.Errorf("%w: unknown cipher suite %q", ErrFormat, name)
	}
}

func (s Suite) newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrFormat, KeySize, len(key))
	}
	switch s {
	case SuiteAES256GCM, "":
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		return cipher.NewGCM(block)
	case SuiteChaCha20Poly1305:
		return chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("%w: unknown cipher suite %q", ErrFormat, string(s))
	}
}

// Sealed is an AEAD record with hex-encoded binary fields.
// AAD is carried as plain text since it is the sender identity.
type Sealed struct {
	IV         string
	Ciphertext string
	AuthTag    string
	AAD        string
}

// Encrypt seals plaintext with the default suite.
func Encrypt(key, plaintext []byte, associatedData string) (*Sealed, error) {
	return DefaultSuite.Encrypt(key, plaintext, associatedData)
}

// Decrypt opens a record sealed with the default suite.
func Decrypt(key []byte, iv, ciphertext, authTag, associatedData string) ([]byte, error) {
	return DefaultSuite.Decrypt(key, iv, ciphertext, authTag, associatedData)
}

// Encrypt seals plaintext under key with a fresh random IV, binding
// associatedData. An empty associatedData binds nothing.
func (s Suite) Encrypt(key, plaintext []byte, associatedData string) (*Sealed, error) {
	aead, err := s.newAEAD(key)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	out := aead.Seal(nil, iv, plaintext, aadBytes(associatedData))
	ct, tag := out[:len(out)-TagSize], out[len(out)-TagSize:]

	return &Sealed{
		IV:         hex.EncodeToString(iv),
		Ciphertext: hex.EncodeToString(ct),
		AuthTag:    hex.EncodeToString(tag),
		AAD:        associatedData,
	}, nil
}

// Decrypt verifies and opens a sealed record. It returns ErrFormat for
// malformed fields and ErrAuthentication for any verification failure,
// never partial plaintext.
func (s Suite) Decrypt(key []byte, iv, ciphertext, authTag, associatedData string) ([]byte, error) {
	aead, err := s.newAEAD(key)
	if err != nil {
		return nil, err
	}

	ivBytes, err := decodeField("iv", iv, IVSize)
	if err != nil {
		return nil, err
	}
	tag, err := decodeField("authTag", authTag, TagSize)
	if err != nil {
		return nil, err
	}
	ct, err := decodeField("ciphertext", ciphertext, -1)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, ivBytes, sealed, aadBytes(associatedData))
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

// decodeField decodes a hex field; size < 0 accepts any length.
func decodeField(name, value string, size int) ([]byte, error) {
	b, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFormat, name, err)
	}
	if size >= 0 && len(b) != size {
		return nil, fmt.Errorf("%w: %s must be %d bytes, got %d", ErrFormat, name, size, len(b))
	}
	return b, nil
}

func aadBytes(associatedData string) []byte {
	if associatedData == "" {
		return nil
	}
	return []byte(associatedData)
}
