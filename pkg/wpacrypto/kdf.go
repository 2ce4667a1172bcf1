package wpacrypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// KeySize is the session key length in bytes.
const KeySize = 32

// SessionKeyLabel is mixed into every session key derivation.
const SessionKeyLabel = "demo-ptk"

// SessionKey is the symmetric key both peers derive after a successful handshake.
type SessionKey [KeySize]byte

// Fingerprint returns the first 8 bytes of the key in hex, for logs.
func (k SessionKey) Fingerprint() string {
	return hex.EncodeToString(k[:8])
}

// DeriveSessionKey derives the 32-byte session key from the PSK, both nonces
// and both identities. It is deterministic so that device and access point
// agree on the key without transmitting it.
func DeriveSessionKey(psk string, anonce, snonce Nonce, deviceID, apBSSID string) SessionKey {
	h := hmac.New(sha256.New, []byte(psk))
	h.Write([]byte(SessionKeyLabel))
	h.Write(anonce[:])
	h.Write(snonce[:])
	h.Write([]byte(deviceID))
	h.Write([]byte(apBSSID))

	var key SessionKey
	copy(key[:], h.Sum(nil))
	return key
}

// ComputeMIC returns hex(HMAC-SHA256(PSK, ANonce || SNonce)).
func ComputeMIC(psk string, anonce, snonce Nonce) string {
	return hex.EncodeToString(computeMIC(psk, anonce, snonce))
}

func computeMIC(psk string, anonce, snonce Nonce) []byte {
	h := hmac.New(sha256.New, []byte(psk))
	h.Write(anonce[:])
	h.Write(snonce[:])
	return h.Sum(nil)
}

// VerifyMIC recomputes the MIC and compares it with micHex in constant time.
// A MIC that is not valid hex fails the same way as a mismatching one.
func VerifyMIC(psk string, anonce, snonce Nonce, micHex string) error {
	got, err := hex.DecodeString(micHex)
	if err != nil {
		return ErrAuthentication
	}
	if !hmac.Equal(got, computeMIC(psk, anonce, snonce)) {
		return ErrAuthentication
	}
	return nil
}
