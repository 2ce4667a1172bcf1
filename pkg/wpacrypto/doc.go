// Package wpacrypto implements the cryptographic primitives of the simulated
// WPA-style handshake and the secure uplink.
//
// # Key Agreement
//
// Both peers hold the same pre-shared key (PSK). After exchanging a device
// nonce (SNonce) and an access point nonce (ANonce), each side derives the
// session key independently:
//
//	key = HMAC-SHA256(PSK, "demo-ptk" || ANonce || SNonce || deviceID || apBSSID)
//
// The key itself never crosses the wire.
//
// # Message Integrity Code
//
// The device proves possession of the PSK with a MIC over both nonces:
//
//	mic = hex(HMAC-SHA256(PSK, ANonce || SNonce))
//
// The access point recomputes the MIC locally and compares in constant time.
//
// # Authenticated Encryption
//
// Application messages are sealed with an AEAD cipher using a random 96-bit
// IV. The sender identity is bound as associated data so a frame cannot be
// re-attributed to another sender. Supported suites:
//   - AES-256-GCM (default)
//   - ChaCha20-Poly1305
//
// # Errors
//
// Malformed inputs fail with ErrFormat. Any tag failure fails with
// ErrAuthentication; a wrong key and tampered ciphertext are reported the
// same way.
//
// # Teaching Mode
//
// EncryptWithRandomKey seals a message with a fresh random key and returns
// that key in the clear. It exists only to show what an AEAD frame looks like
// and is not part of the handshake key agreement. It is insecure by construction.
package wpacrypto
