// Package keystore writes per-node asymmetric key pairs to text files.
//
// Each node gets <dir>/<id>.keys.txt holding its RSA-OAEP-256 public and
// private keys as hex, wrapped at 64 characters:
//
//	# RSA-OAEP-256 keys (HEX) for Device1
//	# Saved: 2025-01-01T00:00:00Z
//
//	-----BEGIN PUBLIC KEY HEX-----
//	3082010a...
//	-----END PUBLIC KEY HEX-----
//
// The files are a sink for display; nothing in the handshake reads them.
package keystore
