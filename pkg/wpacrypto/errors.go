package wpacrypto

import "errors"

// Crypto errors.
var (
	// ErrFormat indicates malformed hex or a wrong byte length.
	ErrFormat = errors.New("malformed crypto input")

	// ErrAuthentication indicates a failed tag or MIC verification.
	ErrAuthentication = errors.New("authentication failed")
)
