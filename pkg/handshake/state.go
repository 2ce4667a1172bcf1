package handshake

import (
	"errors"

	"github.com/wifisim/wifisim-go/pkg/wpacrypto"
)

// Handshake errors.
var (
	// ErrProtocolSequence indicates a message that is not valid in the current state.
	ErrProtocolSequence = errors.New("unexpected handshake message")

	// ErrHandshakeFailed indicates the instance moved to FAILED.
	ErrHandshakeFailed = errors.New("handshake failed")
)

// State is the state of one handshake instance.
type State uint8

const (
	// StateIdle - no handshake in progress.
	StateIdle State = iota

	// StateNonceSent - device has announced its SNonce.
	StateNonceSent

	// StateAwaitingANonce - device has sent its MIC and waits for the result.
	StateAwaitingANonce

	// StateAwaitingMIC - AP has sent its ANonce and waits for the MIC.
	StateAwaitingMIC

	// StateKeyDerived - session key computed, not yet in use.
	StateKeyDerived

	// StateActive - session key installed.
	StateActive

	// StateFailed - terminal failure; restart required.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateNonceSent:
		return "NONCE_SENT"
	case StateAwaitingANonce:
		return "AWAITING_ANONCE"
	case StateAwaitingMIC:
		return "AWAITING_MIC"
	case StateKeyDerived:
		return "KEY_DERIVED"
	case StateActive:
		return "ACTIVE"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Role identifies which side of the handshake an instance plays.
type Role uint8

const (
	RoleDevice Role = iota
	RoleAP
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleDevice:
		return "DEVICE"
	case RoleAP:
		return "AP"
	default:
		return "UNKNOWN"
	}
}

// Transition describes one state change.
type Transition struct {
	Identity string
	Role     Role
	From     State
	To       State
	Reason   string
}

// TransitionFunc receives state changes. It is called with the instance
// lock held and must not call back into the instance.
type TransitionFunc func(Transition)

// Config is shared, read-only handshake configuration.
type Config struct {
	// PSK is the pre-shared key known to both peers.
	PSK string

	// APBSSID identifies the access point in key derivation.
	APBSSID string

	// NonceSource draws nonces. Nil uses wpacrypto.NewNonce.
	NonceSource func() (wpacrypto.Nonce, error)
}

func (c Config) newNonce() (wpacrypto.Nonce, error) {
	if c.NonceSource != nil {
		return c.NonceSource()
	}
	return wpacrypto.NewNonce()
}
