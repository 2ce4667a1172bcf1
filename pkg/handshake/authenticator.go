package handshake

import (
	"fmt"
	"sync"

	"github.com/wifisim/wifisim-go/pkg/wire"
	"github.com/wifisim/wifisim-go/pkg/wpacrypto"
)

// Authenticator is the access point side of the handshake for one device identity.
type Authenticator struct {
	mu sync.Mutex

	config   Config
	deviceID string
	state    State

	snonce wpacrypto.Nonce
	anonce wpacrypto.Nonce

	key    wpacrypto.SessionKey
	hasKey bool

	onTransition TransitionFunc
}

// NewAuthenticator creates an idle authenticator for deviceID.
func NewAuthenticator(deviceID string, config Config) *Authenticator {
	return &Authenticator{
		config:   config,
		deviceID: deviceID,
		state:    StateIdle,
	}
}

// OnTransition registers fn to receive state changes.
func (a *Authenticator) OnTransition(fn TransitionFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onTransition = fn
}

// DeviceID returns the device identity this instance serves.
func (a *Authenticator) DeviceID() string {
	return a.deviceID
}

// State returns the current state.
func (a *Authenticator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// SessionKey returns the session key once the device has been verified.
func (a *Authenticator) SessionKey() (wpacrypto.SessionKey, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.key, a.hasKey
}

// Handle processes a device message and returns the reply to send, if any.
//
// On a MIC mismatch Handle returns both the negative HandshakeResult and an
// error wrapping ErrHandshakeFailed; the caller must still send the reply.
func (a *Authenticator) Handle(msg wire.Message) (wire.Message, error) {
	if msg == nil || msg.Identity() != a.deviceID {
		return nil, nil
	}

	switch m := msg.(type) {
	case *wire.Register:
		a.Reset()
		return nil, nil
	case *wire.HandshakeInit:
		return a.handleInit(m)
	case *wire.HandshakeComplete:
		return a.handleComplete(m)
	default:
		return nil, nil
	}
}

// Reset discards nonces and key and returns to IDLE.
func (a *Authenticator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.clear()
	if a.state != StateIdle {
		a.transition(StateIdle, "instance reset")
	}
}

func (a *Authenticator) handleInit(m *wire.HandshakeInit) (wire.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// A new init restarts the instance whatever state it was in.
	a.clear()

	snonce, err := wpacrypto.ParseNonce(m.SNonceHex)
	if err != nil {
		a.transition(StateFailed, "malformed snonce")
		return a.result(false), fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}

	anonce, err := a.config.newNonce()
	if err != nil {
		a.transition(StateFailed, err.Error())
		return a.result(false), fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}

	a.snonce = snonce
	a.anonce = anonce
	a.transition(StateAwaitingMIC, "anonce sent")

	return &wire.HandshakeChallenge{
		MsgType:   wire.MsgHandshakeChallenge,
		DeviceID:  a.deviceID,
		ANonceHex: anonce.String(),
	}, nil
}

func (a *Authenticator) handleComplete(m *wire.HandshakeComplete) (wire.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateAwaitingMIC {
		return nil, fmt.Errorf("%w: mic in state %s", ErrProtocolSequence, a.state)
	}

	if err := wpacrypto.VerifyMIC(a.config.PSK, a.anonce, a.snonce, m.MICHex); err != nil {
		a.clear()
		a.transition(StateFailed, "mic mismatch")
		return a.result(false), fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}

	a.key = wpacrypto.DeriveSessionKey(a.config.PSK, a.anonce, a.snonce, a.deviceID, a.config.APBSSID)
	a.hasKey = true
	a.transition(StateKeyDerived, "session key derived")
	a.transition(StateActive, "session key installed")

	return a.result(true), nil
}

func (a *Authenticator) result(ok bool) *wire.HandshakeResult {
	return &wire.HandshakeResult{
		MsgType:  wire.MsgHandshakeResult,
		DeviceID: a.deviceID,
		OK:       ok,
	}
}

// clear drops nonces and key. Caller holds mu.
func (a *Authenticator) clear() {
	a.snonce = wpacrypto.Nonce{}
	a.anonce = wpacrypto.Nonce{}
	a.key = wpacrypto.SessionKey{}
	a.hasKey = false
}

// transition changes state and notifies. Caller holds mu.
func (a *Authenticator) transition(to State, reason string) {
	from := a.state
	a.state = to
	if a.onTransition != nil {
		a.onTransition(Transition{
			Identity: a.deviceID,
			Role:     RoleAP,
			From:     from,
			To:       to,
			Reason:   reason,
		})
	}
}
