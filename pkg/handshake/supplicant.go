package handshake

import (
	"fmt"
	"sync"

	"github.com/wifisim/wifisim-go/pkg/wire"
	"github.com/wifisim/wifisim-go/pkg/wpacrypto"
)

// Supplicant is the device side of the handshake for one device identity.
type Supplicant struct {
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

// NewSupplicant creates an idle supplicant for deviceID.
func NewSupplicant(deviceID string, config Config) *Supplicant {
	return &Supplicant{
		config:   config,
		deviceID: deviceID,
		state:    StateIdle,
	}
}

// OnTransition registers fn to receive state changes.
func (s *Supplicant) OnTransition(fn TransitionFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTransition = fn
}

// DeviceID returns the identity this supplicant speaks for.
func (s *Supplicant) DeviceID() string {
	return s.deviceID
}

// State returns the current state.
func (s *Supplicant) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SessionKey returns the installed session key, if any.
func (s *Supplicant) SessionKey() (wpacrypto.SessionKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key, s.hasKey
}

// Start begins a new handshake attempt. It may be called in any state; a
// fresh SNonce is drawn and any previous nonces and key are discarded.
func (s *Supplicant) Start() (*wire.HandshakeInit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snonce, err := s.config.newNonce()
	if err != nil {
		s.fail(err.Error())
		return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}

	s.clear()
	s.snonce = snonce
	s.transition(StateNonceSent, "handshake started")

	return &wire.HandshakeInit{
		MsgType:   wire.MsgHandshakeInit,
		DeviceID:  s.deviceID,
		SNonceHex: snonce.String(),
	}, nil
}

// Handle processes a message from the access point and returns the reply to
// send, if any. Messages for other identities, and message types the device
// does not consume, return (nil, nil).
func (s *Supplicant) Handle(msg wire.Message) (wire.Message, error) {
	if msg == nil || msg.Identity() != s.deviceID {
		return nil, nil
	}

	switch m := msg.(type) {
	case *wire.HandshakeChallenge:
		reply, err := s.handleChallenge(m)
		if err != nil {
			return nil, err
		}
		return reply, nil
	case *wire.HandshakeResult:
		return nil, s.handleResult(m)
	default:
		return nil, nil
	}
}

func (s *Supplicant) handleChallenge(m *wire.HandshakeChallenge) (*wire.HandshakeComplete, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateNonceSent {
		return nil, fmt.Errorf("%w: challenge in state %s", ErrProtocolSequence, s.state)
	}

	anonce, err := wpacrypto.ParseNonce(m.ANonceHex)
	if err != nil {
		s.fail("malformed anonce")
		return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	s.anonce = anonce

	mic := wpacrypto.ComputeMIC(s.config.PSK, s.anonce, s.snonce)
	s.transition(StateAwaitingANonce, "mic sent")

	return &wire.HandshakeComplete{
		MsgType:  wire.MsgHandshakeComplete,
		DeviceID: s.deviceID,
		MICHex:   mic,
	}, nil
}

func (s *Supplicant) handleResult(m *wire.HandshakeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case !m.OK && (s.state == StateNonceSent || s.state == StateAwaitingANonce):
		s.fail("access point rejected handshake")
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, wpacrypto.ErrAuthentication)
	case m.OK && s.state == StateAwaitingANonce:
	default:
		return fmt.Errorf("%w: result in state %s", ErrProtocolSequence, s.state)
	}

	s.key = wpacrypto.DeriveSessionKey(s.config.PSK, s.anonce, s.snonce, s.deviceID, s.config.APBSSID)
	s.hasKey = true
	s.transition(StateKeyDerived, "session key derived")
	s.transition(StateActive, "session key installed")
	return nil
}

// Reset returns to IDLE and destroys the session key.
func (s *Supplicant) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clear()
	if s.state != StateIdle {
		s.transition(StateIdle, "session torn down")
	}
}

// clear drops nonces and key. Caller holds mu.
func (s *Supplicant) clear() {
	s.snonce = wpacrypto.Nonce{}
	s.anonce = wpacrypto.Nonce{}
	s.key = wpacrypto.SessionKey{}
	s.hasKey = false
}

// fail moves to FAILED without a key. Caller holds mu.
func (s *Supplicant) fail(reason string) {
	s.clear()
	s.transition(StateFailed, reason)
}

// transition changes state and notifies. Caller holds mu.
func (s *Supplicant) transition(to State, reason string) {
	from := s.state
	s.state = to
	if s.onTransition != nil {
		s.onTransition(Transition{
			Identity: s.deviceID,
			Role:     RoleDevice,
			From:     from,
			To:       to,
			Reason:   reason,
		})
	}
}
