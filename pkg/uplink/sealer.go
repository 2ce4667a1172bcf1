package uplink

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wifisim/wifisim-go/pkg/wire"
	"github.com/wifisim/wifisim-go/pkg/wpacrypto"
)

// Uplink errors.
var (
	// ErrNoSessionKey is returned when sealing before a key is installed.
	ErrNoSessionKey = errors.New("no session key installed")

	// ErrNoSession is returned when a frame arrives from an identity
	// without an active session.
	ErrNoSession = errors.New("no active session for sender")

	// ErrSuiteMismatch is returned for frames sealed with another cipher suite.
	ErrSuiteMismatch = errors.New("cipher suite mismatch")

	// ErrDemoDisabled is returned for demo frames when demo mode is off.
	ErrDemoDisabled = errors.New("demo frames not accepted")
)

// SealerConfig configures a Sealer.
type SealerConfig struct {
	// Suite is the AEAD suite. Empty selects wpacrypto.DefaultSuite.
	Suite wpacrypto.Suite

	// Demo seals each frame under a random per-frame key. INSECURE.
	Demo bool

	// Now returns the frame timestamp. Nil uses time.Now.
	Now func() time.Time
}

// Sealer seals application messages for one device.
type Sealer struct {
	mu sync.Mutex

	from   string
	config SealerConfig

	key    wpacrypto.SessionKey
	hasKey bool
	seq    uint64
}

// NewSealer creates a Sealer for the device identity from. It has no key
// until Reset is called.
func NewSealer(from string, config SealerConfig) *Sealer {
	if config.Suite == "" {
		config.Suite = wpacrypto.DefaultSuite
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Sealer{from: from, config: config}
}

// Reset installs a new session key and restarts the sequence counter.
func (s *Sealer) Reset(key wpacrypto.SessionKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = key
	s.hasKey = true
	s.seq = 0
}

// Clear destroys the session key. Seal fails until the next Reset.
func (s *Sealer) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = wpacrypto.SessionKey{}
	s.hasKey = false
}

// Active reports whether a key is installed.
func (s *Sealer) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasKey
}

// Seq returns the sequence number of the last sealed frame.
func (s *Sealer) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Seal encrypts plaintext bound to the sender identity and returns the next
// frame. targetID is optional routing metadata and is not authenticated.
func (s *Sealer) Seal(plaintext []byte, targetID string) (*wire.UplinkFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasKey {
		return nil, ErrNoSessionKey
	}

	frame := &wire.UplinkFrame{
		MsgType:  wire.MsgUplinkFrame,
		From:     s.from,
		TargetID: targetID,
		Alg:      string(s.config.Suite),
	}

	if s.config.Demo {
		sealed, err := s.config.Suite.EncryptWithRandomKey(plaintext, s.from)
		if err != nil {
			return nil, fmt.Errorf("seal demo frame: %w", err)
		}
		fillSealed(frame, &sealed.Sealed)
		frame.DemoKeyHex = sealed.DemoKeyHex
		frame.Alg = string(sealed.Alg)
	} else {
		sealed, err := s.config.Suite.Encrypt(s.key[:], plaintext, s.from)
		if err != nil {
			return nil, fmt.Errorf("seal frame: %w", err)
		}
		fillSealed(frame, sealed)
	}

	// The counter only advances for frames that were actually produced.
	s.seq++
	frame.Seq = s.seq
	frame.Ts = s.config.Now().UnixMilli()
	return frame, nil
}

func fillSealed(frame *wire.UplinkFrame, sealed *wpacrypto.Sealed) {
	frame.IV = sealed.IV
	frame.Ciphertext = sealed.Ciphertext
	frame.AuthTag = sealed.AuthTag
	frame.AAD = sealed.AAD
}
