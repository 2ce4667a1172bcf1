package uplink

import (
	"fmt"

	"github.com/wifisim/wifisim-go/pkg/wire"
	"github.com/wifisim/wifisim-go/pkg/wpacrypto"
)

// KeySource looks up the active session key for a device identity.
type KeySource interface {
	SessionKey(deviceID string) (wpacrypto.SessionKey, bool)
}

// OpenerConfig configures an Opener.
type OpenerConfig struct {
	// Suite is the suite the access point expects. Empty selects the default.
	Suite wpacrypto.Suite

	// AllowDemo accepts frames that carry their own demo key.
	AllowDemo bool
}

// Message is a decrypted uplink frame.
type Message struct {
	From      string
	TargetID  string
	Plaintext []byte
	Seq       uint64
	Ts        int64
	Demo      bool
}

// Opener decrypts frames on the access point.
type Opener struct {
	keys   KeySource
	config OpenerConfig
}

// NewOpener creates an Opener backed by keys.
func NewOpener(keys KeySource, config OpenerConfig) *Opener {
	if config.Suite == "" {
		config.Suite = wpacrypto.DefaultSuite
	}
	return &Opener{keys: keys, config: config}
}

// Open verifies and decrypts frame. The sender must hold an active session
// even for demo frames, and the associated data must name the sender.
func (o *Opener) Open(frame *wire.UplinkFrame) (*Message, error) {
	if frame == nil || frame.From == "" {
		return nil, fmt.Errorf("%w: frame without sender", wire.ErrInvalidMessage)
	}

	key, ok := o.keys.SessionKey(frame.From)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, frame.From)
	}

	suite, err := wpacrypto.ParseSuite(frame.Alg)
	if err != nil {
		return nil, err
	}
	if suite != o.config.Suite {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrSuiteMismatch, suite, o.config.Suite)
	}

	if frame.AAD != frame.From {
		return nil, fmt.Errorf("%w: associated data does not name sender", wpacrypto.ErrAuthentication)
	}

	keyBytes := key[:]
	demo := frame.DemoKeyHex != ""
	if demo {
		if !o.config.AllowDemo {
			return nil, ErrDemoDisabled
		}
		keyBytes, err = wpacrypto.ParseDemoKey(frame.DemoKeyHex)
		if err != nil {
			return nil, err
		}
	}

	plaintext, err := suite.Decrypt(keyBytes, frame.IV, frame.Ciphertext, frame.AuthTag, frame.From)
	if err != nil {
		return nil, err
	}

	return &Message{
		From:      frame.From,
		TargetID:  frame.TargetID,
		Plaintext: plaintext,
		Seq:       frame.Seq,
		Ts:        frame.Ts,
		Demo:      demo,
	}, nil
}
