package wire

import (
	"errors"
	"strconv"
)

// Message types.
const (
	// MsgRegister announces a device identity.
	MsgRegister uint8 = 1

	// MsgHandshakeInit carries the device nonce (SNonce).
	MsgHandshakeInit uint8 = 2

	// MsgHandshakeChallenge carries the access point nonce (ANonce).
	MsgHandshakeChallenge uint8 = 3

	// MsgHandshakeComplete carries the device MIC.
	MsgHandshakeComplete uint8 = 4

	// MsgHandshakeResult reports whether the MIC verified.
	MsgHandshakeResult uint8 = 5

	// MsgUplinkFrame is an encrypted application message.
	MsgUplinkFrame uint8 = 10

	// MsgAck acknowledges an uplink frame.
	MsgAck uint8 = 11

	// MsgSendRequest asks a device to send a one-off message.
	MsgSendRequest uint8 = 12
)

// Message errors.
var (
	ErrInvalidMessage = errors.New("invalid wire message")
)

// Message is implemented by every wire message.
type Message interface {
	// Type returns the message type discriminator.
	Type() uint8

	// Identity returns the device identity the message concerns.
	Identity() string
}

// Register announces a device to the access point.
// CBOR: { 1: msgType, 2: deviceID }
type Register struct {
	MsgType  uint8  `cbor:"1,keyasint"`
	DeviceID string `cbor:"2,keyasint"`
}

// HandshakeInit starts a handshake with a fresh device nonce.
// CBOR: { 1: msgType, 2: deviceID, 3: snonceHex }
type HandshakeInit struct {
	MsgType   uint8  `cbor:"1,keyasint"`
	DeviceID  string `cbor:"2,keyasint"`
	SNonceHex string `cbor:"3,keyasint"`
}

// HandshakeChallenge is the access point's nonce reply.
// CBOR: { 1: msgType, 2: deviceID, 3: anonceHex }
type HandshakeChallenge struct {
	MsgType   uint8  `cbor:"1,keyasint"`
	DeviceID  string `cbor:"2,keyasint"`
	ANonceHex string `cbor:"3,keyasint"`
}

// HandshakeComplete carries the device's proof of PSK possession.
// CBOR: { 1: msgType, 2: deviceID, 3: micHex }
type HandshakeComplete struct {
	MsgType  uint8  `cbor:"1,keyasint"`
	DeviceID string `cbor:"2,keyasint"`
	MICHex   string `cbor:"3,keyasint"`
}

// HandshakeResult reports the MIC verification outcome.
// CBOR: { 1: msgType, 2: deviceID, 3: ok }
type HandshakeResult struct {
	MsgType  uint8  `cbor:"1,keyasint"`
	DeviceID string `cbor:"2,keyasint"`
	OK       bool   `cbor:"3,keyasint"`
}

// UplinkFrame is an AEAD-sealed application message.
// CBOR: { 1: msgType, 2: from, 3: targetID, 4: iv, 5: ciphertext, 6: authTag,
// 7: aad, 8: alg, 9: demoKeyHex, 10: ts, 11: seq }
type UplinkFrame struct {
	MsgType    uint8  `cbor:"1,keyasint"`
	From       string `cbor:"2,keyasint"`
	TargetID   string `cbor:"3,keyasint,omitempty"`
	IV         string `cbor:"4,keyasint"`
	Ciphertext string `cbor:"5,keyasint"`
	AuthTag    string `cbor:"6,keyasint"`
	AAD        string `cbor:"7,keyasint"`
	Alg        string `cbor:"8,keyasint,omitempty"`

	// DemoKeyHex is only set in teaching mode, where each frame is sealed
	// under its own random key that travels in the clear.
	DemoKeyHex string `cbor:"9,keyasint,omitempty"`

	Ts  int64  `cbor:"10,keyasint"` // Unix milliseconds
	Seq uint64 `cbor:"11,keyasint"`
}

// Ack acknowledges an uplink frame.
// CBOR: { 1: msgType, 2: deviceID, 3: seq, 4: ok, 5: error }
type Ack struct {
	MsgType  uint8  `cbor:"1,keyasint"`
	DeviceID string `cbor:"2,keyasint"`
	Seq      uint64 `cbor:"3,keyasint"`
	OK       bool   `cbor:"4,keyasint"`
	Error    string `cbor:"5,keyasint,omitempty"`
}

// SendRequest asks a device to emit one message, optionally to a target.
// CBOR: { 1: msgType, 2: deviceID, 3: text, 4: targetID }
type SendRequest struct {
	MsgType  uint8  `cbor:"1,keyasint"`
	DeviceID string `cbor:"2,keyasint"`
	Text     string `cbor:"3,keyasint"`
	TargetID string `cbor:"4,keyasint,omitempty"`
}

func (m *Register) Type() uint8           { return MsgRegister }
func (m *HandshakeInit) Type() uint8      { return MsgHandshakeInit }
func (m *HandshakeChallenge) Type() uint8 { return MsgHandshakeChallenge }
func (m *HandshakeComplete) Type() uint8  { return MsgHandshakeComplete }
func (m *HandshakeResult) Type() uint8    { return MsgHandshakeResult }
func (m *UplinkFrame) Type() uint8        { return MsgUplinkFrame }
func (m *Ack) Type() uint8                { return MsgAck }
func (m *SendRequest) Type() uint8        { return MsgSendRequest }

func (m *Register) Identity() string           { return m.DeviceID }
func (m *HandshakeInit) Identity() string      { return m.DeviceID }
func (m *HandshakeChallenge) Identity() string { return m.DeviceID }
func (m *HandshakeComplete) Identity() string  { return m.DeviceID }
func (m *HandshakeResult) Identity() string    { return m.DeviceID }
func (m *UplinkFrame) Identity() string        { return m.From }
func (m *Ack) Identity() string                { return m.DeviceID }
func (m *SendRequest) Identity() string        { return m.DeviceID }

// TypeName returns the event name for msgType, as shown in logs and the admin API.
func TypeName(msgType uint8) string {
	switch msgType {
	case MsgRegister:
		return "device:register"
	case MsgHandshakeInit:
		return "handshake:init"
	case MsgHandshakeChallenge:
		return "handshake:ap"
	case MsgHandshakeComplete:
		return "handshake:complete"
	case MsgHandshakeResult:
		return "handshake:result"
	case MsgUplinkFrame:
		return "uplink"
	case MsgAck:
		return "ap:ack"
	case MsgSendRequest:
		return "device:send-demo"
	default:
		return "unknown"
	}
}

// ParseTypeName maps an event name from TypeName, or a decimal type number,
// back to its message type.
func ParseTypeName(name string) (uint8, bool) {
	for _, t := range []uint8{
		MsgRegister, MsgHandshakeInit, MsgHandshakeChallenge, MsgHandshakeComplete,
		MsgHandshakeResult, MsgUplinkFrame, MsgAck, MsgSendRequest,
	} {
		if TypeName(t) == name {
			return t, true
		}
	}
	n, err := strconv.ParseUint(name, 10, 8)
	if err != nil || TypeName(uint8(n)) == "unknown" {
		return 0, false
	}
	return uint8(n), true
}
