package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create wire CBOR encoder mode: %v", err))
	}

	// Lenient decoding so newer peers can add keys.
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create wire CBOR decoder mode: %v", err))
	}
}

// Encode encodes a message to CBOR. The message type key is always set from
// the concrete type, whatever MsgType holds.
func Encode(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case *Register:
		m.MsgType = MsgRegister
	case *HandshakeInit:
		m.MsgType = MsgHandshakeInit
	case *HandshakeChallenge:
		m.MsgType = MsgHandshakeChallenge
	case *HandshakeComplete:
		m.MsgType = MsgHandshakeComplete
	case *HandshakeResult:
		m.MsgType = MsgHandshakeResult
	case *UplinkFrame:
		m.MsgType = MsgUplinkFrame
	case *Ack:
		m.MsgType = MsgAck
	case *SendRequest:
		m.MsgType = MsgSendRequest
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrInvalidMessage, msg)
	}
	return encMode.Marshal(msg)
}

// Decode decodes CBOR bytes to the concrete message type.
func Decode(data []byte) (Message, error) {
	var header struct {
		MsgType uint8 `cbor:"1,keyasint"`
	}
	if err := decMode.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	var msg Message
	switch header.MsgType {
	case MsgRegister:
		msg = &Register{}
	case MsgHandshakeInit:
		msg = &HandshakeInit{}
	case MsgHandshakeChallenge:
		msg = &HandshakeChallenge{}
	case MsgHandshakeComplete:
		msg = &HandshakeComplete{}
	case MsgHandshakeResult:
		msg = &HandshakeResult{}
	case MsgUplinkFrame:
		msg = &UplinkFrame{}
	case MsgAck:
		msg = &Ack{}
	case MsgSendRequest:
		msg = &SendRequest{}
	default:
		return nil, fmt.Errorf("%w: unknown message type %d", ErrInvalidMessage, header.MsgType)
	}

	if err := decMode.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return msg, nil
}
