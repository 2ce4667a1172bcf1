package log

import (
	"time"

	"github.com/wifisim/wifisim-go/pkg/wire"
)

// Event is one captured protocol event. Exactly one of the payload
// pointers is set.
type Event struct {
	Timestamp    time.Time `cbor:"1,keyasint"`
	ConnectionID string    `cbor:"2,keyasint,omitempty"`
	Direction    Direction `cbor:"3,keyasint"`
	Layer        Layer     `cbor:"4,keyasint"`
	Category     Category  `cbor:"5,keyasint"`
	LocalRole    Role      `cbor:"6,keyasint"`
	RemoteAddr   string    `cbor:"7,keyasint,omitempty"`

	// Identity is the device identity the event concerns, when known.
	Identity string `cbor:"8,keyasint,omitempty"`

	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEvent       `cbor:"13,keyasint,omitempty"`
}

// Direction of a captured event relative to the local peer.
type Direction uint8

const (
	DirectionIn Direction = iota
	DirectionOut
	// DirectionLocal marks events that did not cross the transport.
	DirectionLocal
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	case DirectionLocal:
		return "LOCAL"
	default:
		return "UNKNOWN"
	}
}

// Layer that captured the event.
type Layer uint8

const (
	LayerTransport Layer = iota
	LayerWire
	LayerService
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerService:
		return "SERVICE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event.
type Category uint8

const (
	CategoryMessage Category = iota
	CategoryState
	CategoryError
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Role of the local peer.
type Role uint8

const (
	RoleDevice Role = iota
	RoleAP
	// RoleHub is the TCP hub relaying frames between peers.
	RoleHub
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleDevice:
		return "DEVICE"
	case RoleAP:
		return "AP"
	case RoleHub:
		return "HUB"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent is a raw length-prefixed frame.
type FrameEvent struct {
	// Size includes the length prefix.
	Size      int    `cbor:"1,keyasint"`
	Data      []byte `cbor:"2,keyasint,omitempty"`
	Truncated bool   `cbor:"3,keyasint,omitempty"`
}

// MessageEvent is a decoded wire message.
type MessageEvent struct {
	MsgType uint8  `cbor:"1,keyasint"`
	Name    string `cbor:"2,keyasint"`

	// Seq is set for uplink frames and acks.
	Seq uint64 `cbor:"3,keyasint,omitempty"`

	// OK is set for handshake results and acks.
	OK *bool `cbor:"4,keyasint,omitempty"`

	// Payload holds the decoded message.
	Payload any `cbor:"5,keyasint,omitempty"`
}

// StateChangeEvent records a lifecycle transition.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity names what changed state.
type StateEntity uint8

const (
	StateEntityConnection StateEntity = iota
	StateEntityHandshake
	StateEntitySession
)

// String returns the entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityHandshake:
		return "HANDSHAKE"
	case StateEntitySession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// ErrorEvent records an error at any layer.
type ErrorEvent struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
	Context string `cbor:"3,keyasint,omitempty"`
}

// NewMessageEvent builds a wire-layer event for msg.
func NewMessageEvent(role Role, dir Direction, connID string, msg wire.Message) Event {
	me := &MessageEvent{
		MsgType: msg.Type(),
		Name:    wire.TypeName(msg.Type()),
		Payload: msg,
	}
	switch m := msg.(type) {
	case *wire.HandshakeResult:
		ok := m.OK
		me.OK = &ok
	case *wire.UplinkFrame:
		me.Seq = m.Seq
	case *wire.Ack:
		ok := m.OK
		me.Seq = m.Seq
		me.OK = &ok
	}

	return Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        LayerWire,
		Category:     CategoryMessage,
		LocalRole:    role,
		Identity:     msg.Identity(),
		Message:      me,
	}
}

// NewStateEvent builds a service-layer state change event.
func NewStateEvent(role Role, identity string, entity StateEntity, from, to, reason string) Event {
	return Event{
		Timestamp: time.Now(),
		Direction: DirectionLocal,
		Layer:     LayerService,
		Category:  CategoryState,
		LocalRole: role,
		Identity:  identity,
		StateChange: &StateChangeEvent{
			Entity:   entity,
			OldState: from,
			NewState: to,
			Reason:   reason,
		},
	}
}

// NewErrorEvent builds an error event.
func NewErrorEvent(role Role, layer Layer, identity string, err error, context string) Event {
	return Event{
		Timestamp: time.Now(),
		Direction: DirectionLocal,
		Layer:     layer,
		Category:  CategoryError,
		LocalRole: role,
		Identity:  identity,
		Error: &ErrorEvent{
			Layer:   layer,
			Message: err.Error(),
			Context: context,
		},
	}
}
