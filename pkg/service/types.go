package service

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wifisim/wifisim-go/pkg/log"
	"github.com/wifisim/wifisim-go/pkg/sessionstore"
	"github.com/wifisim/wifisim-go/pkg/topology"
	"github.com/wifisim/wifisim-go/pkg/uplink"
	"github.com/wifisim/wifisim-go/pkg/wpacrypto"
)

// Service errors.
var (
	ErrNotStarted     = errors.New("service not started")
	ErrAlreadyStarted = errors.New("service already started")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrNotActive      = errors.New("session not active")
)

// ServiceState represents the service state.
type ServiceState uint8

const (
	// StateIdle - service created but not started.
	StateIdle ServiceState = iota

	// StateStarting - service is starting up.
	StateStarting

	// StateRunning - service is running normally.
	StateRunning

	// StateStopping - service is shutting down.
	StateStopping

	// StateStopped - service has stopped.
	StateStopped
)

// String returns the state name.
func (s ServiceState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// APConfig configures an APService.
type APConfig struct {
	// BSSID is the access point identity used in key derivation.
	BSSID string

	// PSK is the pre-shared key.
	PSK string

	// Suite is the AEAD suite devices must use.
	Suite wpacrypto.Suite

	// AllowDemo accepts demo frames that carry their own key. INSECURE.
	AllowDemo bool

	// Topology records registered devices (optional).
	Topology *topology.Registry

	// Sessions records active sessions. If nil, an in-memory store is used.
	Sessions sessionstore.Store

	// NonceSource overrides ANonce generation (tests only).
	NonceSource func() (wpacrypto.Nonce, error)

	// Now overrides the clock used for session records.
	Now func() time.Time

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives handshake state changes and errors (optional).
	ProtocolLogger log.Logger
}

// DeviceConfig configures a DeviceService.
type DeviceConfig struct {
	// DeviceID is this device's identity.
	DeviceID string

	// APBSSID is the access point identity used in key derivation.
	APBSSID string

	// PSK is the pre-shared key.
	PSK string

	// Suite is the AEAD suite for uplink frames.
	Suite wpacrypto.Suite

	// DemoMode seals each frame under its own random key. INSECURE.
	DemoMode bool

	// UplinkInterval is the period of the background uplink. Zero disables
	// periodic emission; Send still works.
	UplinkInterval time.Duration

	// UplinkText builds the periodic message. If nil, a greeting with the
	// device identity and current time is sent.
	UplinkText func(deviceID string, now time.Time) string

	// NonceSource overrides SNonce generation (tests only).
	NonceSource func() (wpacrypto.Nonce, error)

	// Now overrides the clock used for frame timestamps.
	Now func() time.Time

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives handshake state changes and errors (optional).
	ProtocolLogger log.Logger
}

// Defaults.
const (
	DefaultPSK            = "correcthorsebattery"
	DefaultBSSID          = "AP1"
	DefaultUplinkInterval = 2 * time.Second
	DefaultDemoInterval   = 5 * time.Second
)

// DefaultAPConfig returns an APConfig with sensible defaults.
func DefaultAPConfig() APConfig {
	return APConfig{
		BSSID: DefaultBSSID,
		PSK:   DefaultPSK,
		Suite: wpacrypto.DefaultSuite,
	}
}

// DefaultDeviceConfig returns a DeviceConfig for deviceID with sensible defaults.
func DefaultDeviceConfig(deviceID string) DeviceConfig {
	return DeviceConfig{
		DeviceID:       deviceID,
		APBSSID:        DefaultBSSID,
		PSK:            DefaultPSK,
		Suite:          wpacrypto.DefaultSuite,
		UplinkInterval: DefaultUplinkInterval,
	}
}

// Validate checks if the AP config is valid and canonicalizes Suite.
func (c *APConfig) Validate() error {
	if c.BSSID == "" || c.PSK == "" {
		return ErrInvalidConfig
	}
	suite, err := wpacrypto.ParseSuite(string(c.Suite))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	c.Suite = suite
	return nil
}

// Validate checks if the device config is valid and canonicalizes Suite.
func (c *DeviceConfig) Validate() error {
	if c.DeviceID == "" || c.APBSSID == "" || c.PSK == "" {
		return ErrInvalidConfig
	}
	if c.UplinkInterval < 0 {
		return ErrInvalidConfig
	}
	suite, err := wpacrypto.ParseSuite(string(c.Suite))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	c.Suite = suite
	return nil
}

// Event types for service callbacks.
type EventType uint8

const (
	// EventDeviceRegistered - a device announced itself to the AP.
	EventDeviceRegistered EventType = iota

	// EventHandshakeStarted - a handshake attempt began.
	EventHandshakeStarted

	// EventSessionActive - the session key is installed.
	EventSessionActive

	// EventHandshakeFailed - the handshake ended in FAILED.
	EventHandshakeFailed

	// EventSessionClosed - an active session was torn down.
	EventSessionClosed

	// EventUplinkSent - the device emitted a frame.
	EventUplinkSent

	// EventUplinkReceived - the AP opened a frame.
	EventUplinkReceived

	// EventUplinkRejected - the AP could not open a frame.
	EventUplinkRejected

	// EventAckError - the device received a negative ack.
	EventAckError
)

// String returns the event type name.
func (e EventType) String() string {
	switch e {
	case EventDeviceRegistered:
		return "DEVICE_REGISTERED"
	case EventHandshakeStarted:
		return "HANDSHAKE_STARTED"
	case EventSessionActive:
		return "SESSION_ACTIVE"
	case EventHandshakeFailed:
		return "HANDSHAKE_FAILED"
	case EventSessionClosed:
		return "SESSION_CLOSED"
	case EventUplinkSent:
		return "UPLINK_SENT"
	case EventUplinkReceived:
		return "UPLINK_RECEIVED"
	case EventUplinkRejected:
		return "UPLINK_REJECTED"
	case EventAckError:
		return "ACK_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event represents a service event.
type Event struct {
	// Type is the event type.
	Type EventType

	// DeviceID is the device the event concerns.
	DeviceID string

	// Seq is the frame sequence number (uplink and ack events).
	Seq uint64

	// Message is the opened frame (EventUplinkReceived).
	Message *uplink.Message

	// Reason describes a state change.
	Reason string

	// Error is set if the event is an error.
	Error error
}

// EventHandler handles service events.
type EventHandler func(Event)
