package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wifisim/wifisim-go/pkg/handshake"
	"github.com/wifisim/wifisim-go/pkg/log"
	"github.com/wifisim/wifisim-go/pkg/sessionstore"
	"github.com/wifisim/wifisim-go/pkg/transport"
	"github.com/wifisim/wifisim-go/pkg/uplink"
	"github.com/wifisim/wifisim-go/pkg/wire"
	"github.com/wifisim/wifisim-go/pkg/wpacrypto"
)

// APStats counts uplink frames seen by the access point.
type APStats struct {
	Received uint64
	Rejected uint64
}

// APService is the access point coordinator.
type APService struct {
	mu sync.RWMutex

	config APConfig
	bus    transport.Bus
	state  ServiceState

	table    *handshake.Table
	opener   *uplink.Opener
	sessions sessionstore.Store

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()

	received atomic.Uint64
	rejected atomic.Uint64

	eventHandlers []EventHandler
	logger        *slog.Logger
	protoLog      log.Logger
}

// NewAPService creates an AP coordinator on bus.
func NewAPService(bus transport.Bus, config APConfig) (*APService, error) {
	if bus == nil {
		return nil, fmt.Errorf("%w: nil bus", ErrInvalidConfig)
	}
	if config.Suite == "" {
		config.Suite = wpacrypto.DefaultSuite
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	sessions := config.Sessions
	if sessions == nil {
		sessions = sessionstore.NewMemoryStore()
	}

	s := &APService{
		config:   config,
		bus:      bus,
		state:    StateIdle,
		sessions: sessions,
		logger:   config.Logger,
		protoLog: log.OrNoop(config.ProtocolLogger),
	}

	s.table = handshake.NewTable(handshake.Config{
		PSK:         config.PSK,
		APBSSID:     config.BSSID,
		NonceSource: config.NonceSource,
	})
	s.table.OnTransition(s.onTransition)
	s.opener = uplink.NewOpener(s.table, uplink.OpenerConfig{
		Suite:     config.Suite,
		AllowDemo: config.AllowDemo,
	})

	return s, nil
}

// BSSID returns the access point identity.
func (s *APService) BSSID() string {
	return s.config.BSSID
}

// State returns the current service state.
func (s *APService) State() ServiceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// OnEvent registers an event handler.
func (s *APService) OnEvent(handler EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventHandlers = append(s.eventHandlers, handler)
}

// Start subscribes to the bus and begins answering devices.
func (s *APService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle && s.state != StateStopped {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = StateStarting
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	unsubscribe := s.bus.Subscribe(s.handleMessage)

	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.state = StateRunning
	s.mu.Unlock()

	s.debugLog("AP service started", "bssid", s.config.BSSID, "suite", s.config.Suite, "allowDemo", s.config.AllowDemo)
	return nil
}

// Stop unsubscribes from the bus. Handshake state is kept, so a restarted
// service still knows its sessions.
func (s *APService) Stop() error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.state = StateStopping
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if s.cancel != nil {
		s.cancel()
	}

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()

	s.debugLog("AP service stopped")
	return nil
}

// Handshakes returns the handshake state of every known device.
func (s *APService) Handshakes() []handshake.Status {
	return s.table.Snapshot()
}

// ActiveDevices returns the identities with an ACTIVE session.
func (s *APService) ActiveDevices() []string {
	return s.table.Active()
}

// Sessions returns the session ledger.
func (s *APService) Sessions(ctx context.Context) ([]*sessionstore.Record, error) {
	return s.sessions.List(ctx)
}

// Stats returns uplink counters.
func (s *APService) Stats() APStats {
	return APStats{
		Received: s.received.Load(),
		Rejected: s.rejected.Load(),
	}
}

// Deauthenticate destroys the session for deviceID. Its next frames are
// rejected until it completes a new handshake.
func (s *APService) Deauthenticate(ctx context.Context, deviceID string) error {
	if s.State() != StateRunning {
		return ErrNotStarted
	}

	s.table.Remove(deviceID)
	if err := s.sessions.Delete(ctx, deviceID); err != nil {
		return fmt.Errorf("delete session %s: %w", deviceID, err)
	}
	return nil
}

// SendDemo asks deviceID to emit text as a one-off uplink frame.
func (s *APService) SendDemo(ctx context.Context, deviceID, text, targetID string) error {
	if s.State() != StateRunning {
		return ErrNotStarted
	}
	return s.bus.Publish(ctx, &wire.SendRequest{
		MsgType:  wire.MsgSendRequest,
		DeviceID: deviceID,
		Text:     text,
		TargetID: targetID,
	})
}

// handleMessage is the bus handler. Messages the AP itself published come
// back here and fall through the switch.
func (s *APService) handleMessage(msg wire.Message) {
	ctx := s.runContext()
	if ctx.Err() != nil {
		return
	}

	switch m := msg.(type) {
	case *wire.Register:
		s.handleRegister(ctx, m)
	case *wire.HandshakeInit, *wire.HandshakeComplete:
		s.handleHandshake(ctx, msg)
	case *wire.UplinkFrame:
		s.handleUplink(ctx, m)
	}
}

func (s *APService) handleRegister(ctx context.Context, m *wire.Register) {
	if m.DeviceID == "" {
		return
	}

	// Restarts the instance and discards any previous session.
	if _, err := s.table.Handle(m); err != nil {
		s.logError(m.DeviceID, err, wire.TypeName(m.Type()))
	}
	s.dropSession(ctx, m.DeviceID)

	if s.config.Topology != nil {
		added, err := s.config.Topology.AddDevice(m.DeviceID)
		if err != nil {
			s.logError(m.DeviceID, err, "topology")
		} else if added {
			s.debugLog("device added to topology", "device", m.DeviceID)
		}
	}

	s.debugLog("device registered", "device", m.DeviceID)
	s.emitEvent(Event{Type: EventDeviceRegistered, DeviceID: m.DeviceID})
}

func (s *APService) handleHandshake(ctx context.Context, msg wire.Message) {
	id := msg.Identity()
	if id == "" {
		return
	}
	if _, ok := msg.(*wire.HandshakeInit); ok {
		s.dropSession(ctx, id)
	}

	reply, err := s.table.Handle(msg)
	if err != nil {
		s.debugLog("handshake error", "device", id, "msg", wire.TypeName(msg.Type()), "error", err)
		s.logError(id, err, wire.TypeName(msg.Type()))
	}
	if reply == nil {
		return
	}

	// The ledger entry exists before the device learns it may send.
	if r, ok := reply.(*wire.HandshakeResult); ok && r.OK {
		s.recordSession(ctx, id)
	}

	if err := s.bus.Publish(ctx, reply); err != nil {
		s.logError(id, err, "publish "+wire.TypeName(reply.Type()))
	}
}

func (s *APService) handleUplink(ctx context.Context, frame *wire.UplinkFrame) {
	if frame.From == "" {
		s.rejected.Add(1)
		s.logError("", wire.ErrInvalidMessage, "uplink without sender")
		return
	}

	ack := &wire.Ack{
		MsgType:  wire.MsgAck,
		DeviceID: frame.From,
		Seq:      frame.Seq,
	}

	msg, err := s.opener.Open(frame)
	if err != nil {
		s.rejected.Add(1)
		ack.Error = err.Error()
		s.debugLog("uplink rejected", "device", frame.From, "seq", frame.Seq, "error", err)
		s.logError(frame.From, err, "uplink")
		s.emitEvent(Event{Type: EventUplinkRejected, DeviceID: frame.From, Seq: frame.Seq, Error: err})
	} else {
		s.received.Add(1)
		ack.OK = true
		if err := s.sessions.Touch(ctx, frame.From, frame.Seq, s.config.Now()); err != nil && !errors.Is(err, sessionstore.ErrNotFound) {
			s.logError(frame.From, err, "session store")
		}
		s.debugLog("uplink opened",
			"device", frame.From,
			"seq", frame.Seq,
			"target", frame.TargetID,
			"demo", msg.Demo,
			"bytes", len(msg.Plaintext))
		s.emitEvent(Event{Type: EventUplinkReceived, DeviceID: frame.From, Seq: frame.Seq, Message: msg})
	}

	if err := s.bus.Publish(ctx, ack); err != nil {
		s.logError(frame.From, err, "publish ack")
	}
}

func (s *APService) recordSession(ctx context.Context, deviceID string) {
	key, ok := s.table.SessionKey(deviceID)
	if !ok {
		return
	}
	rec := sessionstore.NewRecord(deviceID, s.config.BSSID, string(s.config.Suite), key.Fingerprint(), s.config.Now())
	if err := s.sessions.Put(ctx, rec); err != nil {
		s.logError(deviceID, err, "session store")
	}
}

func (s *APService) dropSession(ctx context.Context, deviceID string) {
	if err := s.sessions.Delete(ctx, deviceID); err != nil {
		s.logError(deviceID, err, "session store")
	}
}

// onTransition runs with the handshake instance locked; it must not call
// back into the table.
func (s *APService) onTransition(t handshake.Transition) {
	s.protoLog.Log(log.NewStateEvent(log.RoleAP, t.Identity, log.StateEntityHandshake,
		t.From.String(), t.To.String(), t.Reason))

	if t.From == handshake.StateActive && t.To != handshake.StateActive {
		s.emitEvent(Event{Type: EventSessionClosed, DeviceID: t.Identity, Reason: t.Reason})
	}

	switch t.To {
	case handshake.StateAwaitingMIC:
		s.emitEvent(Event{Type: EventHandshakeStarted, DeviceID: t.Identity, Reason: t.Reason})
	case handshake.StateActive:
		s.emitEvent(Event{Type: EventSessionActive, DeviceID: t.Identity, Reason: t.Reason})
	case handshake.StateFailed:
		s.emitEvent(Event{
			Type:     EventHandshakeFailed,
			DeviceID: t.Identity,
			Reason:   t.Reason,
			Error:    handshake.ErrHandshakeFailed,
		})
	}
}

func (s *APService) runContext() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func (s *APService) logError(identity string, err error, where string) {
	s.protoLog.Log(log.NewErrorEvent(log.RoleAP, log.LayerService, identity, err, where))
}

// emitEvent sends an event to all registered handlers.
func (s *APService) emitEvent(event Event) {
	s.mu.RLock()
	handlers := s.eventHandlers
	s.mu.RUnlock()

	for _, handler := range handlers {
		go handler(event)
	}
}

// debugLog logs a debug message if logging is enabled.
func (s *APService) debugLog(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
