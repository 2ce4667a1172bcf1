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
	"github.com/wifisim/wifisim-go/pkg/transport"
	"github.com/wifisim/wifisim-go/pkg/uplink"
	"github.com/wifisim/wifisim-go/pkg/wire"
	"github.com/wifisim/wifisim-go/pkg/wpacrypto"
)

// isoMillis matches the timestamp format of the default uplink text.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// DeviceStats counts frames sent by a device.
type DeviceStats struct {
	Sent   uint64
	Nacked uint64
}

// DeviceService drives one simulated device.
type DeviceService struct {
	mu sync.RWMutex

	config DeviceConfig
	bus    transport.Bus
	state  ServiceState

	supplicant *handshake.Supplicant
	sealer     *uplink.Sealer

	// sessionMu orders handshake restarts against key installation.
	sessionMu sync.Mutex

	// emitMu is held shared from Seal through Publish and exclusively while
	// the key is cleared.
	emitMu sync.RWMutex

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()

	loopCancel context.CancelFunc
	loopDone   chan struct{}

	sent   atomic.Uint64
	nacked atomic.Uint64

	eventHandlers []EventHandler
	logger        *slog.Logger
	protoLog      log.Logger
}

// NewDeviceService creates a device on bus.
func NewDeviceService(bus transport.Bus, config DeviceConfig) (*DeviceService, error) {
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
	if config.UplinkText == nil {
		config.UplinkText = defaultUplinkText
	}

	s := &DeviceService{
		config:   config,
		bus:      bus,
		state:    StateIdle,
		logger:   config.Logger,
		protoLog: log.OrNoop(config.ProtocolLogger),
	}

	s.supplicant = handshake.NewSupplicant(config.DeviceID, handshake.Config{
		PSK:         config.PSK,
		APBSSID:     config.APBSSID,
		NonceSource: config.NonceSource,
	})
	s.supplicant.OnTransition(s.onTransition)
	s.sealer = uplink.NewSealer(config.DeviceID, uplink.SealerConfig{
		Suite: config.Suite,
		Demo:  config.DemoMode,
		Now:   config.Now,
	})

	return s, nil
}

func defaultUplinkText(deviceID string, now time.Time) string {
	return fmt.Sprintf("hello from %s @ %s", deviceID, now.UTC().Format(isoMillis))
}

// DeviceID returns the device identity.
func (s *DeviceService) DeviceID() string {
	return s.config.DeviceID
}

// State returns the current service state.
func (s *DeviceService) State() ServiceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// HandshakeState returns the supplicant state.
func (s *DeviceService) HandshakeState() handshake.State {
	return s.supplicant.State()
}

// Active reports whether the session key is installed for uplink. It turns
// true shortly after the handshake reaches ACTIVE and false before any
// teardown begins.
func (s *DeviceService) Active() bool {
	return s.sealer.Active()
}

// KeyFingerprint returns a short fingerprint of the session key, or "" when
// no session is active.
func (s *DeviceService) KeyFingerprint() string {
	key, ok := s.supplicant.SessionKey()
	if !ok {
		return ""
	}
	return key.Fingerprint()
}

// Seq returns the sequence number of the last frame sent.
func (s *DeviceService) Seq() uint64 {
	return s.sealer.Seq()
}

// Stats returns frame counters.
func (s *DeviceService) Stats() DeviceStats {
	return DeviceStats{
		Sent:   s.sent.Load(),
		Nacked: s.nacked.Load(),
	}
}

// OnEvent registers an event handler.
func (s *DeviceService) OnEvent(handler EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventHandlers = append(s.eventHandlers, handler)
}

// Start subscribes to the bus, registers with the access point and
// initiates the handshake.
func (s *DeviceService) Start(ctx context.Context) error {
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

	if err := s.beginHandshake(s.ctx); err != nil {
		unsubscribe()
		s.cancel()
		s.mu.Lock()
		s.unsubscribe = nil
		s.state = StateIdle
		s.mu.Unlock()
		return err
	}

	s.debugLog("device service started", "device", s.config.DeviceID, "suite", s.config.Suite, "demo", s.config.DemoMode)
	return nil
}

// Stop ends the uplink loop, destroys the session key and unsubscribes.
func (s *DeviceService) Stop() error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.state = StateStopping
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	s.sessionMu.Lock()
	s.stopUplink()
	s.supplicant.Reset()
	s.sessionMu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if s.cancel != nil {
		s.cancel()
	}

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()

	s.debugLog("device service stopped", "device", s.config.DeviceID)
	return nil
}

// Restart tears down the current session and runs a new handshake with a
// fresh nonce. It is the only way out of FAILED.
func (s *DeviceService) Restart(ctx context.Context) error {
	if s.State() != StateRunning {
		return ErrNotStarted
	}
	return s.beginHandshake(ctx)
}

// Send seals text and publishes it as one uplink frame. It fails with
// ErrNotActive until the handshake has completed.
func (s *DeviceService) Send(ctx context.Context, text, targetID string) error {
	if s.State() != StateRunning {
		return ErrNotStarted
	}
	return s.send(ctx, text, targetID)
}

func (s *DeviceService) send(ctx context.Context, text, targetID string) error {
	frame, err := s.sealAndPublish(ctx, text, targetID)
	if err != nil {
		return err
	}

	s.sent.Add(1)
	s.debugLog("uplink sent", "device", s.config.DeviceID, "seq", frame.Seq, "target", targetID)
	s.emitEvent(Event{Type: EventUplinkSent, DeviceID: s.config.DeviceID, Seq: frame.Seq})
	return nil
}

func (s *DeviceService) sealAndPublish(ctx context.Context, text, targetID string) (*wire.UplinkFrame, error) {
	s.emitMu.RLock()
	defer s.emitMu.RUnlock()

	frame, err := s.sealer.Seal([]byte(text), targetID)
	if errors.Is(err, uplink.ErrNoSessionKey) {
		return nil, fmt.Errorf("%w: %v", ErrNotActive, err)
	}
	if err != nil {
		return nil, err
	}
	if err := s.bus.Publish(ctx, frame); err != nil {
		return nil, err
	}
	return frame, nil
}

func (s *DeviceService) beginHandshake(ctx context.Context) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	s.stopUplink()

	init, err := s.supplicant.Start()
	if err != nil {
		return err
	}

	if err := s.bus.Publish(ctx, &wire.Register{
		MsgType:  wire.MsgRegister,
		DeviceID: s.config.DeviceID,
	}); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	if err := s.bus.Publish(ctx, init); err != nil {
		return fmt.Errorf("handshake init: %w", err)
	}

	s.debugLog("handshake initiated", "device", s.config.DeviceID, "snonce", init.SNonceHex)
	return nil
}

func (s *DeviceService) handleMessage(msg wire.Message) {
	if msg.Identity() != s.config.DeviceID {
		return
	}
	ctx := s.runContext()
	if ctx.Err() != nil {
		return
	}

	switch m := msg.(type) {
	case *wire.HandshakeChallenge, *wire.HandshakeResult:
		s.handleHandshake(ctx, msg)
	case *wire.SendRequest:
		text := m.Text
		if text == "" {
			text = "hi from " + s.config.DeviceID
		}
		if err := s.Send(ctx, text, m.TargetID); err != nil {
			s.debugLog("send request dropped", "device", s.config.DeviceID, "error", err)
		}
	case *wire.Ack:
		if !m.OK {
			s.nacked.Add(1)
			err := errors.New(m.Error)
			if s.logger != nil {
				s.logger.Warn("AP ack error", "device", s.config.DeviceID, "seq", m.Seq, "error", m.Error)
			}
			s.emitEvent(Event{Type: EventAckError, DeviceID: s.config.DeviceID, Seq: m.Seq, Error: err})
		}
	}
}

func (s *DeviceService) handleHandshake(ctx context.Context, msg wire.Message) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	if ctx.Err() != nil {
		return
	}

	reply, err := s.supplicant.Handle(msg)
	if err != nil {
		s.debugLog("handshake error", "device", s.config.DeviceID, "msg", wire.TypeName(msg.Type()), "error", err)
		s.protoLog.Log(log.NewErrorEvent(log.RoleDevice, log.LayerService, s.config.DeviceID, err, wire.TypeName(msg.Type())))
		return
	}

	if reply != nil {
		if err := s.bus.Publish(ctx, reply); err != nil {
			s.protoLog.Log(log.NewErrorEvent(log.RoleDevice, log.LayerService, s.config.DeviceID, err, "publish "+wire.TypeName(reply.Type())))
		}
		return
	}

	if key, ok := s.supplicant.SessionKey(); ok && s.supplicant.State() == handshake.StateActive {
		s.sealer.Reset(key)
		s.debugLog("session active", "device", s.config.DeviceID, "key", key.Fingerprint())
		s.startUplink()
	}
}

// startUplink launches the periodic uplink. Caller holds sessionMu.
func (s *DeviceService) startUplink() {
	if s.config.UplinkInterval <= 0 {
		return
	}

	s.mu.Lock()
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	s.loopCancel, s.loopDone = cancel, done
	s.mu.Unlock()

	go s.uplinkLoop(ctx, done)
}

// stopUplink clears the key before cancelling. A frame already sealed is
// published before the key is cleared; none is emitted afterwards.
// Caller holds sessionMu.
func (s *DeviceService) stopUplink() {
	s.emitMu.Lock()
	s.sealer.Clear()
	s.emitMu.Unlock()

	s.mu.Lock()
	cancel, done := s.loopCancel, s.loopDone
	s.loopCancel, s.loopDone = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *DeviceService) uplinkLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.config.UplinkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			text := s.config.UplinkText(s.config.DeviceID, s.config.Now())
			if err := s.send(ctx, text, ""); err != nil {
				if ctx.Err() != nil {
					return
				}
				s.debugLog("uplink failed", "device", s.config.DeviceID, "error", err)
			}
		}
	}
}

// onTransition runs with the supplicant locked; it must not call back into
// the supplicant.
func (s *DeviceService) onTransition(t handshake.Transition) {
	s.protoLog.Log(log.NewStateEvent(log.RoleDevice, t.Identity, log.StateEntityHandshake,
		t.From.String(), t.To.String(), t.Reason))

	if t.From == handshake.StateActive && t.To != handshake.StateActive {
		s.emitEvent(Event{Type: EventSessionClosed, DeviceID: t.Identity, Reason: t.Reason})
	}

	switch t.To {
	case handshake.StateNonceSent:
		s.emitEvent(Event{Type: EventHandshakeStarted, DeviceID: t.Identity, Reason: t.Reason})
	case handshake.StateActive:
		s.emitEvent(Event{Type: EventSessionActive, DeviceID: t.Identity, Reason: t.Reason})
	case handshake.StateFailed:
		if s.logger != nil {
			s.logger.Warn("handshake failed", "device", t.Identity, "reason", t.Reason)
		}
		s.emitEvent(Event{
			Type:     EventHandshakeFailed,
			DeviceID: t.Identity,
			Reason:   t.Reason,
			Error:    handshake.ErrHandshakeFailed,
		})
	}
}

func (s *DeviceService) runContext() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// emitEvent sends an event to all registered handlers.
func (s *DeviceService) emitEvent(event Event) {
	s.mu.RLock()
	handlers := s.eventHandlers
	s.mu.RUnlock()

	for _, handler := range handlers {
		go handler(event)
	}
}

// debugLog logs a debug message if logging is enabled.
func (s *DeviceService) debugLog(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
