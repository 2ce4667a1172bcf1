package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wifisim/wifisim-go/pkg/handshake"
	"github.com/wifisim/wifisim-go/pkg/transport"
	"github.com/wifisim/wifisim-go/pkg/transport/mocks"
	"github.com/wifisim/wifisim-go/pkg/wire"
)

type simulation struct {
	bus      *transport.MemoryBus
	ap       *APService
	apEvents *eventLog
}

func newSimulation(t *testing.T, mutate func(*APConfig)) *simulation {
	t.Helper()

	bus := transport.NewMemoryBus()
	t.Cleanup(func() { bus.Close() })

	cfg := DefaultAPConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	ap, err := NewAPService(bus, cfg)
	require.NoError(t, err)

	sim := &simulation{bus: bus, ap: ap, apEvents: &eventLog{}}
	ap.OnEvent(sim.apEvents.handle)
	require.NoError(t, ap.Start(context.Background()))
	t.Cleanup(func() { _ = ap.Stop() })
	return sim
}

func (sim *simulation) addDevice(t *testing.T, cfg DeviceConfig) (*DeviceService, *eventLog) {
	t.Helper()

	dev, err := NewDeviceService(sim.bus, cfg)
	require.NoError(t, err)
	events := &eventLog{}
	dev.OnEvent(events.handle)
	require.NoError(t, dev.Start(context.Background()))
	t.Cleanup(func() { _ = dev.Stop() })
	return dev, events
}

func manualDevice(id string) DeviceConfig {
	cfg := DefaultDeviceConfig(id)
	cfg.UplinkInterval = 0
	return cfg
}

func waitActive(t *testing.T, dev *DeviceService) {
	t.Helper()
	require.Eventually(t, dev.Active, waitFor, tick, "device %s never became active", dev.DeviceID())
	assert.Equal(t, handshake.StateActive, dev.HandshakeState())
}

func TestDeviceService_StartPublishesRegisterThenInit(t *testing.T) {
	bus := &mocks.MockBus{}
	bus.On("Subscribe", mock.Anything).Return(nil)

	var mu sync.Mutex
	var published []wire.Message
	bus.On("Publish", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		mu.Lock()
		defer mu.Unlock()
		published = append(published, args.Get(1).(wire.Message))
	})

	cfg := manualDevice(testDevice)
	cfg.NonceSource = fixedNonce(t, testSNonce)
	dev, err := NewDeviceService(bus, cfg)
	require.NoError(t, err)
	require.NoError(t, dev.Start(context.Background()))
	defer dev.Stop()

	require.Len(t, published, 2)
	assert.Equal(t, &wire.Register{MsgType: wire.MsgRegister, DeviceID: testDevice}, published[0])
	init, ok := published[1].(*wire.HandshakeInit)
	require.True(t, ok)
	assert.Equal(t, testSNonce, init.SNonceHex)
	assert.Equal(t, handshake.StateNonceSent, dev.HandshakeState())

	assert.ErrorIs(t, dev.Send(context.Background(), "too early", ""), ErrNotActive)
	assert.ErrorIs(t, dev.Start(context.Background()), ErrAlreadyStarted)
}

func TestDeviceService_StartFailsWhenPublishFails(t *testing.T) {
	bus := &mocks.MockBus{}
	bus.On("Subscribe", mock.Anything).Return(nil)
	bus.On("Publish", mock.Anything, mock.Anything).Return(transport.ErrBusClosed)

	dev, err := NewDeviceService(bus, manualDevice(testDevice))
	require.NoError(t, err)

	err = dev.Start(context.Background())
	assert.ErrorIs(t, err, transport.ErrBusClosed)
	assert.Equal(t, StateIdle, dev.State())
	assert.ErrorIs(t, dev.Stop(), ErrNotStarted)
	assert.ErrorIs(t, dev.Restart(context.Background()), ErrNotStarted)
}

func TestDeviceService_HandshakeAndSend(t *testing.T) {
	sim := newSimulation(t, nil)
	dev, devEvents := sim.addDevice(t, manualDevice(testDevice))

	waitActive(t, dev)
	assert.Equal(t, []string{testDevice}, sim.ap.ActiveDevices())

	// Both peers derived the same key without sending it.
	records, err := sim.ap.Sessions(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, dev.KeyFingerprint(), records[0].KeyFingerprint)

	require.NoError(t, dev.Send(context.Background(), "hello", ""))
	require.Eventually(t, func() bool { return sim.apEvents.count(EventUplinkReceived) == 1 }, waitFor, tick)

	e, _ := sim.apEvents.find(EventUplinkReceived)
	assert.Equal(t, testDevice, e.DeviceID)
	assert.Equal(t, "hello", string(e.Message.Plaintext))
	assert.Equal(t, uint64(1), e.Message.Seq)
	assert.Equal(t, uint64(1), dev.Seq())

	assert.Eventually(t, func() bool { return devEvents.count(EventSessionActive) == 1 }, waitFor, tick)
	assert.Zero(t, devEvents.count(EventAckError))
}

func TestDeviceService_PeriodicUplinkStopsWithSession(t *testing.T) {
	sim := newSimulation(t, nil)

	cfg := DefaultDeviceConfig(testDevice)
	cfg.UplinkInterval = 10 * time.Millisecond
	cfg.UplinkText = func(id string, _ time.Time) string { return "tick from " + id }
	dev, _ := sim.addDevice(t, cfg)

	waitActive(t, dev)
	require.Eventually(t, func() bool { return sim.ap.Stats().Received >= 3 }, waitFor, tick)

	e, _ := sim.apEvents.find(EventUplinkReceived)
	assert.Equal(t, "tick from "+testDevice, string(e.Message.Plaintext))

	require.NoError(t, dev.Stop())
	assert.Equal(t, handshake.StateIdle, dev.HandshakeState())
	assert.Empty(t, dev.KeyFingerprint())

	sent := dev.Stats().Sent
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, sent, dev.Stats().Sent, "no frame may be emitted after the session is torn down")
}

func TestDeviceService_WrongPSKFails(t *testing.T) {
	sim := newSimulation(t, nil)

	cfg := manualDevice(testDevice)
	cfg.PSK = "not-the-psk"
	dev, devEvents := sim.addDevice(t, cfg)

	require.Eventually(t, func() bool { return dev.HandshakeState() == handshake.StateFailed }, waitFor, tick)
	require.Eventually(t, func() bool { return devEvents.count(EventHandshakeFailed) == 1 }, waitFor, tick)

	assert.ErrorIs(t, dev.Send(context.Background(), "hello", ""), ErrNotActive)
	assert.Empty(t, sim.ap.ActiveDevices())
	assert.Empty(t, dev.KeyFingerprint())

	// No automatic retry.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, devEvents.count(EventHandshakeStarted))
	assert.Equal(t, 1, devEvents.count(EventHandshakeFailed))
}

func TestDeviceService_RestartDerivesNewKey(t *testing.T) {
	sim := newSimulation(t, nil)
	dev, devEvents := sim.addDevice(t, manualDevice(testDevice))

	waitActive(t, dev)
	first := dev.KeyFingerprint()
	require.NoError(t, dev.Send(context.Background(), "one", ""))
	require.NoError(t, dev.Send(context.Background(), "two", ""))
	assert.Equal(t, uint64(2), dev.Seq())

	require.NoError(t, dev.Restart(context.Background()))
	require.Eventually(t, func() bool { return devEvents.count(EventSessionActive) == 2 }, waitFor, tick)
	waitActive(t, dev)

	assert.NotEqual(t, first, dev.KeyFingerprint())
	assert.Equal(t, uint64(0), dev.Seq())

	require.NoError(t, dev.Send(context.Background(), "three", ""))
	assert.Equal(t, uint64(1), dev.Seq())
	require.Eventually(t, func() bool { return sim.ap.Stats().Received == 3 }, waitFor, tick)
	assert.Zero(t, sim.ap.Stats().Rejected)
}

func TestDeviceService_SendRequestFromAP(t *testing.T) {
	sim := newSimulation(t, nil)
	dev, _ := sim.addDevice(t, manualDevice(testDevice))
	waitActive(t, dev)

	require.NoError(t, sim.ap.SendDemo(context.Background(), testDevice, "ping", "Device2"))
	require.NoError(t, sim.ap.SendDemo(context.Background(), testDevice, "", ""))

	require.Eventually(t, func() bool { return sim.apEvents.count(EventUplinkReceived) == 2 }, waitFor, tick)

	var texts, targets []string
	for _, e := range sim.apEvents.all(EventUplinkReceived) {
		texts = append(texts, string(e.Message.Plaintext))
		targets = append(targets, e.Message.TargetID)
	}
	assert.ElementsMatch(t, []string{"ping", "hi from " + testDevice}, texts)
	assert.ElementsMatch(t, []string{"Device2", ""}, targets)
}

func TestDeviceService_DemoFramesNeedAPConsent(t *testing.T) {
	t.Run("rejected", func(t *testing.T) {
		sim := newSimulation(t, nil)
		cfg := manualDevice(testDevice)
		cfg.DemoMode = true
		dev, devEvents := sim.addDevice(t, cfg)
		waitActive(t, dev)

		require.NoError(t, dev.Send(context.Background(), "hello", ""))
		require.Eventually(t, func() bool { return devEvents.count(EventAckError) == 1 }, waitFor, tick)

		e, _ := devEvents.find(EventAckError)
		assert.Equal(t, uint64(1), e.Seq)
		assert.Error(t, e.Error)
		assert.Equal(t, uint64(1), dev.Stats().Nacked)
	})

	t.Run("accepted", func(t *testing.T) {
		sim := newSimulation(t, func(c *APConfig) { c.AllowDemo = true })
		cfg := manualDevice(testDevice)
		cfg.DemoMode = true
		dev, _ := sim.addDevice(t, cfg)
		waitActive(t, dev)

		require.NoError(t, dev.Send(context.Background(), "hello", ""))
		require.Eventually(t, func() bool { return sim.apEvents.count(EventUplinkReceived) == 1 }, waitFor, tick)

		e, _ := sim.apEvents.find(EventUplinkReceived)
		assert.True(t, e.Message.Demo)
		assert.Equal(t, "hello", string(e.Message.Plaintext))
	})
}

func TestDeviceService_ConcurrentDevicesAreIsolated(t *testing.T) {
	sim := newSimulation(t, nil)

	ids := []string{"Device1", "Device2", "Device3", "Device4"}
	devs := make([]*DeviceService, 0, len(ids))
	for _, id := range ids {
		dev, _ := sim.addDevice(t, manualDevice(id))
		devs = append(devs, dev)
	}

	seen := make(map[string]bool)
	for _, dev := range devs {
		waitActive(t, dev)
		fp := dev.KeyFingerprint()
		assert.False(t, seen[fp], "session keys must differ per device")
		seen[fp] = true
		require.NoError(t, dev.Send(context.Background(), "from "+dev.DeviceID(), ""))
	}

	require.Eventually(t, func() bool { return sim.ap.Stats().Received == uint64(len(ids)) }, waitFor, tick)
	assert.Equal(t, ids, sim.ap.ActiveDevices())
	assert.Zero(t, sim.ap.Stats().Rejected)
}

func TestDeviceService_StoppedBusRejectsSend(t *testing.T) {
	sim := newSimulation(t, nil)
	dev, _ := sim.addDevice(t, manualDevice(testDevice))
	waitActive(t, dev)

	require.NoError(t, sim.bus.Close())
	err := dev.Send(context.Background(), "hello", "")
	assert.True(t, errors.Is(err, transport.ErrBusClosed))
}

// heldUplinkBus holds the first uplink frame inside Publish until released.
type heldUplinkBus struct {
	transport.Bus

	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (b *heldUplinkBus) Publish(ctx context.Context, msg wire.Message) error {
	if _, ok := msg.(*wire.UplinkFrame); ok {
		b.once.Do(func() {
			close(b.entered)
			<-b.release
		})
	}
	return b.Bus.Publish(ctx, msg)
}

func TestDeviceService_KeyClearWaitsForInFlightFrame(t *testing.T) {
	sim := newSimulation(t, nil)
	bus := &heldUplinkBus{Bus: sim.bus, entered: make(chan struct{}), release: make(chan struct{})}

	dev, err := NewDeviceService(bus, manualDevice(testDevice))
	require.NoError(t, err)
	require.NoError(t, dev.Start(context.Background()))
	t.Cleanup(func() { _ = dev.Stop() })
	waitActive(t, dev)

	sendErr := make(chan error, 1)
	go func() { sendErr <- dev.Send(context.Background(), "in flight", "") }()
	select {
	case <-bus.entered:
	case <-time.After(waitFor):
		t.Fatal("uplink frame never reached the bus")
	}

	restarted := make(chan error, 1)
	go func() { restarted <- dev.Restart(context.Background()) }()

	select {
	case <-restarted:
		t.Fatal("restart cleared the key while a sealed frame was unpublished")
	case <-time.After(50 * time.Millisecond):
	}

	close(bus.release)
	require.NoError(t, <-sendErr)
	select {
	case err := <-restarted:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("restart did not complete after the frame was published")
	}
	require.Eventually(t, func() bool { return sim.ap.Stats().Received == 1 }, waitFor, tick)
}
