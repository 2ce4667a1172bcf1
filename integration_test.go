package wifisim_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wifisim/wifisim-go/pkg/handshake"
	"github.com/wifisim/wifisim-go/pkg/log"
	"github.com/wifisim/wifisim-go/pkg/service"
	"github.com/wifisim/wifisim-go/pkg/sessionstore"
	"github.com/wifisim/wifisim-go/pkg/topology"
	"github.com/wifisim/wifisim-go/pkg/transport"
	"github.com/wifisim/wifisim-go/pkg/wpacrypto"
)

const (
	waitFor = 5 * time.Second
	tick    = 10 * time.Millisecond
)

// received collects plaintexts opened by the AP, keyed by sender.
type received struct {
	mu   sync.Mutex
	msgs map[string][]string
	fail []service.Event
}

func newReceived() *received {
	return &received{msgs: make(map[string][]string)}
}

func (r *received) handle(e service.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch e.Type {
	case service.EventUplinkReceived:
		r.msgs[e.Message.From] = append(r.msgs[e.Message.From], string(e.Message.Plaintext))
	case service.EventUplinkRejected, service.EventHandshakeFailed:
		r.fail = append(r.fail, e)
	}
}

func (r *received) from(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs[id]...)
}

func (r *received) failures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fail)
}

func startAP(t *testing.T, bus transport.Bus, cfg service.APConfig) (*service.APService, *received) {
	t.Helper()
	ap, err := service.NewAPService(bus, cfg)
	require.NoError(t, err)
	got := newReceived()
	ap.OnEvent(got.handle)
	require.NoError(t, ap.Start(context.Background()))
	t.Cleanup(func() { _ = ap.Stop() })
	return ap, got
}

func startDevice(t *testing.T, bus transport.Bus, cfg service.DeviceConfig) *service.DeviceService {
	t.Helper()
	dev, err := service.NewDeviceService(bus, cfg)
	require.NoError(t, err)
	require.NoError(t, dev.Start(context.Background()))
	t.Cleanup(func() { _ = dev.Stop() })
	return dev
}

func deviceConfig(id string) service.DeviceConfig {
	cfg := service.DefaultDeviceConfig(id)
	cfg.UplinkInterval = 0
	return cfg
}

func TestE2E_MemoryBusHandshakeAndUplink(t *testing.T) {
	bus := transport.NewMemoryBus()
	defer bus.Close()

	registry := topology.NewRegistry(topology.Topology{})
	apCfg := service.DefaultAPConfig()
	apCfg.Topology = registry
	ap, got := startAP(t, bus, apCfg)

	dev := startDevice(t, bus, deviceConfig("Device1"))
	require.Eventually(t, dev.Active, waitFor, tick)
	require.Eventually(t, func() bool { return len(ap.ActiveDevices()) == 1 }, waitFor, tick)
	assert.True(t, registry.HasDevice("Device1"))

	require.NoError(t, dev.Send(context.Background(), "hello", ""))
	require.Eventually(t, func() bool { return len(got.from("Device1")) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"hello"}, got.from("Device1"))
	assert.Equal(t, uint64(1), dev.Seq())
	assert.Equal(t, uint64(1), ap.Stats().Received)

	sessions, err := ap.Sessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "Device1", sessions[0].DeviceID)
	assert.Equal(t, dev.KeyFingerprint(), sessions[0].KeyFingerprint)
}

func TestE2E_WrongPSKNeverDelivers(t *testing.T) {
	bus := transport.NewMemoryBus()
	defer bus.Close()

	ap, got := startAP(t, bus, service.DefaultAPConfig())

	cfg := deviceConfig("Mallory")
	cfg.PSK = "not-the-psk"
	dev := startDevice(t, bus, cfg)

	require.Eventually(t, func() bool { return dev.HandshakeState() == handshake.StateFailed }, waitFor, tick)
	assert.False(t, dev.Active())
	assert.Empty(t, ap.ActiveDevices())
	assert.ErrorIs(t, dev.Send(context.Background(), "hello", ""), service.ErrNotActive)
	assert.Empty(t, got.from("Mallory"))
}

func TestE2E_TCPHubWithTwoDevices(t *testing.T) {
	capture := filepath.Join(t.TempDir(), "ap"+log.FileExt)
	protoLog, err := log.NewFileLogger(capture)
	require.NoError(t, err)

	hub := transport.NewServer(transport.ServerConfig{Address: "127.0.0.1:0", Logger: protoLog})
	require.NoError(t, hub.Start(context.Background()))
	defer hub.Close()

	apCfg := service.DefaultAPConfig()
	apCfg.Suite = wpacrypto.SuiteChaCha20Poly1305
	apCfg.Sessions = sessionstore.NewMemoryStore()
	apCfg.ProtocolLogger = protoLog
	ap, got := startAP(t, hub, apCfg)

	devices := make(map[string]*service.DeviceService)
	for _, id := range []string{"Device1", "Device2"} {
		client, err := transport.Dial(context.Background(), hub.Addr().String(), transport.ClientConfig{Role: log.RoleDevice})
		require.NoError(t, err)
		t.Cleanup(func() { _ = client.Close() })

		cfg := deviceConfig(id)
		cfg.Suite = wpacrypto.SuiteChaCha20Poly1305
		devices[id] = startDevice(t, client, cfg)
	}

	for id, dev := range devices {
		require.Eventually(t, dev.Active, waitFor, tick, "device %s never became active", id)
	}
	assert.NotEqual(t, devices["Device1"].KeyFingerprint(), devices["Device2"].KeyFingerprint())

	require.NoError(t, devices["Device1"].Send(context.Background(), "one", ""))
	require.NoError(t, devices["Device2"].Send(context.Background(), "two", "Device1"))
	require.Eventually(t, func() bool {
		return len(got.from("Device1")) == 1 && len(got.from("Device2")) == 1
	}, waitFor, tick)
	assert.Equal(t, []string{"one"}, got.from("Device1"))
	assert.Equal(t, []string{"two"}, got.from("Device2"))
	assert.Zero(t, got.failures())

	// AP-triggered send travels back through the hub.
	require.NoError(t, ap.SendDemo(context.Background(), "Device1", "ping", ""))
	require.Eventually(t, func() bool { return len(got.from("Device1")) == 2 }, waitFor, tick)

	require.NoError(t, ap.Stop())
	require.NoError(t, protoLog.Close())

	reader, err := log.NewReader(capture)
	require.NoError(t, err)
	defer reader.Close()
	stats, err := log.Collect(reader)
	require.NoError(t, err)
	assert.Positive(t, stats.ByCategory[log.CategoryState])
	assert.Positive(t, stats.ByLayer[log.LayerTransport])
}
