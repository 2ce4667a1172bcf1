package log

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wifisim/wifisim-go/pkg/wire"
)

type captureLogger struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureLogger) Log(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func TestNewMessageEvent(t *testing.T) {
	ev := NewMessageEvent(RoleAP, DirectionIn, "conn-1", &wire.Ack{DeviceID: "Device1", Seq: 7, OK: false, Error: "bad tag"})

	assert.Equal(t, LayerWire, ev.Layer)
	assert.Equal(t, CategoryMessage, ev.Category)
	assert.Equal(t, "Device1", ev.Identity)
	require.NotNil(t, ev.Message)
	assert.Equal(t, wire.MsgAck, ev.Message.MsgType)
	assert.Equal(t, "ap:ack", ev.Message.Name)
	assert.Equal(t, uint64(7), ev.Message.Seq)
	require.NotNil(t, ev.Message.OK)
	assert.False(t, *ev.Message.OK)
}

func TestFileLoggerAndReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture"+FileExt)

	fl, err := NewFileLogger(path)
	require.NoError(t, err)

	fl.Log(NewStateEvent(RoleDevice, "Device1", StateEntityHandshake, "IDLE", "NONCE_SENT", "handshake started"))
	fl.Log(NewMessageEvent(RoleDevice, DirectionOut, "c1", &wire.HandshakeInit{DeviceID: "Device1", SNonceHex: "00"}))
	fl.Log(NewErrorEvent(RoleAP, LayerService, "Device2", errors.New("mic mismatch"), "handshake"))
	assert.Equal(t, 3, fl.Written())
	require.NoError(t, fl.Close())
	require.NoError(t, fl.Close())

	// Logging after close is ignored.
	fl.Log(Event{})
	assert.Equal(t, 3, fl.Written())

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	first, err := r.Next()
	require.NoError(t, err)
	require.NotNil(t, first.StateChange)
	assert.Equal(t, StateEntityHandshake, first.StateChange.Entity)
	assert.Equal(t, "NONCE_SENT", first.StateChange.NewState)
	assert.Equal(t, RoleDevice, first.LocalRole)

	second, err := r.Next()
	require.NoError(t, err)
	require.NotNil(t, second.Message)
	assert.Equal(t, "handshake:init", second.Message.Name)
	assert.Equal(t, "c1", second.ConnectionID)

	third, err := r.Next()
	require.NoError(t, err)
	require.NotNil(t, third.Error)
	assert.Equal(t, "mic mismatch", third.Error.Message)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestFilteredReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture"+FileExt)
	fl, err := NewFileLogger(path)
	require.NoError(t, err)

	fl.Log(NewMessageEvent(RoleAP, DirectionIn, "c1", &wire.UplinkFrame{From: "Device1", Seq: 1}))
	fl.Log(NewMessageEvent(RoleAP, DirectionIn, "c2", &wire.UplinkFrame{From: "Device2", Seq: 1}))
	fl.Log(NewMessageEvent(RoleAP, DirectionOut, "c1", &wire.Ack{DeviceID: "Device1", Seq: 1, OK: true}))
	require.NoError(t, fl.Close())

	uplink := wire.MsgUplinkFrame
	r, err := NewFilteredReader(path, Filter{MsgType: &uplink})
	require.NoError(t, err)
	stats, err := Collect(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, 2, stats.Total)

	r, err = NewFilteredReader(path, Filter{Identity: "Device1"})
	require.NoError(t, err)
	stats, err = Collect(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByMessage["uplink"])
	assert.Equal(t, 1, stats.ByMessage["ap:ack"])
}

func TestFilterMatch(t *testing.T) {
	now := time.Now()
	ev := Event{Timestamp: now, Identity: "Device1", Layer: LayerService, Category: CategoryState, LocalRole: RoleAP}

	service := LayerService
	wireLayer := LayerWire
	ap := RoleAP
	later := now.Add(time.Second)
	earlier := now.Add(-time.Second)

	assert.True(t, Filter{}.Match(ev))
	assert.True(t, Filter{Layer: &service, Role: &ap}.Match(ev))
	assert.False(t, Filter{Layer: &wireLayer}.Match(ev))
	assert.False(t, Filter{Identity: "Device2"}.Match(ev))
	assert.True(t, Filter{Since: &earlier, Until: &later}.Match(ev))
	assert.False(t, Filter{Since: &later}.Match(ev))
	assert.False(t, Filter{Until: &now}.Match(ev))

	msgType := wire.MsgAck
	assert.False(t, Filter{MsgType: &msgType}.Match(ev))
}

func TestCollect(t *testing.T) {
	var buf bytes.Buffer
	fl := NewStreamLogger(nopWriteCloser{&buf})
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"Device1", "Device1", "Device2"} {
		ev := NewStateEvent(RoleAP, id, StateEntityHandshake, "IDLE", "AWAITING_MIC", "")
		ev.Timestamp = t0.Add(time.Duration(i) * time.Second)
		fl.Log(ev)
	}
	fl.Log(NewErrorEvent(RoleAP, LayerWire, "", errors.New("decode"), ""))

	stats, err := Collect(NewStreamReader(io.NopCloser(&buf), Filter{}))
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 2, stats.Identities["Device1"])
	assert.Equal(t, 3, stats.ByCategory[CategoryState])
	assert.True(t, stats.First.Equal(t0))
}

func TestMultiLogger(t *testing.T) {
	a, b := &captureLogger{}, &captureLogger{}
	m := NewMultiLogger(a, nil, b)

	m.Log(Event{Identity: "Device1"})
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	adapter := NewSlogAdapter(logger)

	adapter.Log(NewStateEvent(RoleDevice, "Device1", StateEntityHandshake, "AWAITING_ANONCE", "FAILED", "access point rejected handshake"))
	out := buf.String()
	assert.Contains(t, out, "level=DEBUG")
	assert.Contains(t, out, "identity=Device1")
	assert.Contains(t, out, "to=FAILED")

	buf.Reset()
	adapter.Log(NewErrorEvent(RoleAP, LayerService, "Device1", errors.New("boom"), "uplink"))
	assert.True(t, strings.Contains(buf.String(), "level=WARN"))
	assert.Contains(t, buf.String(), "error=boom")
}

func TestOrNoop(t *testing.T) {
	assert.Equal(t, NoopLogger{}, OrNoop(nil))
	c := &captureLogger{}
	assert.Same(t, c, OrNoop(c))
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "LOCAL", DirectionLocal.String())
	assert.Equal(t, "HUB", RoleHub.String())
	assert.Equal(t, "HANDSHAKE", StateEntityHandshake.String())
	assert.Equal(t, "UNKNOWN", Category(42).String())
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
