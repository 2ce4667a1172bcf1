package commands

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/wifisim/wifisim-go/pkg/log"
	"github.com/wifisim/wifisim-go/pkg/wire"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// sampleEvents returns a small AP-side capture: a handshake, one uplink frame
// and its ack, and a rejected frame from an unknown device.
func sampleEvents() []log.Event {
	events := []log.Event{
		log.NewMessageEvent(log.RoleAP, log.DirectionIn, "conn-aaaa1111", &wire.HandshakeInit{DeviceID: "Device1", SNonceHex: "00ff"}),
		log.NewStateEvent(log.RoleAP, "Device1", log.StateEntityHandshake, "IDLE", "NONCE_SENT", ""),
		log.NewMessageEvent(log.RoleAP, log.DirectionIn, "conn-aaaa1111", &wire.UplinkFrame{From: "Device1", Seq: 1, AAD: "Device1"}),
		log.NewMessageEvent(log.RoleAP, log.DirectionOut, "conn-aaaa1111", &wire.Ack{DeviceID: "Device1", Seq: 1, OK: true}),
		log.NewErrorEvent(log.RoleAP, log.LayerService, "Device9", errors.New("no session"), "uplink"),
	}
	for i := range events {
		events[i].Timestamp = baseTime.Add(time.Duration(i) * time.Second)
	}
	return events
}

func writeCapture(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture"+log.FileExt)
	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return path
}
