package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wifisim/wifisim-go/pkg/wpacrypto"
)

const (
	testPSK    = "correcthorsebattery"
	testBSSID  = "AP1"
	testDevice = "Device1"

	testSNonce = "00112233445566778899aabbccddeeff"
	testANonce = "aabbccddeeff00112233445566778899"

	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func mustNonce(t *testing.T, s string) wpacrypto.Nonce {
	t.Helper()
	n, err := wpacrypto.ParseNonce(s)
	require.NoError(t, err)
	return n
}

func fixedNonce(t *testing.T, s string) func() (wpacrypto.Nonce, error) {
	n := mustNonce(t, s)
	return func() (wpacrypto.Nonce, error) { return n, nil }
}

// eventLog collects service events, which arrive on their own goroutines.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) handle(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) count(typ EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func (l *eventLog) find(typ EventType) (Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e.Type == typ {
			return e, true
		}
	}
	return Event{}, false
}

func (l *eventLog) all(typ EventType) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
