package handshake

import (
	"sort"
	"sync"

	"github.com/wifisim/wifisim-go/pkg/wire"
	"github.com/wifisim/wifisim-go/pkg/wpacrypto"
)

// Table holds one Authenticator per device identity. Instances are created
// lazily on first contact and never share state.
type Table struct {
	mu     sync.RWMutex
	config Config
	byID   map[string]*Authenticator

	onTransition TransitionFunc
}

// NewTable creates an empty table using config for every instance.
func NewTable(config Config) *Table {
	return &Table{
		config: config,
		byID:   make(map[string]*Authenticator),
	}
}

// OnTransition registers fn for state changes of all current and future instances.
func (t *Table) OnTransition(fn TransitionFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.onTransition = fn
	for _, a := range t.byID {
		a.OnTransition(fn)
	}
}

// Get returns the instance for deviceID, creating it if needed.
func (t *Table) Get(deviceID string) *Authenticator {
	t.mu.RLock()
	a, ok := t.byID[deviceID]
	t.mu.RUnlock()
	if ok {
		return a
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if a, ok := t.byID[deviceID]; ok {
		return a
	}
	a = NewAuthenticator(deviceID, t.config)
	if t.onTransition != nil {
		a.OnTransition(t.onTransition)
	}
	t.byID[deviceID] = a
	return a
}

// Lookup returns the instance for deviceID without creating one.
func (t *Table) Lookup(deviceID string) (*Authenticator, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	a, ok := t.byID[deviceID]
	return a, ok
}

// Remove drops the instance for deviceID and its key.
func (t *Table) Remove(deviceID string) {
	t.mu.Lock()
	a, ok := t.byID[deviceID]
	delete(t.byID, deviceID)
	t.mu.Unlock()

	if ok {
		a.Reset()
	}
}

// Handle routes msg to the instance for its identity.
func (t *Table) Handle(msg wire.Message) (wire.Message, error) {
	if msg == nil || msg.Identity() == "" {
		return nil, nil
	}
	return t.Get(msg.Identity()).Handle(msg)
}

// SessionKey returns the session key for deviceID if its instance is ACTIVE.
func (t *Table) SessionKey(deviceID string) (wpacrypto.SessionKey, bool) {
	a, ok := t.Lookup(deviceID)
	if !ok {
		return wpacrypto.SessionKey{}, false
	}
	return a.SessionKey()
}

// Snapshot returns the state of every known identity, sorted by identity.
func (t *Table) Snapshot() []Status {
	t.mu.RLock()
	list := make([]*Authenticator, 0, len(t.byID))
	for _, a := range t.byID {
		list = append(list, a)
	}
	t.mu.RUnlock()

	out := make([]Status, 0, len(list))
	for _, a := range list {
		out = append(out, Status{DeviceID: a.DeviceID(), State: a.State()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// Active returns the identities whose sessions are ACTIVE.
func (t *Table) Active() []string {
	var ids []string
	for _, s := range t.Snapshot() {
		if s.State == StateActive {
			ids = append(ids, s.DeviceID)
		}
	}
	return ids
}

// Status is a point-in-time view of one instance.
type Status struct {
	DeviceID string
	State    State
}
