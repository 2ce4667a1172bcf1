package topology

import (
	"errors"
	"strings"
	"sync"
)

// ErrInvalidID is returned for empty identities.
var ErrInvalidID = errors.New("identity required")

// AP describes an access point.
type AP struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Rogue bool   `json:"rogue" yaml:"rogue"`
}

// Device describes a station.
type Device struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Topology is a point-in-time layout.
type Topology struct {
	APs     []AP     `json:"aps" yaml:"aps"`
	Devices []Device `json:"devices" yaml:"devices"`
}

// Default returns one access point and two devices.
func Default() Topology {
	return Topology{
		APs: []AP{{ID: "AP1", Name: "AP1"}},
		Devices: []Device{
			{ID: "Device1", Name: "Device1"},
			{ID: "Device2", Name: "Device2"},
		},
	}
}

func (t Topology) clone() Topology {
	return Topology{
		APs:     append([]AP{}, t.APs...),
		Devices: append([]Device{}, t.Devices...),
	}
}

// ChangeFunc observes topology updates. It receives a private copy.
type ChangeFunc func(Topology)

// Registry is a concurrency-safe topology.
type Registry struct {
	mu        sync.RWMutex
	topo      Topology
	listeners []ChangeFunc
}

// NewRegistry creates a registry seeded with seed.
func NewRegistry(seed Topology) *Registry {
	return &Registry{topo: seed.clone()}
}

// OnChange registers fn for every change.
func (r *Registry) OnChange(fn ChangeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Snapshot returns a copy of the current layout.
func (r *Registry) Snapshot() Topology {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.topo.clone()
}

// HasDevice reports whether id is registered.
func (r *Registry) HasDevice(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.indexOf(id) >= 0
}

// AddDevice registers id with its own name. Adding a known id is a no-op
// that reports added == false.
func (r *Registry) AddDevice(id string) (added bool, err error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, ErrInvalidID
	}

	r.mu.Lock()
	if r.indexOf(id) >= 0 {
		r.mu.Unlock()
		return false, nil
	}
	r.topo.Devices = append(r.topo.Devices, Device{ID: id, Name: id})
	snap, listeners := r.topo.clone(), append([]ChangeFunc{}, r.listeners...)
	r.mu.Unlock()

	notify(listeners, snap)
	return true, nil
}

// RemoveDevice drops id. It reports whether it was present.
func (r *Registry) RemoveDevice(id string) bool {
	r.mu.Lock()
	i := r.indexOf(id)
	if i < 0 {
		r.mu.Unlock()
		return false
	}
	r.topo.Devices = append(r.topo.Devices[:i], r.topo.Devices[i+1:]...)
	snap, listeners := r.topo.clone(), append([]ChangeFunc{}, r.listeners...)
	r.mu.Unlock()

	notify(listeners, snap)
	return true
}

// indexOf returns the device index or -1. Caller holds mu.
func (r *Registry) indexOf(id string) int {
	for i, d := range r.topo.Devices {
		if d.ID == id {
			return i
		}
	}
	return -1
}

func notify(listeners []ChangeFunc, snap Topology) {
	for _, fn := range listeners {
		fn(snap.clone())
	}
}
