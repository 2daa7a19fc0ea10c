// Package sensor resolves probe identity at boot and applies calibration.
// Identity is assigned by enumeration position, so the name of a probe is
// only stable while the wiring order is kept the same as at calibration time.
package sensor

import (
	"errors"
	"fmt"
	"log"

	"github.com/sweeney/temp-logger/internal/onewire"
)

// Capacity of the registry arena.
const (
	MaxSensors = 16
	MaxPerBus  = 8
)

// ErrNoSensors is returned by Discover when neither bus reports a probe.
var ErrNoSensors = errors.New("sensor: no probes found on any bus")

// Index refers to an identity by its position in the registry.
type Index int

// Identity is one physical probe found at boot. Replacing a probe creates a
// new identity; the old address is not remembered.
type Identity struct {
	Address     onewire.Address
	Bus         onewire.BusID
	Pin         int
	LogicalName string // position on bus, e.g. "A1"
	Name        string // domain-facing name from the name table

	LastValue  float64
	LastReadOK bool
}

// Registry is a fixed-capacity arena of identities with an explicit count.
// Only the acquisition scheduler mutates it after discovery.
type Registry struct {
	slots      [MaxSensors]Identity
	count      int
	buses      map[onewire.BusID]onewire.Bus
	names      Names
	resolution onewire.Resolution
}

// NewRegistry creates an empty registry.
func NewRegistry(names Names, res onewire.Resolution) *Registry {
	if !res.Valid() {
		res = onewire.Resolution12
	}
	return &Registry{
		buses:      make(map[onewire.BusID]onewire.Bus),
		names:      names,
		resolution: res,
	}
}

// Discover enumerates the buses in the order given (bus A then bus B) and
// assigns logical names by enumeration order. It fails soft: a bus that
// errors or has no probes is reported and skipped. ErrNoSensors is returned
// only when no bus produced a probe; the registry stays usable (empty).
func (r *Registry) Discover(buses ...onewire.Bus) ([]Identity, error) {
	r.count = 0

	for _, bus := range buses {
		if bus == nil {
			continue
		}
		r.buses[bus.ID()] = bus

		addrs, err := bus.Enumerate()
		if err != nil {
			log.Printf("sensor: enumerate bus %s: %v", bus.ID(), err)
			continue
		}
		if len(addrs) == 0 {
			log.Printf("sensor: bus %s (pin %d): no probes found", bus.ID(), bus.Pin())
			continue
		}
		if len(addrs) > MaxPerBus {
			log.Printf("sensor: bus %s: %d probes found, keeping first %d", bus.ID(), len(addrs), MaxPerBus)
			addrs = addrs[:MaxPerBus]
		}

		for i, addr := range addrs {
			if r.count == MaxSensors {
				log.Printf("sensor: registry full (%d), ignoring %s", MaxSensors, addr)
				break
			}
			logical := fmt.Sprintf("%s%d", bus.ID(), i+1)
			if err := bus.SetResolution(addr, r.resolution); err != nil {
				// The probe keeps its previous resolution.
				log.Printf("sensor: %s (%s): %v", logical, addr, err)
			}
			r.slots[r.count] = Identity{
				Address:     addr,
				Bus:         bus.ID(),
				Pin:         bus.Pin(),
				LogicalName: logical,
				Name:        r.names.Lookup(logical),
			}
			r.count++
		}
	}

	if r.count == 0 {
		return nil, ErrNoSensors
	}
	return r.Identities(), nil
}

// Len returns the number of registered probes.
func (r *Registry) Len() int {
	return r.count
}

// Get returns the identity at i.
func (r *Registry) Get(i Index) (Identity, bool) {
	if i < 0 || int(i) >= r.count {
		return Identity{}, false
	}
	return r.slots[i], true
}

// Identities returns a copy of the registered identities in index order.
func (r *Registry) Identities() []Identity {
	out := make([]Identity, r.count)
	copy(out, r.slots[:r.count])
	return out
}

// Bus returns the bus a probe was discovered on.
func (r *Registry) Bus(id onewire.BusID) onewire.Bus {
	return r.buses[id]
}

// Buses returns the distinct buses that have at least one registered probe,
// in discovery order.
func (r *Registry) Buses() []onewire.Bus {
	var out []onewire.Bus
	seen := make(map[onewire.BusID]bool)
	for _, id := range r.slots[:r.count] {
		if !seen[id.Bus] {
			seen[id.Bus] = true
			out = append(out, r.buses[id.Bus])
		}
	}
	return out
}

// Resolution returns the resolution probes were configured with.
func (r *Registry) Resolution() onewire.Resolution {
	return r.resolution
}

// Observe records the last-known state of a probe for status reporting.
func (r *Registry) Observe(i Index, value float64, ok bool) {
	if i < 0 || int(i) >= r.count {
		return
	}
	r.slots[i].LastReadOK = ok
	if ok {
		r.slots[i].LastValue = value
	}
}
