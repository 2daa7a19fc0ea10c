package onewire

import "errors"

// FakeBus is a test double that returns scripted probe values.
type FakeBus struct {
	Bus  BusID
	GPIO int

	// Devices is returned by Enumerate, in order.
	Devices []Address

	// Temps holds scripted readings per probe. Each ReadTemperature call
	// consumes the next value; the last value repeats once exhausted.
	Temps map[Address][]float64

	// EnumerateError, if set, is returned by Enumerate.
	EnumerateError error

	// ConvertError, if set, is returned by StartConversion.
	ConvertError error

	// ReadErrors holds per-probe errors returned by ReadTemperature.
	ReadErrors map[Address]error

	// Resolutions records SetResolution calls.
	Resolutions map[Address]Resolution

	// Conversions counts StartConversion calls.
	Conversions int

	// Reads records the address of every ReadTemperature call, in order.
	Reads []Address

	index map[Address]int
}

// NewFakeBus creates a FakeBus with the given devices.
func NewFakeBus(id BusID, pin int, devices ...Address) *FakeBus {
	return &FakeBus{
		Bus:         id,
		GPIO:        pin,
		Devices:     devices,
		Temps:       make(map[Address][]float64),
		ReadErrors:  make(map[Address]error),
		Resolutions: make(map[Address]Resolution),
		index:       make(map[Address]int),
	}
}

// ID returns the configured bus id.
func (f *FakeBus) ID() BusID { return f.Bus }

// Pin returns the configured pin.
func (f *FakeBus) Pin() int { return f.GPIO }

// Enumerate returns a copy of Devices.
func (f *FakeBus) Enumerate() ([]Address, error) {
	if f.EnumerateError != nil {
		return nil, f.EnumerateError
	}
	out := make([]Address, len(f.Devices))
	copy(out, f.Devices)
	return out, nil
}

// SetResolution records the requested resolution.
func (f *FakeBus) SetResolution(addr Address, res Resolution) error {
	f.Resolutions[addr] = res
	return nil
}

// StartConversion counts the call.
func (f *FakeBus) StartConversion() error {
	if f.ConvertError != nil {
		return f.ConvertError
	}
	f.Conversions++
	return nil
}

// ReadTemperature returns the next scripted value for addr.
func (f *FakeBus) ReadTemperature(addr Address) (float64, error) {
	f.Reads = append(f.Reads, addr)
	if err := f.ReadErrors[addr]; err != nil {
		return 0, err
	}
	temps := f.Temps[addr]
	if len(temps) == 0 {
		return 0, errors.New("no temperature scripted")
	}
	if f.index == nil {
		f.index = make(map[Address]int)
	}
	i := f.index[addr]
	v := temps[i]
	if i < len(temps)-1 {
		f.index[addr] = i + 1
	}
	return v, nil
}

// Set scripts a fixed reading sequence for addr.
func (f *FakeBus) Set(addr Address, temps ...float64) {
	f.Temps[addr] = temps
	delete(f.index, addr)
}
