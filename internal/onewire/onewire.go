// Package onewire provides access to 1-Wire temperature probe buses with
// hardware abstraction. The sysfs implementation drives the Linux w1 kernel
// master; the fake implementation allows testing without hardware.
package onewire

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// BusID identifies one of the physical probe buses.
type BusID string

const (
	BusA BusID = "A"
	BusB BusID = "B"
)

// Temperatures reported by DS18B20-class probes that never describe a real
// measurement.
const (
	// DisconnectedC is returned by drivers when the probe did not answer.
	DisconnectedC = -127.0
	// PowerOnResetC is the scratchpad value before the first conversion.
	PowerOnResetC = 85.0
)

// Address is the 8-byte ROM code burned into a probe: family code, 48-bit
// serial (least significant byte first) and CRC.
type Address [8]byte

// String renders the ROM code as 16 upper-case hex digits in wire order.
func (a Address) String() string {
	return strings.ToUpper(hex.EncodeToString(a[:]))
}

// Family returns the family code byte (0x28 for DS18B20).
func (a Address) Family() byte {
	return a[0]
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Valid reports whether the CRC byte matches the first seven bytes.
func (a Address) Valid() bool {
	return crc8(a[:7]) == a[7]
}

// SysfsName returns the Linux w1 slave directory name, e.g. "28-0316a2799c0b".
// The kernel prints the serial most significant byte first.
func (a Address) SysfsName() string {
	var serial [6]byte
	for i := 0; i < 6; i++ {
		serial[i] = a[6-i]
	}
	return fmt.Sprintf("%02x-%s", a[0], hex.EncodeToString(serial[:]))
}

// ParseAddress accepts either the 16-hex-digit ROM form or the sysfs slave
// name form. The CRC byte is computed for the sysfs form.
func ParseAddress(s string) (Address, error) {
	var a Address
	s = strings.TrimSpace(s)

	if fam, serial, ok := strings.Cut(s, "-"); ok {
		f, err := hex.DecodeString(fam)
		if err != nil || len(f) != 1 {
			return a, fmt.Errorf("parse address %q: bad family code", s)
		}
		b, err := hex.DecodeString(serial)
		if err != nil || len(b) != 6 {
			return a, fmt.Errorf("parse address %q: bad serial", s)
		}
		a[0] = f[0]
		for i := 0; i < 6; i++ {
			a[1+i] = b[5-i]
		}
		a[7] = crc8(a[:7])
		return a, nil
	}

	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 8 {
		return a, fmt.Errorf("parse address %q: want 16 hex digits", s)
	}
	copy(a[:], b)
	return a, nil
}

// crc8 is the Dallas/Maxim 1-Wire CRC (polynomial x^8+x^5+x^4+1, reflected).
func crc8(data []byte) byte {
	var crc byte
	for _, b := range data {
		for i := 0; i < 8; i++ {
			mix := (crc ^ b) & 0x01
			crc >>= 1
			if mix != 0 {
				crc ^= 0x8C
			}
			b >>= 1
		}
	}
	return crc
}

// Resolution is the probe conversion resolution in bits (9..12).
type Resolution int

const (
	Resolution9  Resolution = 9
	Resolution10 Resolution = 10
	Resolution11 Resolution = 11
	Resolution12 Resolution = 12
)

// Valid reports whether r is a resolution the probes support.
func (r Resolution) Valid() bool {
	return r >= Resolution9 && r <= Resolution12
}

// ConversionTime returns the worst-case conversion time for the resolution.
// Each extra bit doubles the time, from 93.75ms at 9 bits to 750ms at 12.
func (r Resolution) ConversionTime() time.Duration {
	if !r.Valid() {
		return Resolution12.ConversionTime()
	}
	return 93750 * time.Microsecond << uint(r-Resolution9)
}

// Bus is one physical 1-Wire line with its probes.
type Bus interface {
	// ID returns the logical bus identifier.
	ID() BusID

	// Pin returns the physical pin the bus master is wired to.
	Pin() int

	// Enumerate returns the addresses of all probes on the bus, in the
	// order the driver reports them. The order is not stable across
	// physical reconnection.
	Enumerate() ([]Address, error)

	// SetResolution configures a single probe.
	SetResolution(addr Address, res Resolution) error

	// StartConversion asks every probe on the bus to begin a conversion.
	// It does not wait for the conversion to finish.
	StartConversion() error

	// ReadTemperature returns the last converted value of one probe in °C.
	ReadTemperature(addr Address) (float64, error)
}
