package onewire

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultSysfsRoot is where the Linux w1 subsystem exposes masters and slaves.
const DefaultSysfsRoot = "/sys/bus/w1/devices"

// ErrNoReading is returned when a probe's temperature file is empty or
// reports a failed conversion.
var ErrNoReading = errors.New("onewire: no reading")

// SysfsBus drives one w1-gpio bus master through the kernel's w1_therm
// sysfs interface. Each bus master is a separate dtoverlay instance bound
// to its own GPIO pin.
type SysfsBus struct {
	id     BusID
	pin    int
	root   string
	master string
}

// NewSysfsBus creates a bus backed by root/master (e.g. w1_bus_master1).
func NewSysfsBus(id BusID, pin int, root, master string) (*SysfsBus, error) {
	if root == "" {
		root = DefaultSysfsRoot
	}
	dir := filepath.Join(root, master)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("open bus %s master %s: %w", id, master, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open bus %s master %s: not a directory", id, master)
	}
	return &SysfsBus{id: id, pin: pin, root: root, master: master}, nil
}

// ID returns the logical bus identifier.
func (b *SysfsBus) ID() BusID { return b.id }

// Pin returns the GPIO pin of the bus master.
func (b *SysfsBus) Pin() int { return b.pin }

// Enumerate reads the master's slave list. The kernel answers
// "not found." when the bus is empty.
func (b *SysfsBus) Enumerate() ([]Address, error) {
	data, err := os.ReadFile(filepath.Join(b.root, b.master, "w1_master_slaves"))
	if err != nil {
		return nil, fmt.Errorf("enumerate bus %s: %w", b.id, err)
	}

	var addrs []Address
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "not found") {
			continue
		}
		addr, err := ParseAddress(line)
		if err != nil {
			return nil, fmt.Errorf("enumerate bus %s: %w", b.id, err)
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

// SetResolution writes the resolution in bits to the slave's resolution file.
func (b *SysfsBus) SetResolution(addr Address, res Resolution) error {
	if !res.Valid() {
		return fmt.Errorf("set resolution %s: invalid resolution %d", addr, res)
	}
	path := filepath.Join(b.root, addr.SysfsName(), "resolution")
	if err := os.WriteFile(path, []byte(strconv.Itoa(int(res))), 0o644); err != nil {
		return fmt.Errorf("set resolution %s: %w", addr, err)
	}
	return nil
}

// StartConversion triggers a simultaneous conversion on every probe of the bus.
func (b *SysfsBus) StartConversion() error {
	path := filepath.Join(b.root, b.master, "therm_bulk_read")
	if err := os.WriteFile(path, []byte("trigger\n"), 0o644); err != nil {
		return fmt.Errorf("start conversion on bus %s: %w", b.id, err)
	}
	return nil
}

// ReadTemperature reads the slave's temperature file (millidegrees Celsius).
func (b *SysfsBus) ReadTemperature(addr Address) (float64, error) {
	data, err := os.ReadFile(filepath.Join(b.root, addr.SysfsName(), "temperature"))
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", addr, err)
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return 0, fmt.Errorf("read %s: %w", addr, ErrNoReading)
	}
	milli, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", addr, err)
	}
	return float64(milli) / 1000, nil
}
