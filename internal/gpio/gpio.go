// Package gpio provides the liquid-level switch input with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// LevelReader reads a float or conductive level switch.
type LevelReader interface {
	// Read returns true when liquid is detected.
	Read() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// DefaultLevelPin is the BCM pin the level switch is wired to.
const DefaultLevelPin = 5
