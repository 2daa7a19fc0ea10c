//go:build !linux

package gpio

import "errors"

// ErrUnsupported is returned off Linux, where there is no GPIO character device.
var ErrUnsupported = errors.New("gpio: level input requires linux")

// RealLevelReader has no hardware behind it on this platform.
type RealLevelReader struct{}

// NewRealLevelReader always fails with ErrUnsupported.
func NewRealLevelReader(chipName string, pin int, activeLow bool) (*RealLevelReader, error) {
	return nil, ErrUnsupported
}

func (r *RealLevelReader) Read() (bool, error) { return false, ErrUnsupported }

func (r *RealLevelReader) Close() error { return nil }
