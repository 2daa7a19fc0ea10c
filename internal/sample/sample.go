// Package sample contains the acquisition data model shared by the local
// log, the upload queue and the transports. It has no I/O.
package sample

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/temp-logger/internal/onewire"
)

// MaxReadings bounds the readings of one batch (the registry capacity).
const MaxReadings = 16

// Timestamp is the single timestamp of a sampling cycle. When the wall clock
// has not been synchronized, only the boot-relative uptime is meaningful and
// every rendering carries an explicit UPTIME marker.
type Timestamp struct {
	Wall   time.Time
	Uptime time.Duration
	Synced bool
}

// UptimePrefix marks timestamps and date keys that are boot-relative.
const UptimePrefix = "UPTIME"

// String returns RFC3339 UTC when synced, "UPTIME+<seconds>s" otherwise.
func (ts Timestamp) String() string {
	if ts.Synced {
		return ts.Wall.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("%s+%ds", UptimePrefix, int64(ts.Uptime/time.Second))
}

// DateKey names the calendar day of the timestamp: YYYYMMDD when synced,
// UP plus the zero-padded day since boot otherwise. Both forms are eight
// characters so log file names stay 8.3 compatible.
func (ts Timestamp) DateKey() string {
	if ts.Synced {
		return ts.Wall.UTC().Format("20060102")
	}
	return fmt.Sprintf("UP%06d", int64(ts.Uptime/(24*time.Hour)))
}

// Status is the per-reading outcome.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Reading is one probe's observation in one cycle. Raw and Calibrated are
// only meaningful when OK is true.
type Reading struct {
	Index      int
	Name       string
	Bus        onewire.BusID
	Pin        int
	Address    onewire.Address
	Raw        float64
	Calibrated float64
	OK         bool
}

// Status returns ok or error.
func (r Reading) Status() Status {
	if r.OK {
		return StatusOK
	}
	return StatusError
}

// Level is the liquid-level switch observation.
type Level struct {
	Name     string
	Pin      int
	Detected bool
	OK       bool
}

// Level states as written to the log and payload.
const (
	LevelDetected = "DETECTED"
	LevelNone     = "NONE"
	LevelError    = "ERROR"
)

// State returns the textual switch state.
func (l Level) State() string {
	switch {
	case !l.OK:
		return LevelError
	case l.Detected:
		return LevelDetected
	default:
		return LevelNone
	}
}

// Environment is the auxiliary environmental sensor block.
type Environment struct {
	Name        string
	Type        string
	TempC       float64
	Humidity    float64
	PressureHPa float64
	GasOhms     float64
}

// Batch is the unit of both logging and upload: all readings of one cycle,
// timestamped once.
type Batch struct {
	ID        uuid.UUID
	Seq       uint64
	Timestamp Timestamp
	Readings  []Reading
	Level     *Level
	Env       *Environment
	Valid     bool
}

// NewBatch starts a batch for a cycle. It is not valid until Seal is called.
func NewBatch(seq uint64, ts Timestamp) *Batch {
	return &Batch{
		ID:        uuid.New(),
		Seq:       seq,
		Timestamp: ts,
		Readings:  make([]Reading, 0, MaxReadings),
	}
}

// Add appends a reading. It returns false once the batch is full.
func (b *Batch) Add(r Reading) bool {
	if len(b.Readings) >= MaxReadings {
		return false
	}
	b.Readings = append(b.Readings, r)
	return true
}

// Seal marks the batch fully populated. A batch with zero readings and no
// auxiliary data stays invalid.
func (b *Batch) Seal() {
	b.Valid = len(b.Readings) > 0 || b.Level != nil || b.Env != nil
}

// OKCount returns the number of ok readings.
func (b *Batch) OKCount() int {
	n := 0
	for _, r := range b.Readings {
		if r.OK {
			n++
		}
	}
	return n
}

// ErrorCount returns the number of error readings.
func (b *Batch) ErrorCount() int {
	return len(b.Readings) - b.OKCount()
}

// Clone returns a deep copy so that sinks never share mutable state.
func (b *Batch) Clone() *Batch {
	if b == nil {
		return nil
	}
	c := *b
	c.Readings = make([]Reading, len(b.Readings))
	copy(c.Readings, b.Readings)
	if b.Level != nil {
		l := *b.Level
		c.Level = &l
	}
	if b.Env != nil {
		e := *b.Env
		c.Env = &e
	}
	return &c
}
