// Package clock supplies cycle timestamps. Until the wall clock is known to
// be right, timestamps are boot-relative and marked as such.
package clock

import (
	"time"

	"github.com/sweeney/temp-logger/internal/sample"
)

// DefaultFloor is the earliest wall time accepted as synchronized. Boards
// without an RTC boot at the epoch or the image build date.
var DefaultFloor = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Clock tracks boot time and whether the wall clock can be trusted.
// Not safe for concurrent use; owned by the main loop.
type Clock struct {
	now    func() time.Time
	boot   time.Time
	floor  time.Time
	offset time.Duration
	synced bool
}

// New creates a Clock. now is usually time.Now; boot is taken from it.
func New(now func() time.Time, floor time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	if floor.IsZero() {
		floor = DefaultFloor
	}
	return &Clock{now: now, boot: now(), floor: floor}
}

// Now returns the timestamp for the current instant.
func (c *Clock) Now() sample.Timestamp {
	t := c.now()
	wall := t.Add(c.offset)
	return sample.Timestamp{
		Wall:   wall,
		Uptime: t.Sub(c.boot),
		Synced: c.synced || !wall.Before(c.floor),
	}
}

// Synced reports whether timestamps are currently wall-clock based.
func (c *Clock) Synced() bool {
	return c.Now().Synced
}

// Sync accepts an operator-supplied wall time. Later timestamps are
// wall-clock based and offset so that Now() matches wall at this instant.
func (c *Clock) Sync(wall time.Time) {
	c.offset = wall.Sub(c.now())
	c.synced = true
}

// Uptime returns the time since boot.
func (c *Clock) Uptime() time.Duration {
	return c.now().Sub(c.boot)
}
