// Package status provides a thread-safe status tracker for the temp-logger daemon.
// The main loop writes it once per iteration; HTTP handlers and the operator
// console read snapshots.
package status

import (
	"sync"
	"time"
)

// Config contains daemon configuration for display.
type Config struct {
	SiteID        string
	DeviceID      string
	IntervalMs    int64
	Resolution    int
	QueueCapacity int
	MaxRetries    int
	DataDir       string
	Transport     string
	HTTPAddr      string
}

// Sensor is one registered probe as last observed.
type Sensor struct {
	Name      string
	Bus       string
	Pin       int
	ROM       string
	LastValue float64
	LastOK    bool
}

// Counters are cumulative totals since start.
type Counters struct {
	Cycles           uint64
	Batches          uint64
	ReadingsOK       uint64
	ReadingsError    uint64
	Evictions        uint64
	Delivered        uint64
	DeliveryFailures uint64
	DeadLettered     uint64
	DeadLetterLost   uint64
	LogErrors        uint64
}

// Loop is the state refreshed by the main loop on every iteration.
type Loop struct {
	QueueDepth         int
	LogEnabled         bool
	LogFile            string
	LogSize            int64
	OverflowRecords    int
	Paused             bool
	ClockSynced        bool
	RetryPhase         string
	Backoff            time.Duration
	TransportConnected bool
	LastBatch          string
	Counters           Counters
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Loop
	Sensors   []Sensor
	StartTime time.Time
	Now       time.Time
	Config    Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update replaces the loop state. Called from runLoop on every iteration.
func (t *Tracker) Update(l Loop) {
	t.mu.Lock()
	t.snap.Loop = l
	t.mu.Unlock()
}

// SetSensors replaces the sensor table.
func (t *Tracker) SetSensors(sensors []Sensor) {
	cp := make([]Sensor, len(sensors))
	copy(cp, sensors)
	t.mu.Lock()
	t.snap.Sensors = cp
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Sensors = make([]Sensor, len(t.snap.Sensors))
	copy(s.Sensors, t.snap.Sensors)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
