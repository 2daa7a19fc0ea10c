// Package acquire drives sampling cycles from the cooperative main loop.
//
// MaybeSample is the only place in the loop allowed to block: a triggered
// cycle sleeps once for the worst-case probe conversion time of the
// configured resolution (750ms at 12 bits). That wait is the loop's
// worst-case iteration latency; every other duty returns promptly.
package acquire

import (
	"log"
	"time"

	"github.com/sweeney/temp-logger/internal/gpio"
	"github.com/sweeney/temp-logger/internal/onewire"
	"github.com/sweeney/temp-logger/internal/sample"
	"github.com/sweeney/temp-logger/internal/sensor"
)

// Plausible physical range of the probes, in °C.
const (
	DefaultMinC = -55.0
	DefaultMaxC = 125.0
)

// EnvReader reads the auxiliary environmental sensor. The driver lives
// outside this module.
type EnvReader interface {
	Read() (sample.Environment, error)
}

// Clock supplies cycle timestamps.
type Clock interface {
	Now() sample.Timestamp
}

// Config controls sampling.
type Config struct {
	Interval time.Duration
	MinC     float64
	MaxC     float64
	// RejectPowerOn treats 85.0°C as a failed conversion.
	RejectPowerOn bool

	LevelName string
	LevelPin  int
	EnvName   string
}

// Scheduler owns reading construction. Not safe for concurrent use.
type Scheduler struct {
	cfg      Config
	registry *sensor.Registry
	cal      *sensor.Calibration
	clock    Clock
	level    gpio.LevelReader
	env      EnvReader

	// Sleep performs the conversion wait. Replaced in tests.
	Sleep func(time.Duration)

	last    time.Time
	started bool
	paused  bool
	seq     uint64

	consecutiveFailures int
	busFault            map[onewire.BusID]bool
}

// New creates a Scheduler over a discovered registry. level and env may be nil.
func New(cfg Config, registry *sensor.Registry, cal *sensor.Calibration, clock Clock, level gpio.LevelReader, env EnvReader) *Scheduler {
	if cfg.MinC == 0 && cfg.MaxC == 0 {
		cfg.MinC, cfg.MaxC = DefaultMinC, DefaultMaxC
	}
	if cfg.LevelName == "" {
		cfg.LevelName = "LL01"
	}
	if cfg.EnvName == "" {
		cfg.EnvName = "ATM01"
	}
	return &Scheduler{
		cfg:      cfg,
		registry: registry,
		cal:      cal,
		clock:    clock,
		level:    level,
		env:      env,
		Sleep:    time.Sleep,
		busFault: make(map[onewire.BusID]bool),
	}
}

// ConversionWait returns the blocking wait of one triggered cycle.
func (s *Scheduler) ConversionWait() time.Duration {
	return s.registry.Resolution().ConversionTime()
}

// SetPaused pauses or resumes sampling.
func (s *Scheduler) SetPaused(p bool) {
	s.paused = p
}

// Paused reports whether sampling is paused.
func (s *Scheduler) Paused() bool {
	return s.paused
}

// ConsecutiveFailures returns the number of consecutive cycles without a
// single ok reading.
func (s *Scheduler) ConsecutiveFailures() int {
	return s.consecutiveFailures
}

// Cycles returns the number of batches produced so far.
func (s *Scheduler) Cycles() uint64 {
	return s.seq
}

// MaybeSample runs one sampling cycle if the interval has elapsed since the
// previous one. Below the threshold it returns immediately without work.
// The first call after start samples immediately.
func (s *Scheduler) MaybeSample(now time.Time) (*sample.Batch, bool) {
	if s.paused {
		return nil, false
	}
	if s.started && now.Sub(s.last) < s.cfg.Interval {
		return nil, false
	}
	s.started = true
	s.last = now

	return s.cycle(), true
}

func (s *Scheduler) cycle() *sample.Batch {
	converting := make(map[onewire.BusID]bool)
	for _, bus := range s.registry.Buses() {
		err := bus.StartConversion()
		s.reportBus(bus.ID(), err)
		if err == nil {
			converting[bus.ID()] = true
		}
	}

	if len(converting) > 0 {
		s.Sleep(s.ConversionWait())
	}

	s.seq++
	batch := sample.NewBatch(s.seq, s.clock.Now())

	for i, id := range s.registry.Identities() {
		idx := sensor.Index(i)
		r := sample.Reading{
			Index:   i,
			Name:    id.Name,
			Bus:     id.Bus,
			Pin:     id.Pin,
			Address: id.Address,
		}
		if converting[id.Bus] {
			if raw, ok := s.read(id); ok {
				r.Raw = raw
				r.Calibrated = s.cal.Apply(idx, raw)
				r.OK = true
			}
		}
		s.registry.Observe(idx, r.Calibrated, r.OK)
		batch.Add(r)
	}

	if s.level != nil {
		detected, err := s.level.Read()
		if err != nil {
			log.Printf("acquire: level sensor: %v", err)
		}
		batch.Level = &sample.Level{
			Name:     s.cfg.LevelName,
			Pin:      s.cfg.LevelPin,
			Detected: detected,
			OK:       err == nil,
		}
	}

	if s.env != nil {
		env, err := s.env.Read()
		if err != nil {
			log.Printf("acquire: environment sensor: %v", err)
		} else {
			if env.Name == "" {
				env.Name = s.cfg.EnvName
			}
			batch.Env = &env
		}
	}

	batch.Seal()

	if batch.OKCount() == 0 {
		s.consecutiveFailures++
	} else {
		s.consecutiveFailures = 0
	}

	return batch
}

// read returns the raw value of one probe, read by address, and whether it
// is plausible. Disconnected and out-of-range values are discarded.
func (s *Scheduler) read(id sensor.Identity) (float64, bool) {
	bus := s.registry.Bus(id.Bus)
	if bus == nil {
		return 0, false
	}
	raw, err := bus.ReadTemperature(id.Address)
	if err != nil {
		return 0, false
	}
	return raw, s.plausible(raw)
}

func (s *Scheduler) plausible(raw float64) bool {
	if raw == onewire.DisconnectedC {
		return false
	}
	if s.cfg.RejectPowerOn && raw == onewire.PowerOnResetC {
		return false
	}
	return raw >= s.cfg.MinC && raw <= s.cfg.MaxC
}

// reportBus logs a bus conversion fault once per episode.
func (s *Scheduler) reportBus(id onewire.BusID, err error) {
	if err != nil {
		if !s.busFault[id] {
			log.Printf("acquire: start conversion on bus %s: %v", id, err)
			s.busFault[id] = true
		}
		return
	}
	if s.busFault[id] {
		log.Printf("acquire: bus %s recovered", id)
		s.busFault[id] = false
	}
}
