package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"syscall"
	"time"

	"github.com/sweeney/temp-logger/internal/acquire"
	"github.com/sweeney/temp-logger/internal/clock"
	"github.com/sweeney/temp-logger/internal/command"
	"github.com/sweeney/temp-logger/internal/config"
	"github.com/sweeney/temp-logger/internal/gpio"
	"github.com/sweeney/temp-logger/internal/metrics"
	"github.com/sweeney/temp-logger/internal/onewire"
	"github.com/sweeney/temp-logger/internal/pipeline"
	"github.com/sweeney/temp-logger/internal/queue"
	"github.com/sweeney/temp-logger/internal/retry"
	"github.com/sweeney/temp-logger/internal/sample"
	"github.com/sweeney/temp-logger/internal/sensor"
	"github.com/sweeney/temp-logger/internal/status"
	"github.com/sweeney/temp-logger/internal/storage"
	"github.com/sweeney/temp-logger/internal/transport"
)

// ErrWatchdog is returned by runLoop after too many consecutive cycles
// without a single ok reading. The supervisor restarts the process.
var ErrWatchdog = errors.New("watchdog: no valid readings")

// daemon wires the pipeline components. Everything except the tracker and
// metrics is owned by the goroutine running runLoop.
type daemon struct {
	cfg       *config.Config
	registry  *sensor.Registry
	clock     *clock.Clock
	sched     *acquire.Scheduler
	log       *storage.Log
	overflow  *storage.OverflowStore
	queue     *queue.Queue
	pipe      *pipeline.Pipeline
	engine    *retry.Engine
	transport transport.Transport
	metrics   *metrics.Metrics
	tracker   *status.Tracker
	exec      *command.Executor

	readingsOK    uint64
	readingsError uint64
	lastBatch     string
}

// newDaemon discovers the probes and builds every component. level, env and
// tr may be nil. Storage faults and an empty registry are reported, not fatal.
func newDaemon(cfg *config.Config, buses []onewire.Bus, level gpio.LevelReader, env acquire.EnvReader, tr transport.Transport, now func() time.Time) (*daemon, error) {
	d := &daemon{cfg: cfg, transport: tr}

	d.registry = sensor.NewRegistry(cfg.Names, cfg.Resolution)
	if _, err := d.registry.Discover(buses...); err != nil {
		if !errors.Is(err, sensor.ErrNoSensors) {
			return nil, fmt.Errorf("discover sensors: %w", err)
		}
		log.Printf("no sensors found; continuing with auxiliary inputs only")
	}

	d.clock = clock.New(now, cfg.ClockFloor)
	d.sched = acquire.New(acquire.Config{
		Interval:      cfg.Interval,
		MinC:          cfg.MinC,
		MaxC:          cfg.MaxC,
		RejectPowerOn: cfg.RejectPowerOn,
		LevelPin:      cfg.LevelPin,
	}, d.registry, sensor.NewCalibration(cfg.Calibration), d.clock, level, env)

	var err error
	d.log, err = storage.Open(cfg.DataDir, cfg.DeviceID)
	if err != nil {
		log.Printf("local logging disabled: %v", err)
	}
	d.overflow, err = storage.OpenOverflow(cfg.DataDir)
	if err != nil && d.log.Enabled() {
		log.Printf("overflow store: %v", err)
	}

	d.metrics = metrics.New()
	d.queue = queue.New(cfg.QueueCapacity)
	d.queue.OnEvict = func(queue.Slot) { d.metrics.ObserveEviction() }
	d.pipe = pipeline.New(d.log, d.queue)
	d.engine = retry.New(retry.Config{
		Base:           cfg.RetryBase,
		MaxBackoff:     cfg.RetryMaxBackoff,
		MaxRetries:     cfg.RetryMaxRetries,
		AttemptTimeout: cfg.RetryAttemptTimeout,
	}, d.queue, d.overflow, sample.Origin{SiteID: cfg.SiteID, DeviceID: cfg.DeviceID})

	d.tracker = status.NewTracker(now(), status.Config{
		SiteID:        cfg.SiteID,
		DeviceID:      cfg.DeviceID,
		IntervalMs:    cfg.Interval.Milliseconds(),
		Resolution:    int(cfg.Resolution),
		QueueCapacity: d.queue.Cap(),
		MaxRetries:    d.engine.Config().MaxRetries,
		DataDir:       cfg.DataDir,
		Transport:     transportName(tr),
		HTTPAddr:      cfg.HTTPAddr,
	})
	d.exec = &command.Executor{
		Store:  d.log,
		Pauser: d.sched,
		Clock:  d.clock,
		Status: d.tracker.Snapshot,
	}
	d.tracker.SetSensors(sensorTable(d.registry))
	d.updateStatus()

	return d, nil
}

// runLoop interleaves command handling, the sampling gate and one retry
// tick per iteration until a signal arrives or the watchdog trips. Only the
// conversion wait blocks an iteration; deliveries run in the background.
func (d *daemon) runLoop(ctx context.Context, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal, lines <-chan command.Line) error {
	for {
		select {
		case s := <-sig:
			if d.engine.InFlight() {
				d.observeDelivery(d.engine.Drain(ctx))
				d.updateStatus()
			}
			log.Printf("received %v, shutting down (%d batches queued)", signalName(s), d.queue.Len())
			return nil

		case l, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			d.handleLine(l)

		case <-tick:
			if err := d.iterate(ctx, now()); err != nil {
				return err
			}
		}
	}
}

func (d *daemon) handleLine(l command.Line) {
	cmd, err := command.Parse(l.Text)
	if err != nil {
		fmt.Fprintf(l.Reply, "ERR %v\n", err)
		return
	}
	d.exec.Execute(cmd, l.Reply)
	d.metrics.SetPaused(d.sched.Paused())
	d.updateStatus()
}

func (d *daemon) iterate(ctx context.Context, t time.Time) error {
	if batch, ok := d.sched.MaybeSample(t); ok {
		d.dispatch(batch)

		if n := d.cfg.WatchdogCycles; n > 0 && d.registry.Len() > 0 && d.sched.ConsecutiveFailures() >= n {
			return fmt.Errorf("%w: %d consecutive cycles", ErrWatchdog, d.sched.ConsecutiveFailures())
		}
	}

	if d.transport != nil {
		out := d.engine.Tick(ctx, t, d.transport)
		d.observeDelivery(out)
	}

	d.updateStatus()
	return nil
}

func (d *daemon) dispatch(batch *sample.Batch) {
	res := d.pipe.Dispatch(batch)
	if !res.Enqueued {
		log.Printf("cycle %d produced no data", batch.Seq)
		return
	}

	d.readingsOK += uint64(batch.OKCount())
	d.readingsError += uint64(batch.ErrorCount())
	d.lastBatch = batch.Timestamp.String()
	d.metrics.ObserveBatch(batch)
	if res.LogErr != nil {
		d.metrics.ObserveLogError()
	}
	d.tracker.SetSensors(sensorTable(d.registry))
}

func (d *daemon) observeDelivery(out retry.Outcome) {
	switch out.Result {
	case retry.Sent:
		d.metrics.ObserveDelivery(metrics.ResultSent)
	case retry.Failed:
		d.metrics.ObserveDelivery(metrics.ResultFailed)
	case retry.DeadLetter:
		d.metrics.ObserveDelivery(metrics.ResultFailed)
		d.metrics.ObserveDelivery(metrics.ResultDeadLettered)
	case retry.Lost:
		d.metrics.ObserveDelivery(metrics.ResultFailed)
		d.metrics.ObserveDelivery(metrics.ResultLost)
	}
}

func (d *daemon) updateStatus() {
	rc := d.engine.Counters()
	connected := d.transport != nil
	if cs, ok := d.transport.(transport.ConnectionStatus); ok {
		connected = cs.IsConnected()
	}

	d.tracker.Update(status.Loop{
		QueueDepth:         d.queue.Len(),
		LogEnabled:         d.log.Enabled(),
		LogFile:            d.log.CurrentFile(),
		LogSize:            d.log.CurrentSize(),
		OverflowRecords:    d.overflow.Count(),
		Paused:             d.sched.Paused(),
		ClockSynced:        d.clock.Synced(),
		RetryPhase:         d.engine.Phase().String(),
		Backoff:            d.engine.Backoff(),
		TransportConnected: connected,
		LastBatch:          d.lastBatch,
		Counters: status.Counters{
			Cycles:           d.sched.Cycles(),
			Batches:          d.pipe.Dispatched(),
			ReadingsOK:       d.readingsOK,
			ReadingsError:    d.readingsError,
			Evictions:        d.queue.Evictions(),
			Delivered:        rc.Delivered,
			DeliveryFailures: rc.Failures,
			DeadLettered:     rc.DeadLettered,
			DeadLetterLost:   rc.DeadLetterLost,
			LogErrors:        d.pipe.LogErrors(),
		},
	})
	d.metrics.SetQueueDepth(d.queue.Len())
	d.metrics.SetBackoff(d.engine.Backoff())
}

func sensorTable(r *sensor.Registry) []status.Sensor {
	ids := r.Identities()
	out := make([]status.Sensor, len(ids))
	for i, id := range ids {
		out[i] = status.Sensor{
			Name:      id.Name,
			Bus:       string(id.Bus),
			Pin:       id.Pin,
			ROM:       id.Address.String(),
			LastValue: id.LastValue,
			LastOK:    id.LastReadOK,
		}
	}
	return out
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
