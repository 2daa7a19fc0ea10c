// Package retry delivers queued batches in strict enqueue order, backing off
// exponentially after failures and dead-lettering batches that exhaust
// their retries.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/temp-logger/internal/queue"
	"github.com/sweeney/temp-logger/internal/sample"
	"github.com/sweeney/temp-logger/internal/transport"
)

// Defaults.
const (
	DefaultBase           = 2 * time.Second
	DefaultMaxBackoff     = 5 * time.Minute
	DefaultMaxRetries     = 5
	DefaultAttemptTimeout = 10 * time.Second
)

// Config holds the retry policy.
type Config struct {
	Base           time.Duration
	MaxBackoff     time.Duration
	MaxRetries     int
	AttemptTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Base <= 0 {
		c.Base = DefaultBase
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.MaxBackoff < c.Base {
		c.MaxBackoff = c.Base
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = DefaultAttemptTimeout
	}
	return c
}

// DeadLetterSink receives payloads of batches that exhausted their retries.
type DeadLetterSink interface {
	Write(payload []byte) error
}

// Result is what a Tick did.
type Result int

const (
	Idle     Result = iota // queue empty or backoff not elapsed
	InFlight               // an attempt is running; nothing to apply yet
	Sent
	Failed
	DeadLetter
	Lost // dead-letter write failed; the batch is gone
)

func (r Result) String() string {
	switch r {
	case Idle:
		return "idle"
	case InFlight:
		return "in-flight"
	case Sent:
		return "sent"
	case Failed:
		return "failed"
	case DeadLetter:
		return "dead-lettered"
	case Lost:
		return "lost"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// Outcome describes one Tick.
type Outcome struct {
	Result Result
	// BatchSeq identifies the batch acted on; zero when Idle.
	BatchSeq   uint64
	RetryCount int
	// Backoff is the wait before the next attempt.
	Backoff time.Duration
	Err     error
}

// Counters are cumulative delivery statistics.
type Counters struct {
	Delivered      uint64
	Failures       uint64
	DeadLettered   uint64
	DeadLetterLost uint64
}

// Engine owns the slot at the tail of the queue until it is delivered or
// dead-lettered. Tick never waits on the network: the attempt runs on its
// own goroutine and its result is applied by a later Tick. Not safe for
// concurrent use.
type Engine struct {
	cfg    Config
	q      *queue.Queue
	sink   DeadLetterSink
	origin sample.Origin

	// Go runs one delivery attempt. Defaults to a new goroutine; tests
	// replace it to run attempts synchronously.
	Go func(func())

	results  chan attempt
	inFlight bool
	flight   uint64 // batch sequence of the running attempt

	phase       Phase
	backoff     time.Duration
	lastAttempt time.Time
	attempted   bool   // lastAttempt is meaningful
	slotSeq     uint64 // queue sequence of the slot the bookkeeping belongs to

	counters Counters
}

// New creates an engine draining q. sink may be nil, in which case
// exhausted batches are lost.
func New(cfg Config, q *queue.Queue, sink DeadLetterSink, origin sample.Origin) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:     cfg,
		q:       q,
		sink:    sink,
		origin:  origin,
		phase:   Pending,
		backoff: cfg.Base,
		Go:      func(f func()) { go f() },
		results: make(chan attempt, 1),
	}
}

// attempt is the result of one delivery, handed back from the attempt
// goroutine.
type attempt struct {
	slotSeq  uint64
	batchSeq uint64
	payload  []byte
	via      string
	err      error
}

// Config returns the effective policy.
func (e *Engine) Config() Config {
	return e.cfg
}

// Phase returns the phase of the in-flight slot.
func (e *Engine) Phase() Phase {
	return e.phase
}

// Backoff returns the current wait between attempts.
func (e *Engine) Backoff() time.Duration {
	return e.backoff
}

// Counters returns the cumulative statistics.
func (e *Engine) Counters() Counters {
	return e.counters
}

// NextAttempt returns when the next attempt is allowed. The zero time means
// immediately.
func (e *Engine) NextAttempt() time.Time {
	if !e.attempted {
		return time.Time{}
	}
	return e.lastAttempt.Add(e.backoff)
}

// BackoffFor returns the wait after the n-th consecutive failure of a batch:
// base * 2^(n-1), capped at MaxBackoff. n <= 0 returns base.
func (e *Engine) BackoffFor(n int) time.Duration {
	return backoffFor(e.cfg, n)
}

func backoffFor(cfg Config, n int) time.Duration {
	d := cfg.Base
	for i := 1; i < n; i++ {
		d *= 2
		if d >= cfg.MaxBackoff {
			return cfg.MaxBackoff
		}
	}
	if d > cfg.MaxBackoff {
		return cfg.MaxBackoff
	}
	return d
}

// Tick applies the result of a finished attempt, or starts at most one new
// attempt for the oldest queued batch. It returns without waiting for the
// transport.
func (e *Engine) Tick(ctx context.Context, now time.Time, t transport.Transport) Outcome {
	if e.inFlight {
		return e.poll()
	}

	slot := e.q.PeekOldest()
	if slot == nil {
		return Outcome{Result: Idle, Backoff: e.backoff}
	}
	e.adopt(slot)

	if e.attempted && now.Sub(e.lastAttempt) < e.backoff {
		return Outcome{Result: Idle, BatchSeq: slot.Batch.Seq, RetryCount: slot.RetryCount, Backoff: e.backoff}
	}

	payload, err := sample.FormatPayload(e.origin, slot.Batch)
	if err != nil {
		// A batch that cannot be serialized will never be delivered.
		log.Printf("retry: format batch %d: %v", slot.Batch.Seq, err)
		e.setPhase(Attempting)
		return e.deadLetter(slot, nil, err)
	}

	e.setPhase(Attempting)
	e.lastAttempt = now
	e.attempted = true
	e.start(ctx, t, slot, payload)
	return e.poll()
}

// InFlight reports whether a delivery attempt is running.
func (e *Engine) InFlight() bool {
	return e.inFlight
}

// Drain waits for the running attempt, if any, and applies its result. It
// is meant for shutdown; the attempt itself is bounded by AttemptTimeout.
func (e *Engine) Drain(ctx context.Context) Outcome {
	if !e.inFlight {
		return Outcome{Result: Idle, Backoff: e.backoff}
	}
	select {
	case res := <-e.results:
		e.inFlight = false
		return e.finish(res)
	case <-ctx.Done():
		return Outcome{Result: InFlight, BatchSeq: e.flight, Backoff: e.backoff, Err: ctx.Err()}
	}
}

func (e *Engine) start(ctx context.Context, t transport.Transport, slot *queue.Slot, payload []byte) {
	msg := transport.Message{BatchID: slot.Batch.ID.String(), Payload: payload}
	res := attempt{slotSeq: slot.Seq, batchSeq: slot.Batch.Seq, payload: payload, via: t.Name()}
	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)

	e.inFlight = true
	e.flight = res.batchSeq
	e.Go(func() {
		defer cancel()
		res.err = t.Deliver(attemptCtx, msg)
		e.results <- res
	})
}

func (e *Engine) poll() Outcome {
	select {
	case res := <-e.results:
		e.inFlight = false
		return e.finish(res)
	default:
		return Outcome{Result: InFlight, BatchSeq: e.flight, Backoff: e.backoff}
	}
}

// finish applies an attempt result to the slot it was made for.
func (e *Engine) finish(res attempt) Outcome {
	slot := e.q.PeekOldest()
	if slot == nil || slot.Seq != res.slotSeq {
		return e.orphaned(res)
	}

	if res.err == nil {
		e.counters.Delivered++
		e.setPhase(Delivered)
		e.q.Dequeue()
		e.backoff = e.cfg.Base
		return Outcome{Result: Sent, BatchSeq: res.batchSeq, RetryCount: slot.RetryCount, Backoff: e.backoff}
	}

	e.counters.Failures++
	slot.RetryCount++
	if slot.RetryCount >= e.cfg.MaxRetries {
		return e.deadLetter(slot, res.payload, res.err)
	}

	e.setPhase(RetryScheduled)
	e.backoff = backoffFor(e.cfg, slot.RetryCount)
	log.Printf("retry: batch %d attempt %d/%d via %s failed, next in %s: %v",
		res.batchSeq, slot.RetryCount, e.cfg.MaxRetries, res.via, e.backoff, res.err)
	return Outcome{Result: Failed, BatchSeq: res.batchSeq, RetryCount: slot.RetryCount, Backoff: e.backoff, Err: res.err}
}

// orphaned handles a result whose slot was evicted while the attempt ran.
// The queue is left alone; the next Tick adopts the new oldest batch.
func (e *Engine) orphaned(res attempt) Outcome {
	e.backoff = e.cfg.Base
	if res.err == nil {
		e.counters.Delivered++
		e.setPhase(Delivered)
		log.Printf("retry: batch %d delivered after it was evicted", res.batchSeq)
		return Outcome{Result: Sent, BatchSeq: res.batchSeq, Backoff: e.backoff}
	}
	e.counters.Failures++
	e.phase = Pending
	log.Printf("retry: evicted batch %d failed via %s: %v", res.batchSeq, res.via, res.err)
	return Outcome{Result: Failed, BatchSeq: res.batchSeq, Backoff: e.backoff, Err: res.err}
}

// adopt points the bookkeeping at the tail slot. A new tail after a
// terminal outcome starts Pending; a new tail while a slot was still in
// flight means that slot was evicted, so its backoff is discarded.
func (e *Engine) adopt(slot *queue.Slot) {
	if slot.Seq == e.slotSeq {
		return
	}
	switch {
	case e.phase.Terminal():
		e.setPhase(Pending)
	case e.phase != Pending:
		log.Printf("retry: in-flight batch evicted, starting batch %d", slot.Batch.Seq)
		e.backoff = e.cfg.Base
		e.phase = Pending
	}
	e.slotSeq = slot.Seq
}

func (e *Engine) deadLetter(slot *queue.Slot, payload []byte, cause error) Outcome {
	seq, retries := slot.Batch.Seq, slot.RetryCount
	e.setPhase(DeadLettered)
	e.q.Dequeue()
	e.backoff = e.cfg.Base

	var err error
	switch {
	case payload == nil:
		err = cause
	case e.sink == nil:
		err = errors.New("no overflow store")
	default:
		err = e.sink.Write(payload)
	}
	if err != nil {
		e.counters.DeadLetterLost++
		log.Printf("retry: batch %d LOST: overflow store write failed: %v (last delivery error: %v)", seq, err, cause)
		return Outcome{Result: Lost, BatchSeq: seq, RetryCount: retries, Backoff: e.backoff, Err: err}
	}

	e.counters.DeadLettered++
	log.Printf("retry: batch %d dead-lettered after %d attempts: %v", seq, retries, cause)
	return Outcome{Result: DeadLetter, BatchSeq: seq, RetryCount: retries, Backoff: e.backoff, Err: cause}
}

func (e *Engine) setPhase(to Phase) {
	next, err := e.phase.Next(to)
	if err != nil {
		log.Printf("retry: %v", err)
	}
	e.phase = next
}
