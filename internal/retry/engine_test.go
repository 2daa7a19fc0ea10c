package retry

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/temp-logger/internal/queue"
	"github.com/sweeney/temp-logger/internal/sample"
	"github.com/sweeney/temp-logger/internal/transport"
)

const base = time.Second

var errDown = errors.New("collector down")

type memSink struct {
	records [][]byte
	err     error
}

func (s *memSink) Write(p []byte) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, p)
	return nil
}

func newBatch(seq uint64) *sample.Batch {
	b := sample.NewBatch(seq, sample.Timestamp{Uptime: time.Duration(seq) * time.Second})
	b.Add(sample.Reading{Name: "TD01", OK: true, Raw: 20, Calibrated: 24.5})
	b.Seal()
	return b
}

func setup(t *testing.T, n int) (*Engine, *queue.Queue, *memSink, *transport.FakeTransport) {
	t.Helper()
	q := queue.New(10)
	for i := 1; i <= n; i++ {
		q.Enqueue(newBatch(uint64(i)))
	}
	sink := &memSink{}
	e := synchronous(New(Config{Base: base, MaxBackoff: 8 * base, MaxRetries: 5}, q, sink, sample.Origin{SiteID: "s", DeviceID: "d"}))
	return e, q, sink, transport.NewFakeTransport()
}

// synchronous makes every attempt finish inside the Tick that starts it.
func synchronous(e *Engine) *Engine {
	e.Go = func(f func()) { f() }
	return e
}

func sentSeqs(t *testing.T, msgs []transport.Message) []string {
	t.Helper()
	var ids []string
	for _, m := range msgs {
		var p sample.Payload
		require.NoError(t, json.Unmarshal(m.Payload, &p))
		ids = append(ids, p.Timestamp)
	}
	return ids
}

func TestTickEmptyQueue(t *testing.T) {
	e, _, _, tr := setup(t, 0)
	out := e.Tick(context.Background(), time.Unix(0, 0), tr)
	assert.Equal(t, Idle, out.Result)
	assert.Equal(t, 0, tr.Attempts())
}

func TestFirstAttemptIsImmediate(t *testing.T) {
	e, q, _, tr := setup(t, 1)
	out := e.Tick(context.Background(), time.Unix(0, 0), tr)

	assert.Equal(t, Sent, out.Result)
	assert.Equal(t, uint64(1), out.BatchSeq)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, Delivered, e.Phase())
	assert.Equal(t, uint64(1), e.Counters().Delivered)

	require.Len(t, tr.Delivered, 1)
	assert.NotEmpty(t, tr.Delivered[0].BatchID)
}

func TestHeadOfLineOrdering(t *testing.T) {
	e, q, _, tr := setup(t, 3)
	tr.Results = []error{errDown, errDown, nil, nil, nil}
	now := time.Unix(0, 0)

	for i := 0; i < 20 && q.Len() > 0; i++ {
		e.Tick(context.Background(), now, tr)
		now = now.Add(10 * base)
	}

	require.Equal(t, 0, q.Len())
	assert.Equal(t,
		[]string{"UPTIME+1s", "UPTIME+1s", "UPTIME+1s", "UPTIME+2s", "UPTIME+3s"},
		sentSeqs(t, tr.Messages),
		"batch 2 is never attempted while batch 1 is pending")
}

func TestRateLimitedByBackoff(t *testing.T) {
	e, _, _, tr := setup(t, 1)
	tr.Err = errDown
	start := time.Unix(0, 0)

	out := e.Tick(context.Background(), start, tr)
	require.Equal(t, Failed, out.Result)
	assert.Equal(t, base, out.Backoff)
	assert.Equal(t, start.Add(base), e.NextAttempt())

	out = e.Tick(context.Background(), start.Add(base-time.Millisecond), tr)
	assert.Equal(t, Idle, out.Result)
	assert.Equal(t, 1, tr.Attempts())

	out = e.Tick(context.Background(), start.Add(base), tr)
	assert.Equal(t, Failed, out.Result)
	assert.Equal(t, 2, tr.Attempts())
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	e, _, _, _ := setup(t, 0)
	assert.Equal(t, base, e.BackoffFor(0))
	assert.Equal(t, base, e.BackoffFor(1))
	assert.Equal(t, 2*base, e.BackoffFor(2))
	assert.Equal(t, 4*base, e.BackoffFor(3))
	assert.Equal(t, 8*base, e.BackoffFor(4))
	assert.Equal(t, 8*base, e.BackoffFor(40))

	prev := time.Duration(0)
	for n := 1; n < 64; n++ {
		d := e.BackoffFor(n)
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, 8*base)
		prev = d
	}
}

func TestThreeFailuresThenDeadLetterOnFifth(t *testing.T) {
	e, q, sink, tr := setup(t, 1)
	tr.Err = errDown
	now := time.Unix(0, 0)

	var waits []time.Duration
	for i := 1; i <= 4; i++ {
		out := e.Tick(context.Background(), now, tr)
		require.Equal(t, Failed, out.Result, "attempt %d", i)
		require.Equal(t, i, out.RetryCount)
		assert.Equal(t, RetryScheduled, e.Phase())
		assert.Equal(t, 1, q.Len(), "slot stays at the tail")
		waits = append(waits, out.Backoff)
		now = now.Add(out.Backoff)
	}
	assert.Equal(t, []time.Duration{base, 2 * base, 4 * base, 8 * base}, waits)

	out := e.Tick(context.Background(), now, tr)
	assert.Equal(t, DeadLetter, out.Result)
	assert.Equal(t, 5, out.RetryCount)
	assert.Equal(t, DeadLettered, e.Phase())
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, base, e.Backoff(), "backoff resets for the next batch")
	require.Len(t, sink.records, 1)
	assert.Equal(t, tr.Messages[0].Payload, sink.records[0])
	assert.Equal(t, Counters{Failures: 5, DeadLettered: 1}, e.Counters())
}

func TestDeadLetterStoreFailureIsLost(t *testing.T) {
	e, q, sink, tr := setup(t, 1)
	sink.err = errors.New("card removed")
	tr.Err = errDown
	now := time.Unix(0, 0)

	var out Outcome
	for i := 0; i < 5; i++ {
		out = e.Tick(context.Background(), now, tr)
		now = now.Add(out.Backoff)
	}

	assert.Equal(t, Lost, out.Result)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, uint64(1), e.Counters().DeadLetterLost)
	assert.Equal(t, uint64(0), e.Counters().DeadLettered)
}

func TestNilSinkLosesBatch(t *testing.T) {
	q := queue.New(2)
	q.Enqueue(newBatch(1))
	e := synchronous(New(Config{Base: base, MaxRetries: 1}, q, nil, sample.Origin{}))
	tr := transport.NewFakeTransport()
	tr.Err = errDown

	out := e.Tick(context.Background(), time.Unix(0, 0), tr)
	assert.Equal(t, Lost, out.Result)
}

func TestSuccessResetsBackoff(t *testing.T) {
	e, q, _, tr := setup(t, 2)
	tr.Results = []error{errDown, errDown, nil}
	now := time.Unix(0, 0)

	for i := 0; i < 3; i++ {
		out := e.Tick(context.Background(), now, tr)
		now = now.Add(out.Backoff)
	}
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, base, e.Backoff())
	assert.Equal(t, 0, q.PeekOldest().RetryCount)
}

func TestEvictionOfInFlightSlotResetsBookkeeping(t *testing.T) {
	q := queue.New(2)
	q.Enqueue(newBatch(1))
	q.Enqueue(newBatch(2))
	e := synchronous(New(Config{Base: base, MaxBackoff: 8 * base, MaxRetries: 5}, q, &memSink{}, sample.Origin{}))
	tr := transport.NewFakeTransport()
	tr.Err = errDown
	now := time.Unix(0, 0)

	for i := 0; i < 3; i++ {
		out := e.Tick(context.Background(), now, tr)
		now = now.Add(out.Backoff)
	}
	require.Equal(t, 4*base, e.Backoff())

	q.Enqueue(newBatch(3)) // evicts batch 1
	out := e.Tick(context.Background(), now, tr)
	assert.Equal(t, Failed, out.Result)
	assert.Equal(t, uint64(2), out.BatchSeq)
	assert.Equal(t, 1, out.RetryCount)
	assert.Equal(t, base, out.Backoff)
}

func TestAttemptTimeoutBoundsDelivery(t *testing.T) {
	q := queue.New(1)
	q.Enqueue(newBatch(1))
	e := synchronous(New(Config{Base: base, AttemptTimeout: 20 * time.Millisecond}, q, &memSink{}, sample.Origin{}))

	var deadline time.Time
	tr := deliverFunc(func(ctx context.Context, m transport.Message) error {
		deadline, _ = ctx.Deadline()
		<-ctx.Done()
		return transport.ErrDelivery
	})

	start := time.Now()
	out := e.Tick(context.Background(), start, tr)
	assert.Equal(t, Failed, out.Result)
	assert.False(t, deadline.IsZero())
	assert.Less(t, time.Since(start), 2*time.Second)
}

type deliverFunc func(ctx context.Context, m transport.Message) error

func (f deliverFunc) Deliver(ctx context.Context, m transport.Message) error { return f(ctx, m) }
func (f deliverFunc) Name() string                                           { return "func" }
func (f deliverFunc) Close() error                                           { return nil }

// blockingTransport holds every delivery until release is closed or the
// attempt context ends.
func blockingTransport(release <-chan struct{}, calls *atomic.Int32) deliverFunc {
	return func(ctx context.Context, m transport.Message) error {
		calls.Add(1)
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func TestTickReturnsWhileDeliveryInFlight(t *testing.T) {
	q := queue.New(10)
	q.Enqueue(newBatch(1))
	e := New(Config{}, q, &memSink{}, sample.Origin{})

	release := make(chan struct{})
	var calls atomic.Int32
	tr := blockingTransport(release, &calls)
	now := time.Unix(0, 0)

	start := time.Now()
	out := e.Tick(context.Background(), now, tr)
	assert.Less(t, time.Since(start), 750*time.Millisecond, "Tick must not wait for the collector")
	assert.Equal(t, InFlight, out.Result)
	assert.Equal(t, uint64(1), out.BatchSeq)
	assert.True(t, e.InFlight())
	assert.Equal(t, Attempting, e.Phase())
	assert.Equal(t, 1, q.Len(), "slot stays at the tail while the attempt runs")

	out = e.Tick(context.Background(), now.Add(time.Hour), tr)
	assert.Equal(t, InFlight, out.Result)

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out = e.Drain(ctx)
	assert.Equal(t, Sent, out.Result)
	assert.Equal(t, 0, q.Len())
	assert.False(t, e.InFlight())
	assert.Equal(t, int32(1), calls.Load(), "no second attempt while the first is running")
}

func TestEvictionWhileInFlight(t *testing.T) {
	q := queue.New(1)
	q.Enqueue(newBatch(1))
	e := New(Config{Base: base}, q, &memSink{}, sample.Origin{})

	release := make(chan struct{})
	var calls atomic.Int32
	tr := blockingTransport(release, &calls)

	out := e.Tick(context.Background(), time.Unix(0, 0), tr)
	require.Equal(t, InFlight, out.Result)

	q.Enqueue(newBatch(2)) // evicts batch 1 under the running attempt
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out = e.Drain(ctx)
	assert.Equal(t, Sent, out.Result)
	assert.Equal(t, uint64(1), out.BatchSeq)
	require.Equal(t, 1, q.Len(), "the newer batch is not dequeued by the stale result")
	assert.Equal(t, uint64(2), q.PeekOldest().Batch.Seq)
	assert.Equal(t, uint64(1), e.Counters().Delivered)
}

func TestDrainWithoutAttempt(t *testing.T) {
	e, _, _, _ := setup(t, 1)
	assert.Equal(t, Idle, e.Drain(context.Background()).Result)
}

func TestDrainHonoursContext(t *testing.T) {
	q := queue.New(1)
	q.Enqueue(newBatch(1))
	e := New(Config{Base: base}, q, &memSink{}, sample.Origin{})

	release := make(chan struct{})
	defer close(release)
	var calls atomic.Int32
	e.Tick(context.Background(), time.Unix(0, 0), blockingTransport(release, &calls))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	out := e.Drain(ctx)
	assert.Equal(t, InFlight, out.Result)
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
}
