package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/temp-logger/internal/queue"
	"github.com/sweeney/temp-logger/internal/sample"
	"github.com/sweeney/temp-logger/internal/storage"
)

type memLog struct {
	batches []*sample.Batch
	err     error
}

func (l *memLog) Append(b *sample.Batch) error {
	if l.err != nil {
		return l.err
	}
	l.batches = append(l.batches, b)
	return nil
}

func validBatch() *sample.Batch {
	b := sample.NewBatch(1, sample.Timestamp{Uptime: time.Minute})
	b.Add(sample.Reading{Name: "TD01", Raw: 20, Calibrated: 24.5, OK: true})
	b.Seal()
	return b
}

func TestDispatchReachesBothSinks(t *testing.T) {
	l := &memLog{}
	q := queue.New(10)
	p := New(l, q)

	b := validBatch()
	res := p.Dispatch(b)

	assert.True(t, res.Logged)
	assert.True(t, res.Enqueued)
	require.Len(t, l.batches, 1)
	require.Equal(t, 1, q.Len())

	logged, queued := l.batches[0], q.PeekOldest().Batch
	assert.Equal(t, b.ID, logged.ID)
	assert.Equal(t, b.ID, queued.ID)
	assert.NotSame(t, logged, queued)

	logged.Readings[0].Calibrated = 99
	assert.Equal(t, 24.5, queued.Readings[0].Calibrated, "sinks share no mutable state")
	assert.Equal(t, 24.5, b.Readings[0].Calibrated)
}

func TestDispatchInvalidBatchReachesNeither(t *testing.T) {
	l := &memLog{}
	q := queue.New(10)
	p := New(l, q)

	b := sample.NewBatch(1, sample.Timestamp{})
	b.Seal()
	res := p.Dispatch(b)

	assert.False(t, res.Logged)
	assert.False(t, res.Enqueued)
	assert.Empty(t, l.batches)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, Result{}, p.Dispatch(nil))
	assert.Equal(t, uint64(0), p.Dispatched())
}

func TestDispatchLogFailureStillEnqueues(t *testing.T) {
	l := &memLog{err: errors.New("card full")}
	q := queue.New(10)
	p := New(l, q)

	res := p.Dispatch(validBatch())

	assert.False(t, res.Logged)
	assert.True(t, res.Enqueued)
	assert.Error(t, res.LogErr)
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, uint64(1), p.LogErrors())
}

func TestDispatchWithUnavailableStorage(t *testing.T) {
	l, err := storage.Open(t.TempDir()+"/absent", "dev")
	require.Error(t, err)
	q := queue.New(10)

	res := New(l, q).Dispatch(validBatch())
	assert.ErrorIs(t, res.LogErr, storage.ErrStorageUnavailable)
	assert.Equal(t, 1, q.Len())
}
