package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/temp-logger/internal/sample"
)

func batch(seq uint64) *sample.Batch {
	b := sample.NewBatch(seq, sample.Timestamp{})
	b.Add(sample.Reading{Name: "TD01", OK: true})
	b.Seal()
	return b
}

func seqs(q *Queue) []uint64 {
	var out []uint64
	for _, b := range q.Snapshot() {
		out = append(out, b.Seq)
	}
	return out
}

func TestEmptyQueue(t *testing.T) {
	q := New(0)
	assert.Equal(t, DefaultCapacity, q.Cap())
	assert.Equal(t, 0, q.Len())
	assert.Nil(t, q.PeekOldest())
	q.Dequeue()
	assert.Equal(t, 0, q.Len())
}

func TestEnqueuePeekDequeueFIFO(t *testing.T) {
	q := New(10)
	for i := uint64(1); i <= 3; i++ {
		q.Enqueue(batch(i))
	}

	for want := uint64(1); want <= 3; want++ {
		s := q.PeekOldest()
		require.NotNil(t, s)
		assert.True(t, s.Valid)
		assert.Equal(t, want, s.Batch.Seq)
		q.Dequeue()
	}
	assert.Nil(t, q.PeekOldest())
}

func TestTwelveEnqueuesKeepLastTen(t *testing.T) {
	q := New(10)
	var evicted []uint64
	q.OnEvict = func(s Slot) { evicted = append(evicted, s.Batch.Seq) }

	for i := uint64(1); i <= 12; i++ {
		q.Enqueue(batch(i))
		assert.LessOrEqual(t, q.Len(), q.Cap())
	}

	assert.Equal(t, 10, q.Len())
	assert.Equal(t, []uint64{3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, seqs(q))
	assert.Equal(t, []uint64{1, 2}, evicted)
	assert.Equal(t, uint64(2), q.Evictions())
	assert.Equal(t, uint64(3), q.PeekOldest().Batch.Seq)
}

func TestOldestEvictionLaw(t *testing.T) {
	for _, capacity := range []int{1, 2, 5, 10} {
		for n := 0; n <= 3*capacity; n++ {
			q := New(capacity)
			for i := 1; i <= n; i++ {
				q.Enqueue(batch(uint64(i)))
			}

			want := []uint64(nil)
			first := n - capacity + 1
			if first < 1 {
				first = 1
			}
			for i := first; i <= n; i++ {
				want = append(want, uint64(i))
			}
			assert.Equal(t, want, seqs(q), "capacity=%d n=%d", capacity, n)
		}
	}
}

func TestInterleavedWrapAround(t *testing.T) {
	q := New(3)
	q.Enqueue(batch(1))
	q.Enqueue(batch(2))
	q.Dequeue()
	q.Enqueue(batch(3))
	q.Enqueue(batch(4))
	q.Enqueue(batch(5))

	assert.Equal(t, []uint64{3, 4, 5}, seqs(q))
	assert.Equal(t, uint64(1), q.Evictions())
}

func TestSlotBookkeepingIsMutableInPlace(t *testing.T) {
	q := New(2)
	q.Enqueue(batch(1))

	s := q.PeekOldest()
	s.RetryCount = 3
	assert.Equal(t, 3, q.PeekOldest().RetryCount)

	s.Valid = false
	assert.Nil(t, q.PeekOldest(), "invalid tail is not offered")
}

func TestSlotSeqIsUnique(t *testing.T) {
	q := New(2)
	q.Enqueue(batch(1))
	first := q.PeekOldest().Seq
	q.Enqueue(batch(2))
	q.Enqueue(batch(3))
	assert.NotEqual(t, first, q.PeekOldest().Seq)
}
