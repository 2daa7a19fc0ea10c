// Package queue holds batches awaiting upload in a fixed-capacity ring.
//
// When the ring is full, Enqueue evicts the oldest slot: freshness wins
// over completeness under sustained backpressure. Evictions are counted,
// not reported as errors. Not safe for concurrent use; owned by the main loop.
package queue

import (
	"log"

	"github.com/sweeney/temp-logger/internal/sample"
)

// DefaultCapacity is the number of batches held while the collector is unreachable.
const DefaultCapacity = 10

// Slot wraps a queued batch with its delivery bookkeeping. The retry engine
// may only change RetryCount and Valid of the slot returned by PeekOldest.
type Slot struct {
	Batch      *sample.Batch
	RetryCount int
	Valid      bool
	// Seq is assigned at enqueue and never reused.
	Seq uint64
}

// Queue is a ring of slots. head is the next write position, tail the oldest.
type Queue struct {
	slots    []Slot
	capacity int
	head     int
	tail     int
	count    int
	nextSeq  uint64

	evictions uint64
	overflow  bool // true if any slot was evicted since the last dequeue

	// OnEvict, if set, is called with every evicted slot.
	OnEvict func(Slot)
}

// New creates a queue with the given capacity (DefaultCapacity if <= 0).
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		slots:    make([]Slot, capacity),
		capacity: capacity,
	}
}

// Enqueue inserts batch at the head, evicting the oldest slot first if full.
func (q *Queue) Enqueue(batch *sample.Batch) {
	if q.count == q.capacity {
		evicted := q.slots[q.tail]
		q.slots[q.tail] = Slot{}
		q.tail = (q.tail + 1) % q.capacity
		q.count--
		q.evictions++
		if !q.overflow {
			log.Printf("queue: full (%d batches), evicting oldest", q.capacity)
			q.overflow = true
		}
		if q.OnEvict != nil {
			q.OnEvict(evicted)
		}
	}

	q.nextSeq++
	q.slots[q.head] = Slot{Batch: batch, Valid: true, Seq: q.nextSeq}
	q.head = (q.head + 1) % q.capacity
	q.count++
}

// PeekOldest returns the tail slot, or nil when the queue is empty or the
// tail is not valid.
func (q *Queue) PeekOldest() *Slot {
	if q.count == 0 {
		return nil
	}
	s := &q.slots[q.tail]
	if !s.Valid {
		return nil
	}
	return s
}

// Dequeue removes the tail slot. It is a no-op on an empty queue.
func (q *Queue) Dequeue() {
	if q.count == 0 {
		return
	}
	q.slots[q.tail] = Slot{}
	q.tail = (q.tail + 1) % q.capacity
	q.count--
	q.overflow = false
}

// Len returns the number of occupied slots. Always <= Cap().
func (q *Queue) Len() int {
	return q.count
}

// Cap returns the fixed capacity.
func (q *Queue) Cap() int {
	return q.capacity
}

// Evictions returns the number of batches dropped by the overflow policy.
func (q *Queue) Evictions() uint64 {
	return q.evictions
}

// Snapshot returns the queued batches, oldest first.
func (q *Queue) Snapshot() []*sample.Batch {
	out := make([]*sample.Batch, 0, q.count)
	for i := 0; i < q.count; i++ {
		out = append(out, q.slots[(q.tail+i)%q.capacity].Batch)
	}
	return out
}
