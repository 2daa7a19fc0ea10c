// Package pipeline fans each sealed batch out to the local log and the
// upload queue.
package pipeline

import (
	"github.com/sweeney/temp-logger/internal/sample"
)

// Logger is the durable local sink.
type Logger interface {
	Append(b *sample.Batch) error
}

// Enqueuer is the upload sink.
type Enqueuer interface {
	Enqueue(b *sample.Batch)
}

// Result reports what Dispatch did with a batch.
type Result struct {
	Logged   bool
	Enqueued bool
	LogErr   error
}

// Pipeline delivers each batch to both sinks in the same call.
type Pipeline struct {
	log   Logger
	queue Enqueuer

	dispatched uint64
	logErrors  uint64
}

// New creates a pipeline.
func New(log Logger, queue Enqueuer) *Pipeline {
	return &Pipeline{log: log, queue: queue}
}

// Dispatch appends the batch to the log and enqueues it for upload. Each
// sink gets its own copy. An invalid batch goes to neither sink; a log
// failure does not prevent the enqueue.
func (p *Pipeline) Dispatch(b *sample.Batch) Result {
	if b == nil || !b.Valid {
		return Result{}
	}

	var res Result
	if err := p.log.Append(b.Clone()); err != nil {
		res.LogErr = err
		p.logErrors++
	} else {
		res.Logged = true
	}

	p.queue.Enqueue(b.Clone())
	res.Enqueued = true
	p.dispatched++
	return res
}

// Dispatched returns the number of valid batches handled.
func (p *Pipeline) Dispatched() uint64 {
	return p.dispatched
}

// LogErrors returns the number of batches the log failed to store.
func (p *Pipeline) LogErrors() uint64 {
	return p.logErrors
}
