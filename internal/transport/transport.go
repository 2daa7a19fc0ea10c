// Package transport delivers serialized batches to the collector. The retry
// engine depends only on the Transport interface; which implementation is
// in use changes nothing upstream.
package transport

import (
	"context"
	"errors"
)

// ErrDelivery marks a failed delivery attempt. Every Deliver error wraps it.
var ErrDelivery = errors.New("delivery failed")

// Message is one serialized batch.
type Message struct {
	// BatchID identifies the batch across retries so the collector can
	// discard duplicates.
	BatchID string
	Payload []byte
}

// Transport attempts to deliver one message and reports success or failure.
type Transport interface {
	// Deliver blocks until the message is accepted, rejected or ctx is done.
	Deliver(ctx context.Context, m Message) error

	// Name identifies the transport in logs and status.
	Name() string

	// Close releases the underlying connection.
	Close() error
}

// ConnectionStatus is implemented by transports with a persistent connection.
type ConnectionStatus interface {
	IsConnected() bool
}
