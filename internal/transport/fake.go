package transport

import (
	"context"
	"fmt"
)

// FakeTransport records messages and returns scripted results.
type FakeTransport struct {
	// Results are returned by successive Deliver calls. Once exhausted,
	// Err is returned.
	Results []error

	// Err is returned after Results is exhausted.
	Err error

	// Messages contains every message passed to Deliver, including failed ones.
	Messages []Message

	// Delivered contains the messages that were accepted.
	Delivered []Message

	// Closed tracks if Close was called.
	Closed bool

	TransportName string
}

// NewFakeTransport creates a fake that accepts everything.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{TransportName: "fake"}
}

// Deliver records the message and returns the next scripted result.
func (f *FakeTransport) Deliver(ctx context.Context, m Message) error {
	f.Messages = append(f.Messages, m)

	err := f.Err
	if len(f.Results) > 0 {
		err = f.Results[0]
		f.Results = f.Results[1:]
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	f.Delivered = append(f.Delivered, m)
	return nil
}

// Attempts returns the number of Deliver calls.
func (f *FakeTransport) Attempts() int {
	return len(f.Messages)
}

// Name returns the configured name.
func (f *FakeTransport) Name() string {
	if f.TransportName == "" {
		return "fake"
	}
	return f.TransportName
}

// Close marks the transport closed.
func (f *FakeTransport) Close() error {
	f.Closed = true
	return nil
}
