package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// Fallback tries each transport in order until one succeeds, e.g. direct
// HTTPS first and an HTTP relay second.
type Fallback struct {
	chain []Transport
}

// NewFallback creates a fallback chain. The first transport is the primary.
func NewFallback(chain ...Transport) *Fallback {
	return &Fallback{chain: chain}
}

// Deliver succeeds if any transport in the chain accepts the message. When
// ctx has a deadline, each link gets an equal share of the time left, so a
// primary that hangs until its timeout still leaves room for the relay.
func (f *Fallback) Deliver(ctx context.Context, m Message) error {
	if len(f.chain) == 0 {
		return fmt.Errorf("%w: no transports configured", ErrDelivery)
	}

	var errs []error
	for i, t := range f.chain {
		err := deliverWithin(ctx, t, m, len(f.chain)-i)
		if err == nil {
			if i > 0 {
				log.Printf("transport: delivered via fallback %s", t.Name())
			}
			return nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return errors.Join(errs...)
}

// deliverWithin runs one link with 1/links of the remaining deadline.
func deliverWithin(ctx context.Context, t Transport, m Message, links int) error {
	deadline, ok := ctx.Deadline()
	if !ok || links <= 1 {
		return t.Deliver(ctx, m)
	}
	share := time.Until(deadline) / time.Duration(links)
	linkCtx, cancel := context.WithTimeout(ctx, share)
	defer cancel()
	return t.Deliver(linkCtx, m)
}

// Name lists the chain.
func (f *Fallback) Name() string {
	names := make([]string, len(f.chain))
	for i, t := range f.chain {
		names[i] = t.Name()
	}
	return "fallback(" + strings.Join(names, ",") + ")"
}

// Close closes every transport in the chain and returns the first error.
func (f *Fallback) Close() error {
	var first error
	for _, t := range f.chain {
		if err := t.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
