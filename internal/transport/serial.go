package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"
)

// UploadPrefix starts every hand-off line sent to the gateway.
const UploadPrefix = "JSON_UPLOAD:"

// Gateway acknowledgement lines.
const (
	AckLine = "ACK"
	NakLine = "NAK"
)

// DefaultBaudRate is the gateway link speed.
const DefaultBaudRate = 115200

// Port is the part of a serial port the transport uses.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// SerialConfig configures the gateway link.
type SerialConfig struct {
	Device   string
	BaudRate int
	// AckTimeout, if non-zero, makes Deliver wait for an ACK line from the
	// gateway. Zero means fire-and-forget: a complete write is success.
	AckTimeout time.Duration
}

// SerialTransport hands batches to a gateway process over a point-to-point
// serial link, one line per batch.
type SerialTransport struct {
	name       string
	port       Port
	ackTimeout time.Duration
}

// NewSerialTransport opens the serial device.
func NewSerialTransport(cfg SerialConfig) (*SerialTransport, error) {
	baud := cfg.BaudRate
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	p, err := serial.Open(cfg.Device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", cfg.Device, err)
	}
	return NewSerialTransportOnPort("serial:"+cfg.Device, p, cfg.AckTimeout), nil
}

// NewSerialTransportOnPort wraps an already open port.
func NewSerialTransportOnPort(name string, p Port, ackTimeout time.Duration) *SerialTransport {
	return &SerialTransport{name: name, port: p, ackTimeout: ackTimeout}
}

// Deliver writes one hand-off line and optionally waits for the gateway's ack.
func (t *SerialTransport) Deliver(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDelivery, t.name, err)
	}

	line := make([]byte, 0, len(UploadPrefix)+len(m.Payload)+1)
	line = append(line, UploadPrefix...)
	line = append(line, m.Payload...)
	line = append(line, '\n')
	if _, err := t.port.Write(line); err != nil {
		return fmt.Errorf("%w: %s: write: %v", ErrDelivery, t.name, err)
	}

	if t.ackTimeout <= 0 {
		return nil
	}

	reply, err := t.readLine(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDelivery, t.name, err)
	}
	if reply != AckLine {
		return fmt.Errorf("%w: %s: gateway replied %q", ErrDelivery, t.name, reply)
	}
	return nil
}

// readLine reads until a newline, the ack timeout or the context deadline.
func (t *SerialTransport) readLine(ctx context.Context) (string, error) {
	deadline := time.Now().Add(t.ackTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	var line bytes.Buffer
	buf := make([]byte, 64)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", fmt.Errorf("no ack within %s", t.ackTimeout)
		}
		if err := t.port.SetReadTimeout(remaining); err != nil {
			return "", fmt.Errorf("set read timeout: %w", err)
		}
		n, err := t.port.Read(buf)
		if err != nil {
			return "", fmt.Errorf("read ack: %w", err)
		}
		if n == 0 {
			return "", fmt.Errorf("no ack within %s", t.ackTimeout)
		}
		line.Write(buf[:n])
		if i := bytes.IndexByte(line.Bytes(), '\n'); i >= 0 {
			return strings.TrimSpace(string(line.Bytes()[:i])), nil
		}
	}
}

// Name returns the transport name.
func (t *SerialTransport) Name() string {
	return t.name
}

// Close closes the port.
func (t *SerialTransport) Close() error {
	return t.port.Close()
}
