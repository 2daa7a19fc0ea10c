package transport

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePort is a scripted serial port. Reads return the replies in order,
// then 0 bytes as a read timeout does.
type fakePort struct {
	written  bytes.Buffer
	replies  [][]byte
	writeErr error
	closed   bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.written.Write(b)
}

func (p *fakePort) Read(b []byte) (int, error) {
	if len(p.replies) == 0 {
		return 0, nil
	}
	n := copy(b, p.replies[0])
	p.replies = p.replies[1:]
	return n, nil
}

func (p *fakePort) SetReadTimeout(time.Duration) error { return nil }

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func TestSerialTransportWritesUploadLine(t *testing.T) {
	p := &fakePort{}
	tr := NewSerialTransportOnPort("serial:test", p, 0)

	require.NoError(t, tr.Deliver(context.Background(), Message{Payload: []byte(`{"a":1}`)}))
	assert.Equal(t, "JSON_UPLOAD:{\"a\":1}\n", p.written.String())

	require.NoError(t, tr.Close())
	assert.True(t, p.closed)
}

func TestSerialTransportWaitsForAck(t *testing.T) {
	p := &fakePort{replies: [][]byte{[]byte("AC"), []byte("K\r\n")}}
	tr := NewSerialTransportOnPort("serial:test", p, time.Second)

	assert.NoError(t, tr.Deliver(context.Background(), Message{Payload: []byte(`{}`)}))
}

func TestSerialTransportNak(t *testing.T) {
	p := &fakePort{replies: [][]byte{[]byte("NAK\n")}}
	tr := NewSerialTransportOnPort("serial:test", p, time.Second)

	err := tr.Deliver(context.Background(), Message{Payload: []byte(`{}`)})
	assert.ErrorIs(t, err, ErrDelivery)
	assert.Contains(t, err.Error(), "NAK")
}

func TestSerialTransportAckTimeout(t *testing.T) {
	tr := NewSerialTransportOnPort("serial:test", &fakePort{}, time.Second)

	err := tr.Deliver(context.Background(), Message{Payload: []byte(`{}`)})
	assert.ErrorIs(t, err, ErrDelivery)
}

func TestSerialTransportWriteError(t *testing.T) {
	tr := NewSerialTransportOnPort("serial:test", &fakePort{writeErr: errors.New("unplugged")}, 0)

	err := tr.Deliver(context.Background(), Message{Payload: []byte(`{}`)})
	assert.ErrorIs(t, err, ErrDelivery)
}

func TestSerialTransportCancelledContext(t *testing.T) {
	p := &fakePort{}
	tr := NewSerialTransportOnPort("serial:test", p, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, tr.Deliver(ctx, Message{Payload: []byte(`{}`)}), ErrDelivery)
	assert.Zero(t, p.written.Len())
}
