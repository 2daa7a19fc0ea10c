package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	complete bool
	err      error
}

func (t *fakeToken) Wait() bool                     { return t.complete }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.complete }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if t.complete {
		close(ch)
	}
	return ch
}

// fakeClient overrides the calls the transport makes; the embedded nil
// interface panics on anything else.
type fakeClient struct {
	paho.Client
	connected    bool
	token        *fakeToken
	topics       []string
	qos          []byte
	payloads     [][]byte
	disconnected bool
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.topics = append(c.topics, topic)
	c.qos = append(c.qos, qos)
	c.payloads = append(c.payloads, payload.([]byte))
	return c.token
}

func (c *fakeClient) Disconnect(uint) { c.disconnected = true }

func TestMQTTTopic(t *testing.T) {
	assert.Equal(t, "temp-logger/site1/dev1/readings", MQTTTopic("site1", "dev1"))
}

func TestMQTTTransportPublishesQoS1(t *testing.T) {
	c := &fakeClient{connected: true, token: &fakeToken{complete: true}}
	tr := NewMQTTTransportWithClient(c, MQTTTopic("s", "d"))

	require.NoError(t, tr.Deliver(context.Background(), Message{Payload: []byte(`{"x":1}`)}))
	assert.Equal(t, []string{"temp-logger/s/d/readings"}, c.topics)
	assert.Equal(t, []byte{1}, c.qos)
	assert.Equal(t, `{"x":1}`, string(c.payloads[0]))
	assert.True(t, tr.IsConnected())

	require.NoError(t, tr.Close())
	assert.True(t, c.disconnected)
}

func TestMQTTTransportFailures(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeClient
	}{
		{"disconnected", &fakeClient{connected: false, token: &fakeToken{complete: true}}},
		{"timeout", &fakeClient{connected: true, token: &fakeToken{complete: false}}},
		{"rejected", &fakeClient{connected: true, token: &fakeToken{complete: true, err: errors.New("not authorized")}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewMQTTTransportWithClient(tt.client, "t")
			err := tr.Deliver(context.Background(), Message{Payload: []byte(`{}`)})
			assert.ErrorIs(t, err, ErrDelivery)
		})
	}
}
