package transport

import (
	"context"
	"fmt"
	"log"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// DefaultPublishTimeout bounds a publish when ctx has no deadline.
const DefaultPublishTimeout = 5 * time.Second

// MQTTTopic returns the readings topic for a site and device.
func MQTTTopic(siteID, deviceID string) string {
	return fmt.Sprintf("temp-logger/%s/%s/readings", siteID, deviceID)
}

// MQTTTransport publishes batches to a broker at QoS 1.
type MQTTTransport struct {
	client paho.Client
	topic  string
}

// NewMQTTTransport connects to the broker. If the broker is not reachable
// within the connect timeout the client keeps retrying in the background
// and deliveries fail until it connects.
func NewMQTTTransport(broker, clientID, topic string) (*MQTTTransport, error) {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Printf("mqtt: broker %s not reachable yet, retrying in background", broker)
		return NewMQTTTransportWithClient(client, topic), nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker %s: %w", broker, err)
	}

	return NewMQTTTransportWithClient(client, topic), nil
}

// NewMQTTTransportWithClient wraps an existing client.
func NewMQTTTransportWithClient(client paho.Client, topic string) *MQTTTransport {
	return &MQTTTransport{client: client, topic: topic}
}

// Deliver publishes one message and waits for the broker's PUBACK.
func (t *MQTTTransport) Deliver(ctx context.Context, m Message) error {
	if !t.client.IsConnected() {
		return fmt.Errorf("%w: mqtt: not connected", ErrDelivery)
	}

	timeout := DefaultPublishTimeout
	if d, ok := ctx.Deadline(); ok {
		timeout = time.Until(d)
	}

	token := t.client.Publish(t.topic, 1, false, m.Payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: mqtt: publish timeout", ErrDelivery)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: mqtt: publish: %v", ErrDelivery, err)
	}
	return nil
}

// Name returns "mqtt".
func (t *MQTTTransport) Name() string {
	return "mqtt"
}

// Topic returns the publish topic.
func (t *MQTTTransport) Topic() string {
	return t.topic
}

// IsConnected reports whether the broker connection is up.
func (t *MQTTTransport) IsConnected() bool {
	return t.client.IsConnected()
}

// Close disconnects from the broker.
func (t *MQTTTransport) Close() error {
	t.client.Disconnect(1000)
	return nil
}
