package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultHTTPTimeout bounds a single POST when the caller's context has no deadline.
const DefaultHTTPTimeout = 10 * time.Second

// HTTPConfig configures a collector endpoint.
type HTTPConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// HTTPTransport posts the payload to the collector. 200 and 201 mean the
// batch was stored; anything else is a failure.
type HTTPTransport struct {
	name   string
	url    string
	client *resty.Client
}

// NewHTTPTransport creates an HTTP transport named name.
func NewHTTPTransport(name string, cfg HTTPConfig) *HTTPTransport {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("X-API-Key", cfg.APIKey)
	}

	return &HTTPTransport{name: name, url: cfg.URL, client: client}
}

// Deliver posts one message.
func (t *HTTPTransport) Deliver(ctx context.Context, m Message) error {
	req := t.client.R().
		SetContext(ctx).
		SetBody(m.Payload)
	if m.BatchID != "" {
		req.SetHeader("Idempotency-Key", m.BatchID)
	}

	resp, err := req.Post(t.url)
	if err != nil {
		return fmt.Errorf("%w: %s: post: %v", ErrDelivery, t.name, err)
	}

	switch resp.StatusCode() {
	case http.StatusOK, http.StatusCreated:
		return nil
	default:
		return fmt.Errorf("%w: %s: status %d: %s", ErrDelivery, t.name, resp.StatusCode(), truncate(resp.String(), 120))
	}
}

// Name returns the transport name.
func (t *HTTPTransport) Name() string {
	return t.name
}

// Close releases idle connections.
func (t *HTTPTransport) Close() error {
	t.client.GetClient().CloseIdleConnections()
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
