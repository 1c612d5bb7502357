package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Webhook posts payloads as a JSON array to a fixed URL. Non-2xx responses
// are errors. The zero http.Client is replaced with one carrying a timeout
// so a hung receiver cannot block dispatch forever.
type Webhook struct {
	url    string
	client *http.Client
}

// WebhookOption configures a Webhook.
type WebhookOption func(*Webhook)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(w *Webhook) { w.client = c }
}

// NewWebhook creates a webhook dispatcher targeting url.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Send implements Dispatcher.
func (w *Webhook) Send(ctx context.Context, payloads []*Payload) error {
	body, err := json.Marshal(payloads)
	if err != nil {
		return fmt.Errorf("notify: marshal webhook payloads: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notify: webhook returned %s", resp.Status)
	}
	return nil
}
