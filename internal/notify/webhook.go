package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/pantrysense/pantry-cli/internal/model"
	"github.com/pantrysense/pantry-cli/internal/resilience"
)

// WebhookChannel POSTs the alert as JSON to a configured endpoint.
type WebhookChannel struct {
	url    string
	client *http.Client
}

func NewWebhookChannel(url string) *WebhookChannel {
	return &WebhookChannel{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Send(ctx context.Context, alert model.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "notify: marshal webhook payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url,
		bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "notify: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "notify: post webhook")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	err = eris.Errorf("notify: webhook returned %d", resp.StatusCode)
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return resilience.NewTransientError(err, resp.StatusCode)
	}
	return err
}
