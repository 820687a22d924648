package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"
)

const (
	requestTimeout = 5 * time.Second
	maxRetries     = 3
)

// Webhook posts prompts to an HTTP endpoint.
type Webhook struct {
	cfg     WebhookConfig
	client  *http.Client
	backoff time.Duration
}

// NewWebhook validates cfg and returns a webhook notifier.
func NewWebhook(cfg WebhookConfig) (*Webhook, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	if _, err := FormatPayload(cfg.Format, Prompt{}); err != nil {
		return nil, err
	}
	return &Webhook{
		cfg:     cfg,
		client:  &http.Client{Timeout: requestTimeout},
		backoff: time.Second,
	}, nil
}

// Name identifies the webhook in logs and metrics.
func (w *Webhook) Name() string { return "webhook:" + w.cfg.Format }

// Notify posts the prompt with retry on 5xx and transport errors.
func (w *Webhook) Notify(ctx context.Context, p Prompt) error {
	body, err := FormatPayload(w.cfg.Format, p)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * w.backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range w.cfg.Headers {
			req.Header.Set(k, v)
		}

		resp, err := w.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return fmt.Errorf("webhook rejected: HTTP %d", resp.StatusCode)
		}
		lastErr = fmt.Errorf("webhook server error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("webhook failed after %d attempts: %w", maxRetries, lastErr)
}
