// Package notify posts best-effort status notifications to webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Sink delivers short status strings. Delivery is best-effort: callers
// swallow and log errors, never fail the pipeline on them.
type Sink interface {
	Post(ctx context.Context, role, text string) error
}

// Webhook posts Discord-style JSON payloads to per-role webhook URLs, with
// an optional default URL for roles without their own.
type Webhook struct {
	defaultURL string
	perRole    map[string]string
	client     *http.Client
}

// NewWebhook creates a webhook sink. Either argument may be empty; a role
// that resolves to no URL makes Post a no-op.
func NewWebhook(defaultURL string, perRole map[string]string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Webhook{
		defaultURL: defaultURL,
		perRole:    perRole,
		client:     &http.Client{Timeout: timeout},
	}
}

// Post implements Sink.
func (w *Webhook) Post(ctx context.Context, role, text string) error {
	url := w.perRole[role]
	if url == "" {
		url = w.defaultURL
	}
	if url == "" {
		return nil
	}

	payload, err := json.Marshal(map[string]string{
		"content": fmt.Sprintf("[%s] %s", role, text),
	})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("post notification: status %d", resp.StatusCode)
	}
	return nil
}
