package escalate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Notifier delivers one notification on a channel. Implementations for
// email, SMS and push live with the deployment; this package only records
// outcomes.
type Notifier interface {
	Send(ctx context.Context, channel, target string, config map[string]any, payload []byte) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, channel, target string, config map[string]any, payload []byte) error

// Send implements Notifier.
func (f NotifierFunc) Send(ctx context.Context, channel, target string, config map[string]any, payload []byte) error {
	return f(ctx, channel, target, config, payload)
}

// WebhookNotifier POSTs the alert payload as JSON to the level's target URL.
// It only understands the "webhook" channel; other channels fail with an
// error that ends up in the escalation row.
type WebhookNotifier struct {
	Client *http.Client
}

// NewWebhookNotifier creates a WebhookNotifier with a default client.
// Per-dispatch deadlines come from the caller's context.
func NewWebhookNotifier() *WebhookNotifier {
	return &WebhookNotifier{Client: &http.Client{Timeout: 30 * time.Second}}
}

// Send implements Notifier.
func (n *WebhookNotifier) Send(ctx context.Context, channel, target string, config map[string]any, payload []byte) error {
	if channel != ChannelWebhook {
		return fmt.Errorf("webhook notifier: unsupported channel %q", channel)
	}
	if target == "" {
		return fmt.Errorf("webhook notifier: no target URL")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("webhook notifier: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.Client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook notifier: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook notifier: status %d", resp.StatusCode)
	}
	return nil
}
