// Package agentlink implements the outbound channels to the external agent.
package agentlink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
)

// APIKeyHeader carries the shared secret on both directions of the bridge.
const APIKeyHeader = "X-API-Key"

// Webhook posts envelopes to the agent's HTTP endpoint.
type Webhook struct {
	url    string
	apiKey string
	client *http.Client
}

// NewWebhook creates a webhook transport. An empty url disables it.
func NewWebhook(url, apiKey string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Webhook{
		url:    strings.TrimSpace(url),
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether a webhook URL is configured.
func (w *Webhook) Enabled() bool {
	return w.url != ""
}

// Deliver makes one POST attempt; any non-2xx status is an error.
func (w *Webhook) Deliver(ctx context.Context, env domain.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.apiKey != "" {
		req.Header.Set(APIKeyHeader, w.apiKey)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach agent: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("agent webhook returned status %d", resp.StatusCode)
	}
	return nil
}
