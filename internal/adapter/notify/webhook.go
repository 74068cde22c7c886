// Package notify posts run summaries to a workflow automation webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
)

// Source identifies this service in outbound events.
const Source = "catalog-pipeline"

// Event is the body posted for every finished run.
type Event struct {
	Event      string                                   `json:"event"`
	RunID      string                                   `json:"run_id"`
	Kind       domain.RunKind                           `json:"kind"`
	Status     domain.RunStatus                         `json:"status"`
	Discovered int                                      `json:"discovered"`
	Listed     int                                      `json:"listed"`
	ErrorCount int                                      `json:"error_count"`
	DurationMs int64                                    `json:"duration_ms"`
	Results    map[domain.StageName]domain.StageSummary `json:"results"`
	Source     string                                   `json:"source"`
	Timestamp  time.Time                                `json:"timestamp"`
}

// Webhook is a best-effort run notifier. An empty URL disables it.
type Webhook struct {
	url    string
	apiKey string
	client *http.Client
	logger *slog.Logger
}

// NewWebhook creates a webhook notifier.
func NewWebhook(url, apiKey string, timeout time.Duration, logger *slog.Logger) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		url:    strings.TrimSpace(url),
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
		logger: logger.With("component", "notify"),
	}
}

// Enabled reports whether a URL is configured.
func (w *Webhook) Enabled() bool { return w.url != "" }

// Notify posts the run summary. Failures are logged only.
func (w *Webhook) Notify(ctx context.Context, run *domain.Run) {
	if !w.Enabled() {
		return
	}
	if err := w.post(ctx, newEvent(run)); err != nil {
		w.logger.Warn("run webhook failed", "run_id", run.RunID, "error", err)
		return
	}
	w.logger.Info("run webhook sent", "run_id", run.RunID, "status", run.Status)
}

func newEvent(run *domain.Run) Event {
	name := "pipeline_complete"
	if run.Status != domain.RunStatusCompleted {
		name = "pipeline_" + string(run.Status)
	}
	return Event{
		Event:      name,
		RunID:      run.RunID,
		Kind:       run.Kind,
		Status:     run.Status,
		Discovered: run.Counter(domain.StageDiscovery, "saved"),
		Listed:     run.Counter(domain.StageListing, "listed"),
		ErrorCount: len(run.Errors),
		DurationMs: run.DurationMs,
		Results:    run.StageResults,
		Source:     Source,
		Timestamp:  time.Now().UTC(),
	}
}

func (w *Webhook) post(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.apiKey != "" {
		req.Header.Set("X-API-Key", w.apiKey)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
