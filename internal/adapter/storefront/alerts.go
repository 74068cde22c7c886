package storefront

import (
	"context"
	"fmt"
	"time"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
)

// Alerts sends operator notifications through the agent. Alerts never wait
// for a reply and never fail the caller.
type Alerts struct {
	sender Sender
}

// NewAlerts creates an alert sender.
func NewAlerts(sender Sender) *Alerts {
	return &Alerts{sender: sender}
}

type runAlert struct {
	RunID        string                                   `json:"run_id"`
	Kind         domain.RunKind                           `json:"kind"`
	Status       domain.RunStatus                         `json:"status"`
	StageResults map[domain.StageName]domain.StageSummary `json:"stage_results"`
	ErrorCount   int                                      `json:"error_count"`
	Errors       []domain.RunError                        `json:"errors,omitempty"`
	Duration     string                                   `json:"duration"`
	Message      string                                   `json:"message"`
}

// Notify reports a finished run: completion for completed runs, an error
// alert otherwise.
func (a *Alerts) Notify(ctx context.Context, run *domain.Run) {
	if run.Status == domain.RunStatusCompleted {
		a.PipelineComplete(ctx, run)
		return
	}
	a.PipelineError(ctx, run)
}

// PipelineComplete announces a completed run.
func (a *Alerts) PipelineComplete(ctx context.Context, run *domain.Run) {
	alert := newRunAlert(run)
	alert.Message = fmt.Sprintf("Pipeline %s completed: %d listed, %d errors",
		run.RunID, run.Counter(domain.StageListing, "listed"), len(run.Errors))
	_, _ = a.sender.Send(ctx, domain.CommandAlertPipelineComplete, alert, false)
}

// PipelineError announces a failed or cancelled run.
func (a *Alerts) PipelineError(ctx context.Context, run *domain.Run) {
	alert := newRunAlert(run)
	alert.Errors = run.Errors
	alert.Message = fmt.Sprintf("Pipeline %s ended %s with %d errors", run.RunID, run.Status, len(run.Errors))
	_, _ = a.sender.Send(ctx, domain.CommandAlertPipelineError, alert, false)
}

// LowStock warns that a product is running out.
func (a *Alerts) LowStock(ctx context.Context, p domain.Product) {
	_, _ = a.sender.Send(ctx, domain.CommandAlertLowStock, map[string]any{
		"product_id": p.ProductID,
		"title":      p.Title,
		"listing_id": p.Listing.ListingID,
		"quantity":   p.Inventory.Quantity,
		"threshold":  p.Inventory.LowStockThreshold,
	}, false)
}

// PriceChange reports a repriced product.
func (a *Alerts) PriceChange(ctx context.Context, p domain.Product, oldPrice, newPrice float64) {
	_, _ = a.sender.Send(ctx, domain.CommandAlertPriceChange, map[string]any{
		"product_id": p.ProductID,
		"title":      p.Title,
		"old_price":  oldPrice,
		"new_price":  newPrice,
	}, false)
}

func newRunAlert(run *domain.Run) runAlert {
	return runAlert{
		RunID:        run.RunID,
		Kind:         run.Kind,
		Status:       run.Status,
		StageResults: run.StageResults,
		ErrorCount:   len(run.Errors),
		Duration:     (time.Duration(run.DurationMs) * time.Millisecond).Round(time.Second).String(),
	}
}
