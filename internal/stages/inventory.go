package stages

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/pipeline"
)

// Inventory pushes tracked stock levels of confirmed listings to the
// storefront and alerts on products at or below their stock threshold.
type Inventory struct {
	Catalog    Catalog
	Storefront Storefront
	Alerts     Alerter
	Logger     *slog.Logger
}

func (s *Inventory) Name() domain.StageName { return domain.StageInventory }

func (s *Inventory) Run(ctx context.Context, sc pipeline.StageContext) (pipeline.Result, error) {
	logger := orDefault(s.Logger).With("run_id", sc.RunID, "stage", domain.StageInventory)
	var res pipeline.Result

	pushed, unconfirmed := 0, 0
	if s.Storefront != nil {
		listed, err := s.Catalog.ListProducts(ctx, domain.ProductFilter{
			ListingState: domain.SyncStateConfirmed,
			Limit:        sc.Limits.SyncBatch,
		})
		if err != nil {
			return pipeline.Result{}, fmt.Errorf("failed to list confirmed listings: %w", err)
		}
		for _, p := range listed {
			if !p.Inventory.Tracked || p.Listing.VariantID == "" {
				continue
			}
			out, err := s.Storefront.SetInventory(ctx, p.Listing.ListingID, p.Listing.VariantID, p.Inventory.Quantity)
			if err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", p.Title, err))
				continue
			}
			if out.IsPending() {
				unconfirmed++
				logger.Warn("inventory push not confirmed", "product_id", p.ProductID, "listing_id", p.Listing.ListingID)
				continue
			}
			pushed++
		}
	}

	products, err := s.Catalog.ListProducts(ctx, domain.ProductFilter{LowStock: true})
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("failed to list low stock products: %w", err)
	}
	for _, p := range products {
		if s.Alerts != nil {
			s.Alerts.LowStock(ctx, p)
		}
		sc.Logf(domain.LogLevelWarn, "Low stock: %s (%d left)", p.Title, p.Inventory.Quantity)
	}
	logger.Info("inventory check complete", "low_stock", len(products), "pushed", pushed, "unconfirmed", unconfirmed)
	res.Summary = domain.StageSummary{"low_stock": len(products), "inventory_pushed": pushed, "inventory_pending": unconfirmed}
	return res, nil
}
