package stages

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/pipeline"
)

// ExternalSync mirrors confirmed listings into the warehouse.
type ExternalSync struct {
	Catalog Catalog
	Mirror  Mirror
	Logger  *slog.Logger
}

func (s *ExternalSync) Name() domain.StageName { return domain.StageExternalSync }

func (s *ExternalSync) Run(ctx context.Context, sc pipeline.StageContext) (pipeline.Result, error) {
	if s.Mirror == nil || !s.Mirror.Enabled() {
		sc.Logf(domain.LogLevelInfo, "External sync not configured, skipped")
		return pipeline.Result{Summary: domain.StageSummary{"synced": 0}}, nil
	}

	// Pending rows carry no storefront ids yet and are mirrored once confirmed.
	products, err := s.Catalog.ListProducts(ctx, domain.ProductFilter{ListingState: domain.SyncStateConfirmed, Limit: sc.Limits.SyncBatch})
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("failed to list listed products: %w", err)
	}
	if len(products) == 0 {
		return pipeline.Result{Summary: domain.StageSummary{"synced": 0}}, nil
	}

	synced, err := s.Mirror.UpsertProducts(ctx, products)
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("warehouse upsert: %w", err)
	}
	orDefault(s.Logger).Info("external sync complete", "run_id", sc.RunID, "synced", synced)
	sc.Logf(domain.LogLevelInfo, "External sync: %d products mirrored", synced)
	return pipeline.Result{Summary: domain.StageSummary{"synced": synced}}, nil
}
