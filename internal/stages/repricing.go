package stages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/pipeline"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/pricing"
)

const priceEpsilon = 0.01

// Repricing recomputes every costed product's price. Changed prices are
// pushed only to listings the agent confirmed.
type Repricing struct {
	Catalog    Catalog
	Pricing    *pricing.Engine
	Storefront Storefront
	Alerts     Alerter
	Logger     *slog.Logger
}

func (r *Repricing) Name() domain.StageName { return domain.StageRepricing }

func (r *Repricing) Run(ctx context.Context, sc pipeline.StageContext) (pipeline.Result, error) {
	if r.Pricing == nil {
		return pipeline.Result{}, errors.New("no pricing engine configured")
	}
	logger := orDefault(r.Logger).With("run_id", sc.RunID, "stage", domain.StageRepricing)

	products, err := r.Catalog.ListProducts(ctx, domain.ProductFilter{Costed: true})
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("failed to list costed products: %w", err)
	}

	var res pipeline.Result
	updated, pushed := 0, 0
	for i := range products {
		p := &products[i]
		oldPrice := p.PriceAUD
		applyQuote(p, r.Pricing.Quote(p.CostUSD, p.ShippingUSD))
		if err := r.Catalog.UpdateProduct(ctx, p); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", p.Title, err))
			continue
		}
		updated++

		if math.Abs(oldPrice-p.PriceAUD) <= priceEpsilon {
			continue
		}
		if r.Alerts != nil {
			r.Alerts.PriceChange(ctx, *p, oldPrice, p.PriceAUD)
		}
		if r.Storefront == nil || p.Listing.State != domain.SyncStateConfirmed || p.Listing.VariantID == "" {
			continue
		}
		out, err := r.Storefront.UpdatePrice(ctx, p.Listing.ListingID, p.Listing.VariantID, p.PriceAUD, p.ComparePriceAUD)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", p.Title, err))
			continue
		}
		if out.IsPending() {
			logger.Warn("price update not confirmed", "product_id", p.ProductID, "listing_id", p.Listing.ListingID)
			continue
		}
		pushed++
	}

	sc.Logf(domain.LogLevelInfo, "Repricing: %d updated, %d pushed to storefront", updated, pushed)
	res.Summary = domain.StageSummary{"updated": updated, "pushed": pushed}
	return res, nil
}
