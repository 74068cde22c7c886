package stages

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/pipeline"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/pricing"
)

// Sourcing attaches the best supplier offer to unsourced products and
// prices them.
type Sourcing struct {
	Catalog Catalog
	Finder  SupplierFinder
	Pricing *pricing.Engine
	Logger  *slog.Logger
}

func (s *Sourcing) Name() domain.StageName { return domain.StageSourcing }

func (s *Sourcing) Run(ctx context.Context, sc pipeline.StageContext) (pipeline.Result, error) {
	logger := orDefault(s.Logger).With("run_id", sc.RunID, "stage", domain.StageSourcing)
	products, err := s.Catalog.ListProducts(ctx, domain.ProductFilter{NeedsSupplier: true, Limit: sc.Limits.MaxProducts})
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("failed to list unsourced products: %w", err)
	}

	var res pipeline.Result
	sourced := 0
	for i := range products {
		p := &products[i]
		if s.Finder == nil {
			break
		}
		offers, err := s.Finder.Find(ctx, searchQuery(p.Title))
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", p.Title, err))
			continue
		}
		best, ok := bestOffer(offers)
		if !ok {
			logger.Debug("no supplier found", "product_id", p.ProductID)
			continue
		}

		p.Supplier = domain.Supplier{Platform: best.Platform, URL: best.URL, Rating: best.Rating, Orders: best.Orders}
		p.CostUSD = best.CostUSD
		p.ShippingUSD = best.ShippingUSD
		if s.Pricing != nil && p.CostUSD > 0 {
			applyQuote(p, s.Pricing.Quote(p.CostUSD, p.ShippingUSD))
		}
		if err := s.Catalog.UpdateProduct(ctx, p); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", p.Title, err))
			continue
		}
		sourced++
	}

	sc.Logf(domain.LogLevelInfo, "Sourcing: %d of %d products sourced", sourced, len(products))
	res.Summary = domain.StageSummary{"sourced": sourced, "total": len(products)}
	return res, nil
}

func applyQuote(p *domain.Product, q pricing.Quote) {
	p.PriceAUD = q.PriceAUD
	p.ComparePriceAUD = q.ComparePriceAUD
	p.MarginPercent = q.MarginPercent
}

// searchQuery keeps the first six words of a title.
func searchQuery(title string) string {
	words := strings.Fields(title)
	if len(words) > 6 {
		words = words[:6]
	}
	return strings.Join(words, " ")
}

func bestOffer(offers []Offer) (Offer, bool) {
	var (
		best      Offer
		bestScore = -1
	)
	for _, o := range offers {
		if o.URL == "" || o.CostUSD <= 0 {
			continue
		}
		if score := scoreOffer(o); score > bestScore {
			best, bestScore = o, score
		}
	}
	return best, bestScore >= 0
}

// scoreOffer favours cheap, proven, well-rated suppliers.
func scoreOffer(o Offer) int {
	score := 0
	switch {
	case o.CostUSD <= 5:
		score += 15
	case o.CostUSD <= 15:
		score += 12
	case o.CostUSD <= 30:
		score += 10
	default:
		score += 5
	}
	switch {
	case o.Orders > 10000:
		score += 30
	case o.Orders > 5000:
		score += 25
	case o.Orders > 1000:
		score += 20
	case o.Orders > 100:
		score += 10
	}
	switch {
	case o.Rating >= 4.8:
		score += 20
	case o.Rating >= 4.5:
		score += 15
	case o.Rating >= 4.0:
		score += 10
	}
	if o.Platform == "cjdropshipping" {
		score += 5
	}
	return score
}
