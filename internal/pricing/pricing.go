// Package pricing turns supplier costs into AUD selling prices.
package pricing

import (
	"math"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/config"
)

// Quote is the full pricing breakdown of one product.
type Quote struct {
	TotalCostUSD    float64 `json:"total_cost_usd"`
	TotalCostAUD    float64 `json:"total_cost_aud"`
	PriceAUD        float64 `json:"price_aud"`
	ComparePriceAUD float64 `json:"compare_price_aud"`
	ProfitAUD       float64 `json:"profit_aud"`
	MarginPercent   float64 `json:"margin_percent"`
	MarkupPercent   float64 `json:"markup_percent"`
}

// Engine applies tiered markup, a profit floor and price-point rounding.
type Engine struct {
	cfg config.PricingConfig
}

// NewEngine creates a pricing engine.
func NewEngine(cfg config.PricingConfig) *Engine {
	if cfg.CompareMultiplier <= 1 {
		cfg.CompareMultiplier = 1.3
	}
	return &Engine{cfg: cfg}
}

// Quote prices a product costing costUSD plus shippingUSD. The markup tier
// is chosen on the product cost alone.
func (e *Engine) Quote(costUSD, shippingUSD float64) Quote {
	totalUSD := costUSD + shippingUSD
	totalAUD := totalUSD * e.cfg.USDToAUD
	markup := e.markupFor(costUSD)

	price := totalAUD * (1 + markup/100)
	if floor := totalAUD + e.cfg.MinProfitAUD; price < floor {
		price = floor
		if totalAUD > 0 {
			markup = (price - totalAUD) / totalAUD * 100
		}
	}
	price = PricePoint(price)
	compare := e.comparePrice(price)

	profit := price - totalAUD
	margin := 0.0
	if price > 0 {
		margin = profit / price * 100
	}
	return Quote{
		TotalCostUSD:    round(totalUSD, 2),
		TotalCostAUD:    round(totalAUD, 2),
		PriceAUD:        round(price, 2),
		ComparePriceAUD: round(compare, 2),
		ProfitAUD:       round(profit, 2),
		MarginPercent:   round(margin, 1),
		MarkupPercent:   round(markup, 1),
	}
}

func (e *Engine) markupFor(costUSD float64) float64 {
	tiers := e.cfg.Tiers
	for _, t := range tiers {
		if t.MaxCostUSD <= 0 || costUSD <= t.MaxCostUSD {
			return t.MarkupPercent
		}
	}
	if len(tiers) == 0 {
		return 0
	}
	return tiers[len(tiers)-1].MarkupPercent
}

// comparePrice is the strike-through price, rounded up to a clean figure.
func (e *Engine) comparePrice(price float64) float64 {
	c := price * e.cfg.CompareMultiplier
	switch {
	case c < 50:
		return math.Ceil(c)
	case c < 100:
		return math.Ceil(c/5) * 5
	default:
		return math.Ceil(c/10) * 10
	}
}

// PricePoint rounds to a retail price ending: x.95 under $50, the nearest
// $5 less a cent under $100, the nearest $10 less a cent above.
func PricePoint(price float64) float64 {
	switch {
	case price < 50:
		return math.Floor(price) + 0.95
	case price < 100:
		return math.Round(price/5)*5 - 0.01
	default:
		return math.Round(price/10)*10 - 0.01
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
