// Package stages implements the pipeline stages over the product catalog.
package stages

import (
	"context"
	"log/slog"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/adapter/llm"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/adapter/storefront"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/config"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/pipeline"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/policy"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/pricing"
)

// Catalog is the product half of the repository.
type Catalog interface {
	CreateProduct(ctx context.Context, product *domain.Product) error
	GetProductBySourceURL(ctx context.Context, sourceURL string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product *domain.Product) error
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
}

// Storefront is the part of the storefront proxy the stages use.
type Storefront interface {
	CreateListing(ctx context.Context, in storefront.ListingInput) (domain.Outcome[storefront.ListingResult], error)
	FindListing(ctx context.Context, handle string) (domain.Outcome[storefront.ListingResult], error)
	SetInventory(ctx context.Context, listingID, variantID string, quantity int) (domain.Outcome[storefront.InventoryResult], error)
	UpdatePrice(ctx context.Context, listingID, variantID string, price, comparePrice float64) (domain.Outcome[storefront.PriceResult], error)
}

// Alerter sends catalog alerts. *storefront.Alerts implements it.
type Alerter interface {
	LowStock(ctx context.Context, p domain.Product)
	PriceChange(ctx context.Context, p domain.Product, oldPrice, newPrice float64)
}

// Mirror is an external copy of the listed catalog.
type Mirror interface {
	Enabled() bool
	UpsertProducts(ctx context.Context, products []domain.Product) (int, error)
}

// Deps are the collaborators shared by all stages.
type Deps struct {
	Catalog    Catalog
	Candidates CandidateSource
	Suppliers  SupplierFinder
	Pricing    *pricing.Engine
	LLM        llm.LLMClient
	LLMConfig  config.LLMConfig
	Policy     *policy.Engine
	Storefront Storefront
	Alerts     Alerter
	Mirror     Mirror
	Pipeline   config.PipelineConfig
	Logger     *slog.Logger
}

// NewRegistry builds every stage the pipeline plans reference.
func NewRegistry(deps Deps) []pipeline.Stage {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return []pipeline.Stage{
		&Discovery{Catalog: deps.Catalog, Source: deps.Candidates, MinTrendScore: deps.Pipeline.MinTrendScore, Logger: deps.Logger},
		&Sourcing{Catalog: deps.Catalog, Finder: deps.Suppliers, Pricing: deps.Pricing, Logger: deps.Logger},
		&Enrichment{Catalog: deps.Catalog, LLM: deps.LLM, Model: deps.LLMConfig.Model, MaxTokens: deps.LLMConfig.MaxTokens, Logger: deps.Logger},
		&Validation{Catalog: deps.Catalog, Policy: deps.Policy, MinTrendScore: deps.Pipeline.MinTrendScore, Logger: deps.Logger},
		&Listing{
			Catalog:     deps.Catalog,
			Storefront:  deps.Storefront,
			Concurrency: deps.Pipeline.ListingConcurrency,
			Status:      deps.Pipeline.DefaultListing,
			Logger:      deps.Logger,
		},
		&ExternalSync{Catalog: deps.Catalog, Mirror: deps.Mirror, Logger: deps.Logger},
		&Repricing{Catalog: deps.Catalog, Pricing: deps.Pricing, Storefront: deps.Storefront, Alerts: deps.Alerts, Logger: deps.Logger},
		&Inventory{Catalog: deps.Catalog, Storefront: deps.Storefront, Alerts: deps.Alerts, Logger: deps.Logger},
	}
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
