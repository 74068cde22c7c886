package stages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/adapter/storefront"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/pipeline"
)

// Listing defaults.
const (
	DefaultListingConcurrency = 4
	DefaultStock              = 100
	DefaultLowStockThreshold  = 5
)

// Listing creates storefront listings for the products this run approved.
// Requests fan out with bounded concurrency; a listing the agent never
// confirms is stored as pending with no storefront ids. Pending listings
// from earlier runs are looked up by handle first: a hit stores the ids,
// an unknown handle is listed again, no answer leaves them pending.
type Listing struct {
	Catalog     Catalog
	Storefront  Storefront
	Concurrency int
	Status      string
	Logger      *slog.Logger
}

func (l *Listing) Name() domain.StageName { return domain.StageListing }

// listingTally accumulates per-product outcomes across workers.
type listingTally struct {
	mu         sync.Mutex
	errors     []string
	listed     int
	pending    int
	reconciled int
}

func (t *listingTally) fail(p *domain.Product, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errors = append(t.errors, fmt.Sprintf("%s: %v", p.Title, err))
}

func (t *listingTally) add(counter *int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	*counter++
}

func (l *Listing) Run(ctx context.Context, sc pipeline.StageContext) (pipeline.Result, error) {
	if l.Storefront == nil {
		return pipeline.Result{}, fmt.Errorf("no storefront configured")
	}
	logger := orDefault(l.Logger).With("run_id", sc.RunID, "stage", domain.StageListing)

	stale, err := l.Catalog.ListProducts(ctx, domain.ProductFilter{
		ListingState: domain.SyncStatePending,
		Limit:        sc.Limits.MaxListings,
	})
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("failed to list pending listings: %w", err)
	}
	products, err := l.Catalog.ListProducts(ctx, domain.ProductFilter{
		ApprovedForRun: sc.RunID,
		Unlisted:       true,
		Limit:          sc.Limits.MaxListings,
	})
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("failed to list approved products: %w", err)
	}

	concurrency := l.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultListingConcurrency
	}

	tally := &listingTally{}
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i := range stale {
		p := &stale[i]
		g.Go(func() error {
			l.reconcile(ctx, sc, logger, p, tally)
			return nil
		})
	}
	for i := range products {
		p := &products[i]
		g.Go(func() error {
			l.create(ctx, sc, logger, p, tally)
			return nil
		})
	}
	_ = g.Wait()

	sc.Logf(domain.LogLevelInfo, "Listing: %d listed, %d pending of %d approved, %d reconciled of %d pending",
		tally.listed, tally.pending, len(products), tally.reconciled, len(stale))
	return pipeline.Result{
		Summary: domain.StageSummary{"listed": tally.listed, "pending": tally.pending, "reconciled": tally.reconciled},
		Errors:  tally.errors,
	}, nil
}

// reconcile resolves a listing stored as pending by an earlier run.
func (l *Listing) reconcile(ctx context.Context, sc pipeline.StageContext, logger *slog.Logger, p *domain.Product, tally *listingTally) {
	handle := p.Listing.Handle
	if handle == "" {
		handle = Slug(p.Title)
	}
	out, err := l.Storefront.FindListing(ctx, handle)
	switch {
	case errors.Is(err, storefront.ErrAgentRejected):
		// The storefront has no such listing; the create never landed.
		logger.Info("pending listing unknown to storefront, listing again", "product_id", p.ProductID, "handle", handle)
		l.create(ctx, sc, logger, p, tally)
		return
	case err != nil:
		tally.fail(p, err)
		return
	case out.IsPending():
		tally.add(&tally.pending)
		return
	}

	now := time.Now().UTC()
	p.Listing.ListingID = out.Value.ListingID
	p.Listing.VariantID = out.Value.VariantID
	if out.Value.Handle != "" {
		p.Listing.Handle = out.Value.Handle
	} else {
		p.Listing.Handle = handle
	}
	p.Listing.State = domain.SyncStateConfirmed
	p.Listing.SyncedAt = &now
	if err := l.Catalog.UpdateProduct(ctx, p); err != nil {
		tally.fail(p, err)
		return
	}
	tally.add(&tally.reconciled)
	sc.Logf(domain.LogLevelInfo, "Listing for %q confirmed as %s", p.Title, out.Value.ListingID)
	logger.Info("pending listing reconciled", "product_id", p.ProductID, "listing_id", out.Value.ListingID)
}

func (l *Listing) create(ctx context.Context, sc pipeline.StageContext, logger *slog.Logger, p *domain.Product, tally *listingTally) {
	out, err := l.Storefront.CreateListing(ctx, l.input(p))
	if err != nil {
		tally.fail(p, err)
		return
	}

	now := time.Now().UTC()
	p.Listing = domain.Listing{
		ListingID: out.Value.ListingID,
		VariantID: out.Value.VariantID,
		Handle:    out.Value.Handle,
		State:     out.State,
		SyncedAt:  &now,
	}
	if !p.Inventory.Tracked {
		p.Inventory = domain.Inventory{Tracked: true, Quantity: DefaultStock, LowStockThreshold: DefaultLowStockThreshold}
	}
	if err := l.Catalog.UpdateProduct(ctx, p); err != nil {
		tally.fail(p, err)
		return
	}

	if out.IsPending() {
		tally.add(&tally.pending)
		sc.Logf(domain.LogLevelWarn, "Listing for %q not confirmed by the agent; stored as pending", p.Title)
	} else {
		tally.add(&tally.listed)
	}
	logger.Info("listing requested", "product_id", p.ProductID, "state", out.State, "listing_id", out.Value.ListingID)
}

func (l *Listing) input(p *domain.Product) storefront.ListingInput {
	status := l.Status
	if status == "" {
		status = "draft"
	}
	handle := p.Listing.Handle
	if handle == "" {
		handle = Slug(p.Title)
	}
	quantity := p.Inventory.Quantity
	if !p.Inventory.Tracked {
		quantity = DefaultStock
	}
	return storefront.ListingInput{
		ProductID:       p.ProductID,
		Title:           p.Title,
		Description:     p.Description,
		Handle:          handle,
		Category:        p.Category,
		Tags:            p.Tags,
		PriceAUD:        p.PriceAUD,
		ComparePriceAUD: p.ComparePriceAUD,
		Status:          status,
		Quantity:        quantity,
		SupplierURL:     p.Supplier.URL,
	}
}
