package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/adapter/llm"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/adapter/storefront"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/config"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/pipeline"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/policy"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/pricing"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/repository"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/tests/helpers"
)

func stageCtx(runID string) pipeline.StageContext {
	return pipeline.StageContext{
		RunID:  runID,
		Kind:   domain.RunKindFull,
		Limits: domain.Limits{MaxProducts: 50, MaxListings: 20, SyncBatch: 50},
	}
}

func seed(t *testing.T, store *repository.SQLiteStore, p domain.Product) domain.Product {
	t.Helper()
	if p.ProductID == "" {
		p.ProductID = "prod_" + Slug(p.Title)
	}
	p.Active = true
	require.NoError(t, store.CreateProduct(context.Background(), &p))
	return p
}

func reload(t *testing.T, store *repository.SQLiteStore, id string) *domain.Product {
	t.Helper()
	p, err := store.GetProduct(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func newPricing() *pricing.Engine {
	return pricing.NewEngine(config.Default().Pricing)
}

func newPolicy(t *testing.T) *policy.Engine {
	t.Helper()
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)
	return engine
}

func feedServer(t *testing.T, candidates []domain.Candidate) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"candidates": candidates})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestDiscoverySavesQualifiedCandidates(t *testing.T) {
	store := helpers.NewTestSQLiteStore(t)
	feed := feedServer(t, []domain.Candidate{
		{Title: "Sunset Lamp", Source: "feed", SourceURL: "https://src/lamp", TrendScore: 80},
		{Title: "Sunset Lamp dup", Source: "feed", SourceURL: "https://src/lamp", TrendScore: 75},
		{Title: "Desk Fan", Source: "feed", SourceURL: "https://src/fan", TrendScore: 60, Category: "home"},
		{Title: "Old Widget", Source: "feed", SourceURL: "https://src/widget", TrendScore: 10},
	})
	stage := &Discovery{Catalog: store, Source: NewFeedSource(feed.URL, time.Second), MinTrendScore: 50}

	res, err := stage.Run(context.Background(), stageCtx("run_1"))
	require.NoError(t, err)
	assert.Equal(t, 4, res.Summary["discovered"])
	assert.Equal(t, 2, res.Summary["saved"])

	fan, err := store.GetProductBySourceURL(context.Background(), "https://src/fan")
	require.NoError(t, err)
	require.NotNil(t, fan)
	assert.True(t, fan.Active)
	assert.Contains(t, fan.Tags, "home")

	again, err := stage.Run(context.Background(), stageCtx("run_2"))
	require.NoError(t, err)
	assert.Equal(t, 0, again.Summary["saved"])
}

func TestDiscoveryFeedErrorFailsStage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	stage := &Discovery{Catalog: helpers.NewTestSQLiteStore(t), Source: NewFeedSource(server.URL, time.Second)}
	_, err := stage.Run(context.Background(), stageCtx("run_1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestSourcingPicksBestOffer(t *testing.T) {
	store := helpers.NewTestSQLiteStore(t)
	lamp := seed(t, store, domain.Product{Title: "Sunset Lamp with remote control and timer modes"})

	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		_ = json.NewEncoder(w).Encode(map[string]any{"offers": []Offer{
			{Platform: "aliexpress", URL: "https://ali/1", CostUSD: 12, ShippingUSD: 2, Orders: 50, Rating: 4.1},
			{Platform: "cjdropshipping", URL: "https://cj/1", CostUSD: 11, ShippingUSD: 3, Orders: 12000, Rating: 4.9},
			{Platform: "other", URL: "", CostUSD: 1},
		}})
	}))
	defer server.Close()

	engine := newPricing()
	stage := &Sourcing{Catalog: store, Finder: NewCatalogFinder(server.URL, time.Second), Pricing: engine}
	res, err := stage.Run(context.Background(), stageCtx("run_1"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary["sourced"])
	assert.Equal(t, "Sunset Lamp with remote control and", gotQuery)

	got := reload(t, store, lamp.ProductID)
	assert.Equal(t, "https://cj/1", got.Supplier.URL)
	assert.Equal(t, 11.0, got.CostUSD)
	quote := engine.Quote(11, 3)
	assert.Equal(t, quote.PriceAUD, got.PriceAUD)
	assert.Equal(t, quote.MarginPercent, got.MarginPercent)
}

func TestSourcingWithoutOffersLeavesProduct(t *testing.T) {
	store := helpers.NewTestSQLiteStore(t)
	lamp := seed(t, store, domain.Product{Title: "Sunset Lamp"})

	stage := &Sourcing{Catalog: store, Finder: NewCatalogFinder("", time.Second), Pricing: newPricing()}
	res, err := stage.Run(context.Background(), stageCtx("run_1"))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Summary["sourced"])
	assert.Equal(t, 1, res.Summary["total"])
	assert.Empty(t, reload(t, store, lamp.ProductID).Supplier.URL)
}

type rateLimitedLLM struct{ calls int32 }

func (r *rateLimitedLLM) CreateChatCompletion(context.Context, *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	atomic.AddInt32(&r.calls, 1)
	return nil, llm.ErrRateLimited
}

func TestEnrichmentDescribesPricedProducts(t *testing.T) {
	store := helpers.NewTestSQLiteStore(t)
	priced := seed(t, store, domain.Product{Title: "Sunset Lamp", PriceAUD: 49.95})
	unpriced := seed(t, store, domain.Product{Title: "Desk Fan"})

	stage := &Enrichment{Catalog: store, LLM: llm.NewMockClient(), Model: "gpt-4o-mini", MaxTokens: 400}
	res, err := stage.Run(context.Background(), stageCtx("run_1"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary["enriched"])
	assert.Contains(t, reload(t, store, priced.ProductID).Description, "Sunset Lamp")
	assert.Empty(t, reload(t, store, unpriced.ProductID).Description)
}

func TestEnrichmentRateLimitFailsStage(t *testing.T) {
	store := helpers.NewTestSQLiteStore(t)
	seed(t, store, domain.Product{Title: "Sunset Lamp", PriceAUD: 49.95})
	seed(t, store, domain.Product{Title: "Desk Fan", PriceAUD: 29.95})

	client := &rateLimitedLLM{}
	_, err := (&Enrichment{Catalog: store, LLM: client}).Run(context.Background(), stageCtx("run_1"))
	require.EqualError(t, err, "rate limited")
	assert.Equal(t, int32(1), atomic.LoadInt32(&client.calls))
}

func TestValidationDecisions(t *testing.T) {
	store := helpers.NewTestSQLiteStore(t)
	trending := seed(t, store, domain.Product{Title: "Trending", CostUSD: 10, MarginPercent: 30, TrendScore: 70, Supplier: domain.Supplier{URL: "https://s/1"}})
	thin := seed(t, store, domain.Product{Title: "Thin", CostUSD: 10, MarginPercent: 12.5, TrendScore: 90, Supplier: domain.Supplier{URL: "https://s/2"}})
	orphan := seed(t, store, domain.Product{Title: "Orphan", CostUSD: 10, MarginPercent: 40, TrendScore: 90})
	meh := seed(t, store, domain.Product{Title: "Meh", CostUSD: 10, MarginPercent: 25, TrendScore: 20, Supplier: domain.Supplier{URL: "https://s/3"}})
	uncosted := seed(t, store, domain.Product{Title: "Uncosted", TrendScore: 90})

	stage := &Validation{Catalog: store, Policy: newPolicy(t), MinTrendScore: 50}
	res, err := stage.Run(context.Background(), stageCtx("run_v"))
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	assert.Equal(t, domain.StageSummary{"validated": 1, "rejected": 2, "held": 1}, res.Summary)

	got := reload(t, store, trending.ProductID)
	assert.True(t, got.Approval.Approved)
	assert.Equal(t, "run_v", got.Approval.RunID)
	assert.NotNil(t, got.Approval.ApprovedAt)

	assert.Equal(t, "Low margin: 12.5%", reload(t, store, thin.ProductID).Approval.RejectionReason)
	assert.Equal(t, "No supplier found", reload(t, store, orphan.ProductID).Approval.RejectionReason)

	held := reload(t, store, meh.ProductID)
	assert.False(t, held.Approval.Approved)
	assert.Empty(t, held.Approval.RejectionReason)
	assert.Empty(t, reload(t, store, uncosted.ProductID).Approval.RejectionReason)
}

// fakeStorefront confirms listings unless the title is in pendingTitles or
// failTitles. Lookups by handle answer from known, reject handles in
// unknownHandles and stay unanswered otherwise.
type fakeStorefront struct {
	mu             sync.Mutex
	pendingTitles  map[string]bool
	failTitles     map[string]bool
	known          map[string]storefront.ListingResult
	unknownHandles map[string]bool
	inFlight       int32
	maxInFlight    int32
	created        []storefront.ListingInput
	lookups        []string
	prices         []string
	stock          map[string]int
}

func (f *fakeStorefront) FindListing(_ context.Context, handle string) (domain.Outcome[storefront.ListingResult], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, handle)
	if f.unknownHandles[handle] {
		return domain.Pending(storefront.ListingResult{Handle: handle}), fmt.Errorf("get_listing: %w: not found", storefront.ErrAgentRejected)
	}
	if res, ok := f.known[handle]; ok {
		return domain.Confirmed(res), nil
	}
	return domain.Pending(storefront.ListingResult{Handle: handle}), nil
}

func (f *fakeStorefront) SetInventory(_ context.Context, listingID, variantID string, quantity int) (domain.Outcome[storefront.InventoryResult], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stock == nil {
		f.stock = map[string]int{}
	}
	f.stock[listingID] = quantity
	return domain.Confirmed(storefront.InventoryResult{ListingID: listingID, VariantID: variantID, Quantity: quantity}), nil
}

func (f *fakeStorefront) CreateListing(_ context.Context, in storefront.ListingInput) (domain.Outcome[storefront.ListingResult], error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&f.maxInFlight)
		if n <= peak || atomic.CompareAndSwapInt32(&f.maxInFlight, peak, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	f.mu.Lock()
	f.created = append(f.created, in)
	f.mu.Unlock()

	switch {
	case f.failTitles[in.Title]:
		return domain.Outcome[storefront.ListingResult]{}, storefront.ErrAgentRejected
	case f.pendingTitles[in.Title]:
		return domain.Pending(storefront.ListingResult{Handle: in.Handle, Status: in.Status}), nil
	}
	return domain.Confirmed(storefront.ListingResult{ListingID: "L-" + in.Handle, VariantID: "V-" + in.Handle, Handle: in.Handle}), nil
}

func (f *fakeStorefront) UpdatePrice(_ context.Context, listingID, _ string, price, compare float64) (domain.Outcome[storefront.PriceResult], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices = append(f.prices, listingID)
	return domain.Confirmed(storefront.PriceResult{ListingID: listingID, PriceAUD: price, ComparePriceAUD: compare}), nil
}

func approvedFor(runID string) domain.Approval {
	now := time.Now().UTC()
	return domain.Approval{Approved: true, RunID: runID, ApprovedAt: &now}
}

func TestListingPersistsConfirmedAndPending(t *testing.T) {
	store := helpers.NewTestSQLiteStore(t)
	var titles []string
	for _, title := range []string{"Sunset Lamp", "Desk Fan", "Café Mug", "Yoga Mat", "Neck Pillow", "Cable Tidy"} {
		seed(t, store, domain.Product{Title: title, PriceAUD: 29.95, Approval: approvedFor("run_l")})
		titles = append(titles, title)
	}
	other := seed(t, store, domain.Product{Title: "Other Run", Approval: approvedFor("run_old")})

	front := &fakeStorefront{pendingTitles: map[string]bool{"Desk Fan": true}, failTitles: map[string]bool{"Yoga Mat": true}}
	stage := &Listing{Catalog: store, Storefront: front, Concurrency: 2}
	res, err := stage.Run(context.Background(), stageCtx("run_l"))
	require.NoError(t, err)
	assert.Equal(t, 4, res.Summary["listed"])
	assert.Equal(t, 1, res.Summary["pending"])
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "Yoga Mat")
	assert.LessOrEqual(t, atomic.LoadInt32(&front.maxInFlight), int32(2))
	assert.Len(t, front.created, len(titles))

	mug := reload(t, store, "prod_"+Slug("Café Mug"))
	assert.Equal(t, domain.SyncStateConfirmed, mug.Listing.State)
	assert.Equal(t, "L-cafe-mug", mug.Listing.ListingID)
	assert.True(t, mug.Inventory.Tracked)

	fan := reload(t, store, "prod_"+Slug("Desk Fan"))
	assert.Equal(t, domain.SyncStatePending, fan.Listing.State)
	assert.Empty(t, fan.Listing.ListingID)
	assert.Empty(t, fan.Listing.VariantID)
	assert.Equal(t, "desk-fan", fan.Listing.Handle)

	assert.Empty(t, reload(t, store, "prod_"+Slug("Yoga Mat")).Listing.State)
	assert.Empty(t, reload(t, store, other.ProductID).Listing.State)
}

func TestListingReconcilesPendingOnNextRun(t *testing.T) {
	store := helpers.NewTestSQLiteStore(t)
	for _, title := range []string{"Desk Fan", "Neck Pillow", "Sunset Lamp"} {
		seed(t, store, domain.Product{Title: title, PriceAUD: 24.95, Approval: approvedFor("run_1")})
	}

	// The agent is unreachable during the first run.
	front := &fakeStorefront{pendingTitles: map[string]bool{"Desk Fan": true, "Neck Pillow": true, "Sunset Lamp": true}}
	stage := &Listing{Catalog: store, Storefront: front}
	res, err := stage.Run(context.Background(), stageCtx("run_1"))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Summary["pending"])
	assert.Empty(t, front.lookups)

	// Next run: the fan landed, the pillow never did, the lamp is still unanswered.
	front = &fakeStorefront{
		known:          map[string]storefront.ListingResult{"desk-fan": {ListingID: "L-77", VariantID: "V-77", Handle: "desk-fan"}},
		unknownHandles: map[string]bool{"neck-pillow": true},
	}
	stage = &Listing{Catalog: store, Storefront: front}
	res, err = stage.Run(context.Background(), stageCtx("run_2"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary["reconciled"])
	assert.Equal(t, 1, res.Summary["listed"])
	assert.Equal(t, 1, res.Summary["pending"])
	assert.Empty(t, res.Errors)
	assert.ElementsMatch(t, []string{"desk-fan", "neck-pillow", "sunset-lamp"}, front.lookups)

	fan := reload(t, store, "prod_desk-fan")
	assert.Equal(t, domain.SyncStateConfirmed, fan.Listing.State)
	assert.Equal(t, "L-77", fan.Listing.ListingID)
	assert.Equal(t, "V-77", fan.Listing.VariantID)

	pillow := reload(t, store, "prod_neck-pillow")
	assert.Equal(t, domain.SyncStateConfirmed, pillow.Listing.State)
	assert.Equal(t, "L-neck-pillow", pillow.Listing.ListingID)
	require.Len(t, front.created, 1)
	assert.Equal(t, "neck-pillow", front.created[0].Handle)

	lamp := reload(t, store, "prod_sunset-lamp")
	assert.Equal(t, domain.SyncStatePending, lamp.Listing.State)
	assert.Empty(t, lamp.Listing.ListingID)
}

type fakeMirror struct {
	enabled bool
	got     []domain.Product
	err     error
}

func (m *fakeMirror) Enabled() bool { return m.enabled }

func (m *fakeMirror) UpsertProducts(_ context.Context, products []domain.Product) (int, error) {
	m.got = products
	return len(products), m.err
}

func TestExternalSync(t *testing.T) {
	store := helpers.NewTestSQLiteStore(t)
	seed(t, store, domain.Product{Title: "Listed", Listing: domain.Listing{ListingID: "L1", VariantID: "V1", State: domain.SyncStateConfirmed, Handle: "listed"}})
	seed(t, store, domain.Product{Title: "Awaiting Agent", Listing: domain.Listing{State: domain.SyncStatePending, Handle: "awaiting-agent"}})
	seed(t, store, domain.Product{Title: "Unlisted"})

	res, err := (&ExternalSync{Catalog: store, Mirror: &fakeMirror{}}).Run(context.Background(), stageCtx("run_s"))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Summary["synced"])

	mirror := &fakeMirror{enabled: true}
	res, err = (&ExternalSync{Catalog: store, Mirror: mirror}).Run(context.Background(), stageCtx("run_s"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary["synced"])
	require.Len(t, mirror.got, 1)
	assert.Equal(t, "Listed", mirror.got[0].Title)

	_, err = (&ExternalSync{Catalog: store, Mirror: &fakeMirror{enabled: true, err: errors.New("conn refused")}}).Run(context.Background(), stageCtx("run_s"))
	assert.ErrorContains(t, err, "conn refused")
}

type captureAlerts struct {
	mu       sync.Mutex
	lowStock []string
	changes  []string
}

func (a *captureAlerts) LowStock(_ context.Context, p domain.Product) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lowStock = append(a.lowStock, p.Title)
}

func (a *captureAlerts) PriceChange(_ context.Context, p domain.Product, _, _ float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.changes = append(a.changes, p.Title)
}

func TestRepricingPushesOnlyConfirmedChanges(t *testing.T) {
	store := helpers.NewTestSQLiteStore(t)
	engine := newPricing()
	current := engine.Quote(10, 2).PriceAUD

	seed(t, store, domain.Product{Title: "Confirmed", CostUSD: 10, ShippingUSD: 2, PriceAUD: 1,
		Listing: domain.Listing{ListingID: "L1", VariantID: "V1", State: domain.SyncStateConfirmed}})
	seed(t, store, domain.Product{Title: "Pending", CostUSD: 10, ShippingUSD: 2, PriceAUD: 1,
		Listing: domain.Listing{Handle: "pending", State: domain.SyncStatePending}})
	seed(t, store, domain.Product{Title: "Unchanged", CostUSD: 10, ShippingUSD: 2, PriceAUD: current,
		Listing: domain.Listing{ListingID: "L3", VariantID: "V3", State: domain.SyncStateConfirmed}})

	front := &fakeStorefront{}
	alerts := &captureAlerts{}
	res, err := (&Repricing{Catalog: store, Pricing: engine, Storefront: front, Alerts: alerts}).Run(context.Background(), stageCtx("run_r"))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Summary["updated"])
	assert.Equal(t, 1, res.Summary["pushed"])
	assert.Equal(t, []string{"L1"}, front.prices)
	assert.ElementsMatch(t, []string{"Confirmed", "Pending"}, alerts.changes)
	assert.Equal(t, current, reload(t, store, "prod_pending").PriceAUD)
}

func TestInventoryAlertsLowStock(t *testing.T) {
	store := helpers.NewTestSQLiteStore(t)
	seed(t, store, domain.Product{Title: "Low", Inventory: domain.Inventory{Tracked: true, Quantity: 2, LowStockThreshold: 5}})
	seed(t, store, domain.Product{Title: "Plenty", Inventory: domain.Inventory{Tracked: true, Quantity: 50, LowStockThreshold: 5}})
	seed(t, store, domain.Product{Title: "Untracked", Inventory: domain.Inventory{Quantity: 0, LowStockThreshold: 5}})

	alerts := &captureAlerts{}
	res, err := (&Inventory{Catalog: store, Alerts: alerts}).Run(context.Background(), stageCtx("run_i"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary["low_stock"])
	assert.Equal(t, []string{"Low"}, alerts.lowStock)
}

func TestInventoryPushesConfirmedStock(t *testing.T) {
	store := helpers.NewTestSQLiteStore(t)
	seed(t, store, domain.Product{Title: "Live", Inventory: domain.Inventory{Tracked: true, Quantity: 40, LowStockThreshold: 5},
		Listing: domain.Listing{ListingID: "L1", VariantID: "V1", State: domain.SyncStateConfirmed}})
	seed(t, store, domain.Product{Title: "Awaiting", Inventory: domain.Inventory{Tracked: true, Quantity: 40, LowStockThreshold: 5},
		Listing: domain.Listing{Handle: "awaiting", State: domain.SyncStatePending}})
	seed(t, store, domain.Product{Title: "Untracked", Inventory: domain.Inventory{Quantity: 3},
		Listing: domain.Listing{ListingID: "L3", VariantID: "V3", State: domain.SyncStateConfirmed}})

	front := &fakeStorefront{}
	res, err := (&Inventory{Catalog: store, Storefront: front}).Run(context.Background(), stageCtx("run_i"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary["inventory_pushed"])
	assert.Equal(t, map[string]int{"L1": 40}, front.stock)
}

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"Sunset Lamp":                "sunset-lamp",
		"  Café  Crème -- 2 Pack! ":  "cafe-creme-2-pack",
		"LED Strip (5m) / RGB":       "led-strip-5m-rgb",
		"Ünïcödé":                    "unicode",
		"!!!":                        "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slug(in), in)
	}
	assert.LessOrEqual(t, len(Slug("a very long product title that keeps going on and on well past any sensible storefront handle length")), maxHandleLen)
}

func TestFullRunWithRateLimitedEnrichment(t *testing.T) {
	store := helpers.NewTestSQLiteStore(t)
	feed := feedServer(t, []domain.Candidate{
		{Title: "Sunset Lamp", Source: "feed", SourceURL: "https://src/lamp", TrendScore: 80},
	})
	catalog := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"offers": []Offer{
			{Platform: "cjdropshipping", URL: "https://cj/lamp", CostUSD: 8, ShippingUSD: 2, Orders: 2000, Rating: 4.7},
		}})
	}))
	defer catalog.Close()

	cfg := config.Default()
	registry := NewRegistry(Deps{
		Catalog:    store,
		Candidates: NewFeedSource(feed.URL, time.Second),
		Suppliers:  NewCatalogFinder(catalog.URL, time.Second),
		Pricing:    pricing.NewEngine(cfg.Pricing),
		LLM:        &rateLimitedLLM{},
		LLMConfig:  cfg.LLM,
		Policy:     newPolicy(t),
		Storefront: &fakeStorefront{},
		Alerts:     &captureAlerts{},
		Mirror:     &fakeMirror{},
		Pipeline:   cfg.Pipeline,
	})
	o := pipeline.New(store, registry, pipeline.Options{DefaultLimits: domain.Limits{MaxProducts: 50, MaxListings: 20, SyncBatch: 50}})

	run, err := o.Start(context.Background(), domain.RunKindFull, domain.Limits{}, domain.TriggerManual)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Wait(ctx))

	got, err := o.Get(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, got.Status)
	require.Len(t, got.Errors, 1)
	assert.Equal(t, domain.StageEnrichment, got.Errors[0].Stage)
	assert.Equal(t, "rate limited", got.Errors[0].Message)

	_, hasEnrichment := got.StageResults[domain.StageEnrichment]
	assert.False(t, hasEnrichment)
	for _, name := range []domain.StageName{domain.StageDiscovery, domain.StageSourcing, domain.StageValidation, domain.StageListing, domain.StageExternalSync} {
		assert.Contains(t, got.StageResults, name)
	}
	assert.Equal(t, 1, got.Counter(domain.StageListing, "listed"))
}
