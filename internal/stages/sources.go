package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
)

// CandidateSource proposes products to the discovery stage.
type CandidateSource interface {
	Candidates(ctx context.Context) ([]domain.Candidate, error)
}

// Offer is one supplier's terms for a product.
type Offer struct {
	Platform    string  `json:"platform"`
	URL         string  `json:"url"`
	CostUSD     float64 `json:"cost_usd"`
	ShippingUSD float64 `json:"shipping_usd"`
	Orders      int     `json:"orders"`
	Rating      float64 `json:"rating"`
}

// SupplierFinder searches suppliers for a product title.
type SupplierFinder interface {
	Find(ctx context.Context, query string) ([]Offer, error)
}

// FeedSource reads candidates from a JSON trend feed. An empty URL yields
// no candidates.
type FeedSource struct {
	url        string
	httpClient *http.Client
}

// NewFeedSource creates a feed reader.
func NewFeedSource(feedURL string, timeout time.Duration) *FeedSource {
	return &FeedSource{url: feedURL, httpClient: &http.Client{Timeout: timeout}}
}

type feedResponse struct {
	Candidates []domain.Candidate `json:"candidates"`
}

// Candidates fetches the feed.
func (f *FeedSource) Candidates(ctx context.Context) ([]domain.Candidate, error) {
	if f.url == "" {
		return nil, nil
	}
	var resp feedResponse
	if err := getJSON(ctx, f.httpClient, f.url, &resp); err != nil {
		return nil, fmt.Errorf("trend feed: %w", err)
	}
	return resp.Candidates, nil
}

// CatalogFinder queries a JSON supplier catalog with ?q=<query>. An empty
// URL finds nothing.
type CatalogFinder struct {
	baseURL    string
	httpClient *http.Client
}

// NewCatalogFinder creates a supplier catalog client.
func NewCatalogFinder(baseURL string, timeout time.Duration) *CatalogFinder {
	return &CatalogFinder{baseURL: baseURL, httpClient: &http.Client{Timeout: timeout}}
}

type catalogResponse struct {
	Offers []Offer `json:"offers"`
}

// Find returns the catalog's offers for query.
func (c *CatalogFinder) Find(ctx context.Context, query string) ([]Offer, error) {
	if c.baseURL == "" {
		return nil, nil
	}
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid supplier catalog url: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	var resp catalogResponse
	if err := getJSON(ctx, c.httpClient, u.String(), &resp); err != nil {
		return nil, fmt.Errorf("supplier catalog: %w", err)
	}
	return resp.Offers, nil
}

func getJSON(ctx context.Context, client *http.Client, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
