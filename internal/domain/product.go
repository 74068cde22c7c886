package domain

import "time"

// Supplier describes where a product is sourced from.
type Supplier struct {
	Platform string  `json:"platform,omitempty"`
	URL      string  `json:"url,omitempty"`
	Rating   float64 `json:"rating,omitempty"`
	Orders   int     `json:"orders,omitempty"`
}

// Approval tracks the validation verdict of a product.
type Approval struct {
	Approved        bool       `json:"approved"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	RunID           string     `json:"run_id,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
}

// Listing links a product to its storefront entry.
type Listing struct {
	ListingID string     `json:"listing_id,omitempty"`
	VariantID string     `json:"variant_id,omitempty"`
	Handle    string     `json:"handle,omitempty"`
	State     SyncState  `json:"state,omitempty"`
	SyncedAt  *time.Time `json:"synced_at,omitempty"`
}

// Listed reports whether a storefront entry was requested for the product,
// confirmed or not.
func (l Listing) Listed() bool {
	return l.State != ""
}

// Inventory is the stock position of a product.
type Inventory struct {
	Tracked           bool `json:"tracked"`
	Quantity          int  `json:"quantity"`
	LowStockThreshold int  `json:"low_stock_threshold"`
}

// Low reports whether tracked stock is at or below its threshold.
func (i Inventory) Low() bool {
	return i.Tracked && i.Quantity <= i.LowStockThreshold
}

// Product is a catalog item worked on by the pipeline stages.
type Product struct {
	ProductID       string    `json:"product_id"`
	Title           string    `json:"title"`
	Category        string    `json:"category,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
	Source          string    `json:"source,omitempty"`
	SourceURL       string    `json:"source_url,omitempty"`
	TrendScore      float64   `json:"trend_score"`
	CostUSD         float64   `json:"cost_usd"`
	ShippingUSD     float64   `json:"shipping_usd"`
	PriceAUD        float64   `json:"price_aud"`
	ComparePriceAUD float64   `json:"compare_price_aud,omitempty"`
	MarginPercent   float64   `json:"margin_percent"`
	Description     string    `json:"description,omitempty"`
	Supplier        Supplier  `json:"supplier"`
	Approval        Approval  `json:"approval"`
	Listing         Listing   `json:"listing"`
	Inventory       Inventory `json:"inventory"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Candidate is a product proposal produced by a discovery source.
type Candidate struct {
	Title      string   `json:"title"`
	Category   string   `json:"category,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Source     string   `json:"source"`
	SourceURL  string   `json:"source_url"`
	TrendScore float64  `json:"trend_score"`
}

// ProductFilter selects products for a stage.
type ProductFilter struct {
	Approved       *bool
	Undecided      bool // not approved and no rejection reason
	NeedsSupplier  bool
	NeedsContent   bool
	Costed         bool
	Unlisted       bool
	Listed         bool
	ListingState   SyncState // exact listing state
	ApprovedForRun string
	LowStock       bool
	Limit          int
}
