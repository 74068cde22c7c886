package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
)

const productColumns = `product_id, title, category, tags, source, source_url, trend_score, cost_usd, shipping_usd,
	price_aud, compare_price_aud, margin_percent, description, supplier_platform, supplier_url, supplier_rating,
	supplier_orders, approved, rejection_reason, approval_run_id, approved_at, listing_id, variant_id, handle,
	listing_state, synced_at, inventory_tracked, inventory_quantity, low_stock_threshold, active, created_at, updated_at`

// CreateProduct inserts a new product.
func (s *SQLiteStore) CreateProduct(ctx context.Context, p *domain.Product) error {
	tags, _ := json.Marshal(p.Tags)
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO products (`+productColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ProductID, p.Title, p.Category, string(tags), p.Source, p.SourceURL, p.TrendScore, p.CostUSD, p.ShippingUSD,
		p.PriceAUD, p.ComparePriceAUD, p.MarginPercent, p.Description, p.Supplier.Platform, p.Supplier.URL, p.Supplier.Rating,
		p.Supplier.Orders, boolToInt(p.Approval.Approved), p.Approval.RejectionReason, p.Approval.RunID, p.Approval.ApprovedAt,
		p.Listing.ListingID, p.Listing.VariantID, p.Listing.Handle, string(p.Listing.State), p.Listing.SyncedAt,
		boolToInt(p.Inventory.Tracked), p.Inventory.Quantity, p.Inventory.LowStockThreshold, boolToInt(p.Active),
		p.CreatedAt, p.UpdatedAt)
	return err
}

// GetProduct retrieves a product by ID.
func (s *SQLiteStore) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE product_id = ?`, productID)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// GetProductBySourceURL retrieves the product discovered at sourceURL.
func (s *SQLiteStore) GetProductBySourceURL(ctx context.Context, sourceURL string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE source_url = ? LIMIT 1`, sourceURL)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// UpdateProduct rewrites every mutable field of a product.
func (s *SQLiteStore) UpdateProduct(ctx context.Context, p *domain.Product) error {
	tags, _ := json.Marshal(p.Tags)
	p.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET title = ?, category = ?, tags = ?, trend_score = ?, cost_usd = ?, shipping_usd = ?,
			price_aud = ?, compare_price_aud = ?, margin_percent = ?, description = ?, supplier_platform = ?,
			supplier_url = ?, supplier_rating = ?, supplier_orders = ?, approved = ?, rejection_reason = ?,
			approval_run_id = ?, approved_at = ?, listing_id = ?, variant_id = ?, handle = ?, listing_state = ?,
			synced_at = ?, inventory_tracked = ?, inventory_quantity = ?, low_stock_threshold = ?, active = ?,
			updated_at = ?
		 WHERE product_id = ?`,
		p.Title, p.Category, string(tags), p.TrendScore, p.CostUSD, p.ShippingUSD,
		p.PriceAUD, p.ComparePriceAUD, p.MarginPercent, p.Description, p.Supplier.Platform,
		p.Supplier.URL, p.Supplier.Rating, p.Supplier.Orders, boolToInt(p.Approval.Approved), p.Approval.RejectionReason,
		p.Approval.RunID, p.Approval.ApprovedAt, p.Listing.ListingID, p.Listing.VariantID, p.Listing.Handle, string(p.Listing.State),
		p.Listing.SyncedAt, boolToInt(p.Inventory.Tracked), p.Inventory.Quantity, p.Inventory.LowStockThreshold, boolToInt(p.Active),
		p.UpdatedAt, p.ProductID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("product %s: %w", p.ProductID, ErrNotFound)
	}
	return nil
}

// ListProducts lists active products matching filter, highest trend score first.
func (s *SQLiteStore) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	conds := []string{"active = 1"}
	var args []any

	if filter.Approved != nil {
		conds = append(conds, "approved = ?")
		args = append(args, boolToInt(*filter.Approved))
	}
	if filter.Undecided {
		conds = append(conds, "approved = 0 AND rejection_reason = ''")
	}
	if filter.NeedsSupplier {
		conds = append(conds, "supplier_url = ''")
	}
	if filter.NeedsContent {
		conds = append(conds, "description = '' AND price_aud > 0")
	}
	if filter.Costed {
		conds = append(conds, "cost_usd > 0")
	}
	if filter.Unlisted {
		conds = append(conds, "listing_state = ''")
	}
	if filter.Listed {
		conds = append(conds, "listing_state != ''")
	}
	if filter.ListingState != "" {
		conds = append(conds, "listing_state = ?")
		args = append(args, filter.ListingState)
	}
	if filter.ApprovedForRun != "" {
		conds = append(conds, "approved = 1 AND approval_run_id = ?")
		args = append(args, filter.ApprovedForRun)
	}
	if filter.LowStock {
		conds = append(conds, "inventory_tracked = 1 AND inventory_quantity <= low_stock_threshold")
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY trend_score DESC, created_at ASC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	var tags sql.NullString
	var listingState string
	var approved, tracked, active int
	var approvedAt, syncedAt sql.NullTime
	err := row.Scan(&p.ProductID, &p.Title, &p.Category, &tags, &p.Source, &p.SourceURL, &p.TrendScore, &p.CostUSD, &p.ShippingUSD,
		&p.PriceAUD, &p.ComparePriceAUD, &p.MarginPercent, &p.Description, &p.Supplier.Platform, &p.Supplier.URL, &p.Supplier.Rating,
		&p.Supplier.Orders, &approved, &p.Approval.RejectionReason, &p.Approval.RunID, &approvedAt, &p.Listing.ListingID,
		&p.Listing.VariantID, &p.Listing.Handle, &listingState, &syncedAt, &tracked, &p.Inventory.Quantity,
		&p.Inventory.LowStockThreshold, &active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if tags.Valid && tags.String != "" && tags.String != "null" {
		if err := json.Unmarshal([]byte(tags.String), &p.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags of %s: %w", p.ProductID, err)
		}
	}
	p.Approval.Approved = approved == 1
	p.Approval.ApprovedAt = nullTime(approvedAt)
	p.Listing.State = domain.SyncState(listingState)
	p.Listing.SyncedAt = nullTime(syncedAt)
	p.Inventory.Tracked = tracked == 1
	p.Active = active == 1
	return &p, nil
}
