// Package warehouse mirrors the listed catalog into Postgres for reporting.
package warehouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/config"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
)

const batchSize = 200

// Warehouse upserts products into "<schema>".catalog_products. The zero
// value, and one opened without a DSN, is disabled.
type Warehouse struct {
	pool   *pgxpool.Pool
	schema string
}

// Open creates the connection pool. Connections are established on first
// use; an empty DSN returns a disabled warehouse.
func Open(ctx context.Context, cfg config.WarehouseConfig) (*Warehouse, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return &Warehouse{}, nil
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid warehouse dsn: %w", err)
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 2
	}
	poolCfg.MaxConns = int32(maxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create warehouse pool: %w", err)
	}
	schema := cfg.Schema
	if schema == "" {
		schema = "public"
	}
	return &Warehouse{pool: pool, schema: schema}, nil
}

// Enabled reports whether a DSN was configured.
func (w *Warehouse) Enabled() bool {
	return w != nil && w.pool != nil
}

func (w *Warehouse) table() string {
	return pgx.Identifier{w.schema, "catalog_products"}.Sanitize()
}

// EnsureSchema creates the mirror table if it does not exist.
func (w *Warehouse) EnsureSchema(ctx context.Context) error {
	if !w.Enabled() {
		return nil
	}
	_, err := w.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+w.table()+` (
		product_id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		category TEXT,
		handle TEXT,
		listing_id TEXT,
		listing_state TEXT,
		price_aud NUMERIC(10,2),
		compare_price_aud NUMERIC(10,2),
		cost_usd NUMERIC(10,2),
		margin_percent NUMERIC(5,1),
		trend_score NUMERIC(6,2),
		supplier_url TEXT,
		inventory_quantity INTEGER,
		synced_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return fmt.Errorf("failed to create warehouse table: %w", err)
	}
	return nil
}

func (w *Warehouse) upsertSQL() string {
	return `INSERT INTO ` + w.table() + `
		(product_id, title, category, handle, listing_id, listing_state, price_aud, compare_price_aud,
		 cost_usd, margin_percent, trend_score, supplier_url, inventory_quantity, synced_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now())
		ON CONFLICT (product_id) DO UPDATE SET
			title = EXCLUDED.title,
			category = EXCLUDED.category,
			handle = EXCLUDED.handle,
			listing_id = EXCLUDED.listing_id,
			listing_state = EXCLUDED.listing_state,
			price_aud = EXCLUDED.price_aud,
			compare_price_aud = EXCLUDED.compare_price_aud,
			cost_usd = EXCLUDED.cost_usd,
			margin_percent = EXCLUDED.margin_percent,
			trend_score = EXCLUDED.trend_score,
			supplier_url = EXCLUDED.supplier_url,
			inventory_quantity = EXCLUDED.inventory_quantity,
			synced_at = now()`
}

// UpsertProducts writes products in batches and returns how many rows were
// inserted or updated.
func (w *Warehouse) UpsertProducts(ctx context.Context, products []domain.Product) (int, error) {
	if !w.Enabled() || len(products) == 0 {
		return 0, nil
	}
	query := w.upsertSQL()
	total := 0
	for i := 0; i < len(products); i += batchSize {
		j := min(i+batchSize, len(products))
		b := &pgx.Batch{}
		for _, p := range products[i:j] {
			var listingID *string
			if p.Listing.ListingID != "" {
				listingID = &p.Listing.ListingID
			}
			b.Queue(query,
				p.ProductID, p.Title, p.Category, p.Listing.Handle, listingID, string(p.Listing.State),
				p.PriceAUD, p.ComparePriceAUD, p.CostUSD, p.MarginPercent, p.TrendScore,
				p.Supplier.URL, p.Inventory.Quantity,
			)
		}
		br := w.pool.SendBatch(ctx, b)
		for k := i; k < j; k++ {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return total, fmt.Errorf("failed to upsert %s: %w", products[k].ProductID, err)
			}
			total += int(tag.RowsAffected())
		}
		if err := br.Close(); err != nil {
			return total, err
		}
	}
	return total, nil
}

// Ping checks connectivity.
func (w *Warehouse) Ping(ctx context.Context) error {
	if !w.Enabled() {
		return nil
	}
	return w.pool.Ping(ctx)
}

// Close releases the pool.
func (w *Warehouse) Close() {
	if w.Enabled() {
		w.pool.Close()
	}
}
