package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			lane TEXT NOT NULL DEFAULT 'pipeline',
			stage_results TEXT NOT NULL DEFAULT '{}',
			errors TEXT NOT NULL DEFAULT '[]',
			logs TEXT NOT NULL DEFAULT '[]',
			limits TEXT,
			triggered_by TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			started_at DATETIME,
			completed_at DATETIME,
			duration_ms INTEGER NOT NULL DEFAULT 0
		)`,
		// At most one queued/running run per lane.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_runs_one_active ON runs(lane) WHERE status IN ('queued', 'running')`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status_completed ON runs(status, completed_at)`,
		`CREATE TABLE IF NOT EXISTS products (
			product_id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			tags TEXT,
			source TEXT NOT NULL DEFAULT '',
			source_url TEXT NOT NULL DEFAULT '',
			trend_score REAL NOT NULL DEFAULT 0,
			cost_usd REAL NOT NULL DEFAULT 0,
			shipping_usd REAL NOT NULL DEFAULT 0,
			price_aud REAL NOT NULL DEFAULT 0,
			compare_price_aud REAL NOT NULL DEFAULT 0,
			margin_percent REAL NOT NULL DEFAULT 0,
			description TEXT NOT NULL DEFAULT '',
			supplier_platform TEXT NOT NULL DEFAULT '',
			supplier_url TEXT NOT NULL DEFAULT '',
			supplier_rating REAL NOT NULL DEFAULT 0,
			supplier_orders INTEGER NOT NULL DEFAULT 0,
			approved INTEGER NOT NULL DEFAULT 0,
			rejection_reason TEXT NOT NULL DEFAULT '',
			approval_run_id TEXT NOT NULL DEFAULT '',
			approved_at DATETIME,
			listing_id TEXT NOT NULL DEFAULT '',
			variant_id TEXT NOT NULL DEFAULT '',
			handle TEXT NOT NULL DEFAULT '',
			listing_state TEXT NOT NULL DEFAULT '',
			synced_at DATETIME,
			inventory_tracked INTEGER NOT NULL DEFAULT 0,
			inventory_quantity INTEGER NOT NULL DEFAULT 0,
			low_stock_threshold INTEGER NOT NULL DEFAULT 5,
			active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_products_source_url ON products(source_url)`,
		`CREATE INDEX IF NOT EXISTS idx_products_approval ON products(approved, approval_run_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func marshalText(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
