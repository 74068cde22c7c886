// Package repository persists run records and the product catalog.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
)

var (
	// ErrActiveRunExists is returned by CreateRun when a run is already
	// queued or running.
	ErrActiveRunExists = errors.New("a pipeline run is already active")
	// ErrRunFinalized is returned by SaveRun for runs in a terminal state.
	ErrRunFinalized = errors.New("run is finalized")
	// ErrNotFound is returned by updates that match no row.
	ErrNotFound = errors.New("not found")
)

// ActiveRunError names the run that blocked CreateRun.
type ActiveRunError struct {
	RunID string
}

func (e *ActiveRunError) Error() string {
	return fmt.Sprintf("%s: %s", ErrActiveRunExists, e.RunID)
}

func (e *ActiveRunError) Unwrap() error { return ErrActiveRunExists }

// Store defines the interface for data persistence.
type Store interface {
	// Run operations
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	GetActiveRun(ctx context.Context) (*domain.Run, error)
	GetLastCompletedRun(ctx context.Context) (*domain.Run, error)
	SaveRun(ctx context.Context, run *domain.Run) error
	ListRuns(ctx context.Context, offset, limit int) ([]domain.Run, error)
	CountRuns(ctx context.Context) (int, error)

	// Product operations
	CreateProduct(ctx context.Context, product *domain.Product) error
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
	GetProductBySourceURL(ctx context.Context, sourceURL string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product *domain.Product) error
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)

	// Lifecycle
	Close() error
}
