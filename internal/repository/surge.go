package repository

import (
	"context"
	"time"

	"tripflow/internal/domain"
)

// SurgeKey identifies a (zone, product) pricing combination.
type SurgeKey struct {
	Zone    string
	Product domain.ProductCategory
}

// SurgeWindowRepository defines read access to persisted surge windows.
// Windows are written by an external pricing-admin process.
type SurgeWindowRepository interface {
	// FindActive retrieves the window covering the given instant for the
	// key. Returns ErrNotFound when no window covers it.
	FindActive(ctx context.Context, zone string, product domain.ProductCategory, at time.Time) (*domain.SurgeWindow, error)

	// ListKnownKeys enumerates every (zone, product) combination observed
	// historically, for proactive cache warm-up.
	ListKnownKeys(ctx context.Context) ([]SurgeKey, error)
}
