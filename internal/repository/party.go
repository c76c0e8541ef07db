package repository

import (
	"context"

	"tripflow/internal/domain"
)

// SnippetRepository fetches lightweight rider/driver projections for match
// payloads. Read-only; account management lives elsewhere.
type SnippetRepository interface {
	GetRiderSnippet(ctx context.Context, riderID string) (*domain.RiderSnippet, error)
	GetDriverSnippet(ctx context.Context, driverID string) (*domain.DriverSnippet, error)
}
