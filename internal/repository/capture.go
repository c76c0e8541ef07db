package repository

import (
	"context"

	"tripflow/internal/domain"
)

// CaptureRepository defines the persistence operations for fee captures.
type CaptureRepository interface {
	// Create persists a new fee capture.
	Create(ctx context.Context, capture *domain.FeeCapture) error

	// GetByID retrieves a capture by ID.
	GetByID(ctx context.Context, id string) (*domain.FeeCapture, error)

	// GetByIdempotencyKey retrieves a capture by its idempotency key.
	// Returns (nil, nil) when no capture exists for the key.
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.FeeCapture, error)

	// UpdateStatus updates the status of an existing capture.
	UpdateStatus(ctx context.Context, id string, status domain.CaptureStatus) error

	// ListByTrip retrieves all captures recorded for a trip.
	ListByTrip(ctx context.Context, tripID string) ([]*domain.FeeCapture, error)
}
