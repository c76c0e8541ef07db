package repository

import (
	"context"
	"time"

	"tripflow/internal/domain"
)

// TripRepository defines the persistence operations for trips.
//
// The transition methods are conditional updates: a single atomic write that
// only applies if the trip's current status (and, where relevant, the acting
// driver) matches the expected precondition. The returned bool reports whether
// exactly one row matched; false means the precondition was violated, which is
// how concurrent transition races are resolved. It is not an error.
type TripRepository interface {
	// Create persists a new trip in REQUESTED state.
	Create(ctx context.Context, trip *domain.Trip) error

	// GetByID retrieves a trip by ID. Returns ErrNotFound for unknown ids.
	GetByID(ctx context.Context, id string) (*domain.Trip, error)

	// ListByStatus retrieves trips in the given status, newest first.
	ListByStatus(ctx context.Context, status domain.TripStatus) ([]*domain.Trip, error)

	// ListByRider retrieves a rider's trips, newest first.
	ListByRider(ctx context.Context, riderID string) ([]*domain.Trip, error)

	// ListByDriver retrieves a driver's trips, newest first.
	ListByDriver(ctx context.Context, driverID string) ([]*domain.Trip, error)

	// AssignDriver sets the driver and moves REQUESTED -> ACCEPTED.
	// Applies only while the trip is REQUESTED with no driver assigned.
	AssignDriver(ctx context.Context, tripID, driverID string, at time.Time) (bool, error)

	// MarkEnRoute moves ACCEPTED -> EN_ROUTE for the assigned driver.
	MarkEnRoute(ctx context.Context, tripID, driverID string, at time.Time) (bool, error)

	// MarkArrived moves EN_ROUTE -> ARRIVED for the assigned driver.
	MarkArrived(ctx context.Context, tripID, driverID string, at time.Time) (bool, error)

	// MarkWaiting moves ARRIVED -> WAITING and zeroes the waiting accrual.
	// Driven by the timer manager, not by a client action.
	MarkWaiting(ctx context.Context, tripID string, at time.Time) (bool, error)

	// MarkInProgress moves ARRIVED or WAITING -> IN_PROGRESS for the
	// assigned driver, recording the pickup instant.
	MarkInProgress(ctx context.Context, tripID, driverID string, at time.Time) (bool, error)

	// Complete moves IN_PROGRESS -> COMPLETED for the assigned driver.
	// A non-nil fare overrides the quoted fare.
	Complete(ctx context.Context, tripID, driverID string, fare *float64, at time.Time) (bool, error)

	// Cancel moves any non-terminal status -> CANCELLED with a reason.
	Cancel(ctx context.Context, tripID, reason string, at time.Time) (bool, error)

	// MarkNoShow moves the expected status -> NO_SHOW with a reason.
	// Expected is REQUESTED for the no-show timer, WAITING for the
	// waiting-fee ceiling.
	MarkNoShow(ctx context.Context, tripID string, expected domain.TripStatus, reason string, at time.Time) (bool, error)

	// AccrueWaiting sets the waiting counters while the trip is WAITING.
	AccrueWaiting(ctx context.Context, tripID string, seconds int64, fee float64) (bool, error)
}
