package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tripflow/internal/domain"
	"tripflow/internal/repository"
)

const tripColumns = `id, rider_id, driver_id, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
		pickup_address, dropoff_address, product, fare, currency, package_weight_kg, zone,
		status, safety_pin, waiting_seconds, waiting_fee, cancel_reason,
		created_at, accepted_at, en_route_at, arrived_at, waiting_at, pickup_at,
		completed_at, cancelled_at, no_show_at`

// TripRepository is a PostgreSQL implementation of repository.TripRepository.
type TripRepository struct {
	q Querier
}

// NewTripRepository creates a new PostgreSQL trip repository.
func NewTripRepository(db *sql.DB) *TripRepository {
	return &TripRepository{q: db}
}

// NewTripRepositoryWithTx creates a trip repository using a transaction.
func NewTripRepositoryWithTx(tx *sql.Tx) *TripRepository {
	return &TripRepository{q: tx}
}

// Create persists a new trip.
func (r *TripRepository) Create(ctx context.Context, trip *domain.Trip) error {
	query := `
		INSERT INTO trips (id, rider_id, driver_id, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
			pickup_address, dropoff_address, product, fare, currency, package_weight_kg, zone,
			status, safety_pin, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	var driverID sql.NullString
	if trip.DriverID != "" {
		driverID = sql.NullString{String: trip.DriverID, Valid: true}
	}

	_, err := r.q.ExecContext(ctx, query,
		trip.ID,
		trip.RiderID,
		driverID,
		trip.PickupLat,
		trip.PickupLng,
		trip.DropoffLat,
		trip.DropoffLng,
		trip.PickupAddress,
		trip.DropoffAddress,
		trip.Product,
		trip.Fare,
		trip.Currency,
		trip.PackageWeightKg,
		trip.Zone,
		trip.Status,
		trip.SafetyPIN,
		trip.CreatedAt,
	)

	return err
}

// GetByID retrieves a trip by ID.
func (r *TripRepository) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = $1`

	trip, err := scanTrip(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return trip, nil
}

// ListByStatus retrieves trips in the given status, newest first.
func (r *TripRepository) ListByStatus(ctx context.Context, status domain.TripStatus) ([]*domain.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE status = $1 ORDER BY created_at DESC LIMIT 100`
	return r.list(ctx, query, status)
}

// ListByRider retrieves a rider's trips, newest first.
func (r *TripRepository) ListByRider(ctx context.Context, riderID string) ([]*domain.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE rider_id = $1 ORDER BY created_at DESC LIMIT 100`
	return r.list(ctx, query, riderID)
}

// ListByDriver retrieves a driver's trips, newest first.
func (r *TripRepository) ListByDriver(ctx context.Context, driverID string) ([]*domain.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE driver_id = $1 ORDER BY created_at DESC LIMIT 100`
	return r.list(ctx, query, driverID)
}

func (r *TripRepository) list(ctx context.Context, query string, arg any) ([]*domain.Trip, error) {
	rows, err := r.q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trips []*domain.Trip
	for rows.Next() {
		trip, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, trip)
	}
	return trips, rows.Err()
}

// AssignDriver sets the driver and moves REQUESTED -> ACCEPTED.
// The WHERE clause is the race arbiter: of N concurrent accepts exactly one
// observes status = REQUESTED with no driver and wins.
func (r *TripRepository) AssignDriver(ctx context.Context, tripID, driverID string, at time.Time) (bool, error) {
	query := `
		UPDATE trips
		SET status = $1, driver_id = $2, accepted_at = $3
		WHERE id = $4 AND status = $5 AND driver_id IS NULL
	`

	return r.conditional(ctx, query,
		domain.TripStatusAccepted, driverID, at, tripID, domain.TripStatusRequested)
}

// MarkEnRoute moves ACCEPTED -> EN_ROUTE for the assigned driver.
func (r *TripRepository) MarkEnRoute(ctx context.Context, tripID, driverID string, at time.Time) (bool, error) {
	query := `
		UPDATE trips
		SET status = $1, en_route_at = $2
		WHERE id = $3 AND status = $4 AND driver_id = $5
	`

	return r.conditional(ctx, query,
		domain.TripStatusEnRoute, at, tripID, domain.TripStatusAccepted, driverID)
}

// MarkArrived moves EN_ROUTE -> ARRIVED for the assigned driver.
func (r *TripRepository) MarkArrived(ctx context.Context, tripID, driverID string, at time.Time) (bool, error) {
	query := `
		UPDATE trips
		SET status = $1, arrived_at = $2
		WHERE id = $3 AND status = $4 AND driver_id = $5
	`

	return r.conditional(ctx, query,
		domain.TripStatusArrived, at, tripID, domain.TripStatusEnRoute, driverID)
}

// MarkWaiting moves ARRIVED -> WAITING and zeroes the waiting accrual.
func (r *TripRepository) MarkWaiting(ctx context.Context, tripID string, at time.Time) (bool, error) {
	query := `
		UPDATE trips
		SET status = $1, waiting_at = $2, waiting_seconds = 0, waiting_fee = 0
		WHERE id = $3 AND status = $4
	`

	return r.conditional(ctx, query,
		domain.TripStatusWaiting, at, tripID, domain.TripStatusArrived)
}

// MarkInProgress moves ARRIVED or WAITING -> IN_PROGRESS for the assigned
// driver. Pickup may legitimately happen before or after the waiting grace
// elapses, so both prior states are accepted in one conditional update.
func (r *TripRepository) MarkInProgress(ctx context.Context, tripID, driverID string, at time.Time) (bool, error) {
	query := `
		UPDATE trips
		SET status = $1, pickup_at = $2
		WHERE id = $3 AND status IN ($4, $5) AND driver_id = $6
	`

	return r.conditional(ctx, query,
		domain.TripStatusInProgress, at, tripID,
		domain.TripStatusArrived, domain.TripStatusWaiting, driverID)
}

// Complete moves IN_PROGRESS -> COMPLETED for the assigned driver, writing the
// final fare when supplied.
func (r *TripRepository) Complete(ctx context.Context, tripID, driverID string, fare *float64, at time.Time) (bool, error) {
	query := `
		UPDATE trips
		SET status = $1, completed_at = $2, fare = COALESCE($3, fare)
		WHERE id = $4 AND status = $5 AND driver_id = $6
	`

	var finalFare sql.NullFloat64
	if fare != nil {
		finalFare = sql.NullFloat64{Float64: *fare, Valid: true}
	}

	return r.conditional(ctx, query,
		domain.TripStatusCompleted, at, finalFare, tripID, domain.TripStatusInProgress, driverID)
}

// Cancel moves any non-terminal status -> CANCELLED with a reason.
func (r *TripRepository) Cancel(ctx context.Context, tripID, reason string, at time.Time) (bool, error) {
	query := `
		UPDATE trips
		SET status = $1, cancelled_at = $2, cancel_reason = $3
		WHERE id = $4 AND status NOT IN ($5, $6, $7)
	`

	return r.conditional(ctx, query,
		domain.TripStatusCancelled, at, reason, tripID,
		domain.TripStatusCompleted, domain.TripStatusCancelled, domain.TripStatusNoShow)
}

// MarkNoShow moves the expected status -> NO_SHOW with a reason.
func (r *TripRepository) MarkNoShow(ctx context.Context, tripID string, expected domain.TripStatus, reason string, at time.Time) (bool, error) {
	query := `
		UPDATE trips
		SET status = $1, no_show_at = $2, cancel_reason = $3
		WHERE id = $4 AND status = $5
	`

	return r.conditional(ctx, query,
		domain.TripStatusNoShow, at, reason, tripID, expected)
}

// AccrueWaiting sets the waiting counters while the trip is WAITING.
func (r *TripRepository) AccrueWaiting(ctx context.Context, tripID string, seconds int64, fee float64) (bool, error) {
	query := `
		UPDATE trips
		SET waiting_seconds = $1, waiting_fee = $2
		WHERE id = $3 AND status = $4
	`

	return r.conditional(ctx, query,
		seconds, fee, tripID, domain.TripStatusWaiting)
}

// conditional executes a conditional update and reports whether exactly one
// row matched.
func (r *TripRepository) conditional(ctx context.Context, query string, args ...any) (bool, error) {
	result, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected == 1, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrip(row rowScanner) (*domain.Trip, error) {
	var trip domain.Trip
	var driverID, cancelReason sql.NullString
	var acceptedAt, enRouteAt, arrivedAt, waitingAt, pickupAt sql.NullTime
	var completedAt, cancelledAt, noShowAt sql.NullTime

	err := row.Scan(
		&trip.ID,
		&trip.RiderID,
		&driverID,
		&trip.PickupLat,
		&trip.PickupLng,
		&trip.DropoffLat,
		&trip.DropoffLng,
		&trip.PickupAddress,
		&trip.DropoffAddress,
		&trip.Product,
		&trip.Fare,
		&trip.Currency,
		&trip.PackageWeightKg,
		&trip.Zone,
		&trip.Status,
		&trip.SafetyPIN,
		&trip.WaitingSeconds,
		&trip.WaitingFee,
		&cancelReason,
		&trip.CreatedAt,
		&acceptedAt,
		&enRouteAt,
		&arrivedAt,
		&waitingAt,
		&pickupAt,
		&completedAt,
		&cancelledAt,
		&noShowAt,
	)
	if err != nil {
		return nil, err
	}

	if driverID.Valid {
		trip.DriverID = driverID.String
	}
	if cancelReason.Valid {
		trip.CancelReason = cancelReason.String
	}
	if acceptedAt.Valid {
		trip.AcceptedAt = acceptedAt.Time
	}
	if enRouteAt.Valid {
		trip.EnRouteAt = enRouteAt.Time
	}
	if arrivedAt.Valid {
		trip.ArrivedAt = arrivedAt.Time
	}
	if waitingAt.Valid {
		trip.WaitingAt = waitingAt.Time
	}
	if pickupAt.Valid {
		trip.PickupAt = pickupAt.Time
	}
	if completedAt.Valid {
		trip.CompletedAt = completedAt.Time
	}
	if cancelledAt.Valid {
		trip.CancelledAt = cancelledAt.Time
	}
	if noShowAt.Valid {
		trip.NoShowAt = noShowAt.Time
	}

	return &trip, nil
}

// Ensure TripRepository implements repository.TripRepository.
var _ repository.TripRepository = (*TripRepository)(nil)
