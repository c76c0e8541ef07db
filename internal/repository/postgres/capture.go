package postgres

import (
	"context"
	"database/sql"
	"errors"

	"tripflow/internal/domain"
	"tripflow/internal/repository"
)

// CaptureRepository is a PostgreSQL implementation of
// repository.CaptureRepository.
type CaptureRepository struct {
	q Querier
}

// NewCaptureRepository creates a new PostgreSQL capture repository.
func NewCaptureRepository(db *sql.DB) *CaptureRepository {
	return &CaptureRepository{q: db}
}

// Create persists a new fee capture.
func (r *CaptureRepository) Create(ctx context.Context, capture *domain.FeeCapture) error {
	query := `
		INSERT INTO fee_captures (id, trip_id, driver_id, amount, currency, kind, status, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	var driverID sql.NullString
	if capture.DriverID != "" {
		driverID = sql.NullString{String: capture.DriverID, Valid: true}
	}

	_, err := r.q.ExecContext(ctx, query,
		capture.ID,
		capture.TripID,
		driverID,
		capture.Amount,
		capture.Currency,
		capture.Kind,
		capture.Status,
		capture.IdempotencyKey,
		capture.CreatedAt,
	)

	return err
}

// GetByID retrieves a capture by ID.
func (r *CaptureRepository) GetByID(ctx context.Context, id string) (*domain.FeeCapture, error) {
	query := `
		SELECT id, trip_id, driver_id, amount, currency, kind, status, idempotency_key, created_at
		FROM fee_captures WHERE id = $1
	`

	capture, err := scanCapture(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return capture, nil
}

// GetByIdempotencyKey retrieves a capture by its idempotency key.
// Returns (nil, nil) when no capture exists for the key.
func (r *CaptureRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.FeeCapture, error) {
	query := `
		SELECT id, trip_id, driver_id, amount, currency, kind, status, idempotency_key, created_at
		FROM fee_captures WHERE idempotency_key = $1
	`

	capture, err := scanCapture(r.q.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return capture, nil
}

// UpdateStatus updates the status of an existing capture.
func (r *CaptureRepository) UpdateStatus(ctx context.Context, id string, status domain.CaptureStatus) error {
	query := `UPDATE fee_captures SET status = $1 WHERE id = $2`

	result, err := r.q.ExecContext(ctx, query, status, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ListByTrip retrieves all captures recorded for a trip.
func (r *CaptureRepository) ListByTrip(ctx context.Context, tripID string) ([]*domain.FeeCapture, error) {
	query := `
		SELECT id, trip_id, driver_id, amount, currency, kind, status, idempotency_key, created_at
		FROM fee_captures WHERE trip_id = $1 ORDER BY created_at
	`

	rows, err := r.q.QueryContext(ctx, query, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var captures []*domain.FeeCapture
	for rows.Next() {
		capture, err := scanCapture(rows)
		if err != nil {
			return nil, err
		}
		captures = append(captures, capture)
	}
	return captures, rows.Err()
}

func scanCapture(row rowScanner) (*domain.FeeCapture, error) {
	var capture domain.FeeCapture
	var driverID sql.NullString

	err := row.Scan(
		&capture.ID,
		&capture.TripID,
		&driverID,
		&capture.Amount,
		&capture.Currency,
		&capture.Kind,
		&capture.Status,
		&capture.IdempotencyKey,
		&capture.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if driverID.Valid {
		capture.DriverID = driverID.String
	}

	return &capture, nil
}

// Ensure CaptureRepository implements repository.CaptureRepository.
var _ repository.CaptureRepository = (*CaptureRepository)(nil)
