package postgres

import (
	"context"
	"database/sql"
	"errors"

	"tripflow/internal/domain"
	"tripflow/internal/repository"
)

// SnippetRepository is a PostgreSQL implementation of
// repository.SnippetRepository.
type SnippetRepository struct {
	q Querier
}

// NewSnippetRepository creates a new PostgreSQL snippet repository.
func NewSnippetRepository(db *sql.DB) *SnippetRepository {
	return &SnippetRepository{q: db}
}

// GetRiderSnippet retrieves a rider projection by ID.
func (r *SnippetRepository) GetRiderSnippet(ctx context.Context, riderID string) (*domain.RiderSnippet, error) {
	query := `SELECT id, name, phone, rating FROM riders WHERE id = $1`

	var snippet domain.RiderSnippet
	err := r.q.QueryRowContext(ctx, query, riderID).Scan(
		&snippet.ID,
		&snippet.Name,
		&snippet.Phone,
		&snippet.Rating,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return &snippet, nil
}

// GetDriverSnippet retrieves a driver projection by ID.
func (r *SnippetRepository) GetDriverSnippet(ctx context.Context, driverID string) (*domain.DriverSnippet, error) {
	query := `SELECT id, name, phone, rating, vehicle_plate FROM drivers WHERE id = $1`

	var snippet domain.DriverSnippet
	err := r.q.QueryRowContext(ctx, query, driverID).Scan(
		&snippet.ID,
		&snippet.Name,
		&snippet.Phone,
		&snippet.Rating,
		&snippet.VehiclePlate,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return &snippet, nil
}

// Ensure SnippetRepository implements repository.SnippetRepository.
var _ repository.SnippetRepository = (*SnippetRepository)(nil)
