package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tripflow/internal/domain"
	"tripflow/internal/repository"
)

// SurgeWindowRepository is a PostgreSQL implementation of
// repository.SurgeWindowRepository.
type SurgeWindowRepository struct {
	q Querier
}

// NewSurgeWindowRepository creates a new PostgreSQL surge window repository.
func NewSurgeWindowRepository(db *sql.DB) *SurgeWindowRepository {
	return &SurgeWindowRepository{q: db}
}

// FindActive retrieves the window covering the given instant for the key.
func (r *SurgeWindowRepository) FindActive(ctx context.Context, zone string, product domain.ProductCategory, at time.Time) (*domain.SurgeWindow, error) {
	query := `
		SELECT id, zone, product, multiplier, window_start, window_end
		FROM surge_windows
		WHERE zone = $1 AND product = $2 AND window_start <= $3 AND window_end > $3
		ORDER BY window_start DESC
		LIMIT 1
	`

	var window domain.SurgeWindow
	err := r.q.QueryRowContext(ctx, query, zone, product, at).Scan(
		&window.ID,
		&window.Zone,
		&window.Product,
		&window.Multiplier,
		&window.WindowStart,
		&window.WindowEnd,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return &window, nil
}

// ListKnownKeys enumerates every (zone, product) combination observed
// historically.
func (r *SurgeWindowRepository) ListKnownKeys(ctx context.Context) ([]repository.SurgeKey, error) {
	query := `SELECT DISTINCT zone, product FROM surge_windows`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []repository.SurgeKey
	for rows.Next() {
		var key repository.SurgeKey
		if err := rows.Scan(&key.Zone, &key.Product); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Ensure SurgeWindowRepository implements repository.SurgeWindowRepository.
var _ repository.SurgeWindowRepository = (*SurgeWindowRepository)(nil)
