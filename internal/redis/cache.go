package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"tripflow/internal/domain"
)

// TripCacheTTL bounds how stale a cached trip snapshot may be. Trip status
// changes frequently during the active phase, so the TTL is short.
const TripCacheTTL = 10 * time.Second

const tripCachePrefix = "cache:trip:"

// CachedTrip is the trip snapshot stored in Redis for read paths.
// The timer manager never reads it; timers always re-fetch from the store.
type CachedTrip struct {
	ID             string  `json:"id"`
	RiderID        string  `json:"rider_id"`
	DriverID       string  `json:"driver_id,omitempty"`
	Status         string  `json:"status"`
	Fare           float64 `json:"fare"`
	Currency       string  `json:"currency"`
	WaitingSeconds int64   `json:"waiting_seconds"`
	WaitingFee     float64 `json:"waiting_fee"`
}

// TripCacheStore handles trip snapshot caching in Redis.
type TripCacheStore struct {
	client *redis.Client
}

// NewTripCacheStore creates a new TripCacheStore.
func NewTripCacheStore(client *redis.Client) *TripCacheStore {
	return &TripCacheStore{client: client}
}

// GetTrip retrieves a trip snapshot from cache. Returns (nil, nil) on miss.
func (s *TripCacheStore) GetTrip(ctx context.Context, tripID string) (*CachedTrip, error) {
	data, err := s.client.Get(ctx, tripCachePrefix+tripID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, err
	}

	var trip CachedTrip
	if err := json.Unmarshal(data, &trip); err != nil {
		return nil, err
	}
	return &trip, nil
}

// SetTrip stores a trip snapshot in cache.
func (s *TripCacheStore) SetTrip(ctx context.Context, trip *domain.Trip) error {
	cached := CachedTrip{
		ID:             trip.ID,
		RiderID:        trip.RiderID,
		DriverID:       trip.DriverID,
		Status:         string(trip.Status),
		Fare:           trip.Fare,
		Currency:       trip.Currency,
		WaitingSeconds: trip.WaitingSeconds,
		WaitingFee:     trip.WaitingFee,
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, tripCachePrefix+trip.ID, data, TripCacheTTL).Err()
}

// InvalidateTrip removes a trip snapshot from cache. Called after every
// applied transition so readers do not observe the prior status for a full TTL.
func (s *TripCacheStore) InvalidateTrip(ctx context.Context, tripID string) error {
	return s.client.Del(ctx, tripCachePrefix+tripID).Err()
}
