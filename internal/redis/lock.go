package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockBusy is returned when the per-trip lock could not be acquired within
// the caller's timeout. Retryable.
var ErrLockBusy = errors.New("trip lock busy")

// TripLockStore handles per-trip mutual exclusion in Redis.
//
// The lock is advisory at the application layer: it protects the multi-step
// accept sequence from concurrent interleaving; single-record transitions rely
// on the store's conditional updates instead and never take it.
type TripLockStore struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
}

// NewTripLockStore creates a new TripLockStore. ttl bounds how long a crashed
// holder can keep the lock; retryInterval is the acquisition polling period.
func NewTripLockStore(client *redis.Client, ttl, retryInterval time.Duration) *TripLockStore {
	return &TripLockStore{
		client:        client,
		ttl:           ttl,
		retryInterval: retryInterval,
	}
}

// WithTripLock acquires the lock for the trip, runs body, and releases the
// lock unconditionally. Acquisition that cannot succeed within timeout fails
// with ErrLockBusy rather than blocking indefinitely.
func (s *TripLockStore) WithTripLock(ctx context.Context, tripID string, timeout time.Duration, body func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:trip:%s", tripID)
	deadline := time.Now().Add(timeout)

	for {
		ok, err := s.client.SetNX(ctx, key, "1", s.ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			break
		}

		if !time.Now().Add(s.retryInterval).Before(deadline) {
			return ErrLockBusy
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryInterval):
		}
	}

	defer func() {
		_ = s.client.Del(context.WithoutCancel(ctx), key).Err()
	}()

	return body(ctx)
}
