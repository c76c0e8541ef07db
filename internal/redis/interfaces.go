package redis

import (
	"context"
	"time"
)

// TripLocker defines the per-trip exclusive execution lock contract.
type TripLocker interface {
	WithTripLock(ctx context.Context, tripID string, timeout time.Duration, body func(ctx context.Context) error) error
}

// Ensure concrete types implement interfaces.
var _ TripLocker = (*TripLockStore)(nil)
