package service

import (
	"context"

	"tripflow/internal/domain"
)

// SettlementPort triggers fee capture against the payment provider.
// Fire-and-forget from the state machine's perspective: failures are logged
// and flagged for reconciliation, never rolled back into a trip transition.
type SettlementPort interface {
	// CaptureFee captures a flat fee for the trip (e.g. a no-show penalty).
	CaptureFee(ctx context.Context, trip *domain.Trip, kind domain.CaptureKind, amount float64) error

	// CaptureFinalFare captures the trip's final fare including any accrued
	// waiting fee.
	CaptureFinalFare(ctx context.Context, trip *domain.Trip) error

	// TransferPayout transfers the driver's share for a completed trip.
	TransferPayout(ctx context.Context, trip *domain.Trip, amount float64) error
}

// NotificationPort delivers trip events to both parties. Best-effort and
// non-blocking: delivery failures never propagate.
type NotificationPort interface {
	// BroadcastTripEvent publishes an event payload for the trip.
	BroadcastTripEvent(ctx context.Context, tripID, event string, payload any) error

	// NotifyStatusChange informs both parties of the trip's new status.
	NotifyStatusChange(ctx context.Context, trip *domain.Trip) error
}
