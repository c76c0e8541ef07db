package service

import (
	"context"
	"log/slog"
	"time"

	"tripflow/internal/domain"
)

// EventPublisher publishes a trip event to the message broker.
// Satisfied by *rmq.Client.
type EventPublisher interface {
	Publish(ctx context.Context, event string, payload any) error
}

// StatusChangePayload is the wire payload for status change notifications.
type StatusChangePayload struct {
	TripID         string    `json:"trip_id"`
	RiderID        string    `json:"rider_id"`
	DriverID       string    `json:"driver_id,omitempty"`
	Status         string    `json:"status"`
	Reason         string    `json:"reason,omitempty"`
	WaitingSeconds int64     `json:"waiting_seconds,omitempty"`
	WaitingFee     float64   `json:"waiting_fee,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NotificationService delivers trip events over the message broker.
// Best-effort: publish failures are logged and swallowed, because a missed
// notification must never fail or roll back a state transition.
type NotificationService struct {
	publisher EventPublisher
	logger    *slog.Logger
}

// NewNotificationService creates a new NotificationService. A nil publisher
// degrades to log-only delivery.
func NewNotificationService(publisher EventPublisher, logger *slog.Logger) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationService{
		publisher: publisher,
		logger:    logger,
	}
}

// BroadcastTripEvent publishes an event payload for the trip.
func (s *NotificationService) BroadcastTripEvent(ctx context.Context, tripID, event string, payload any) error {
	if s.publisher == nil {
		s.logger.Info("trip event", "trip_id", tripID, "event", event)
		return nil
	}

	if err := s.publisher.Publish(ctx, event, payload); err != nil {
		s.logger.Warn("trip event publish failed", "trip_id", tripID, "event", event, "error", err)
	}
	return nil
}

// NotifyStatusChange informs both parties of the trip's new status.
func (s *NotificationService) NotifyStatusChange(ctx context.Context, trip *domain.Trip) error {
	payload := StatusChangePayload{
		TripID:         trip.ID,
		RiderID:        trip.RiderID,
		DriverID:       trip.DriverID,
		Status:         string(trip.Status),
		Reason:         trip.CancelReason,
		WaitingSeconds: trip.WaitingSeconds,
		WaitingFee:     trip.WaitingFee,
		OccurredAt:     time.Now(),
	}

	return s.BroadcastTripEvent(ctx, trip.ID, "status_changed", payload)
}

// Ensure NotificationService implements NotificationPort.
var _ NotificationPort = (*NotificationService)(nil)
