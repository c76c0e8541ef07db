package domain

import "time"

// CaptureKind represents what a fee capture settles.
type CaptureKind string

const (
	CaptureFinalFare     CaptureKind = "FINAL_FARE"
	CaptureNoShowPenalty CaptureKind = "NO_SHOW_PENALTY"
	CapturePayout        CaptureKind = "PAYOUT"
)

// CaptureStatus represents the current status of a fee capture.
type CaptureStatus string

const (
	CaptureStatusPending CaptureStatus = "PENDING"
	CaptureStatusSuccess CaptureStatus = "SUCCESS"
	CaptureStatusFailed  CaptureStatus = "FAILED"
)

// FeeCapture records a settlement attempt against the payment provider.
// Failed captures stay on file for reconciliation; they never roll back the
// trip transition that triggered them.
type FeeCapture struct {
	ID             string
	TripID         string
	DriverID       string
	Amount         float64
	Currency       string
	Kind           CaptureKind
	Status         CaptureStatus
	IdempotencyKey string
	CreatedAt      time.Time
}
