package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tripflow/internal/domain"
	"tripflow/internal/repository"
)

// PSP is the interface for a Payment Service Provider.
type PSP interface {
	Charge(ctx context.Context, amount float64, currency string) (bool, error)
	Transfer(ctx context.Context, driverID string, amount float64, currency string) (bool, error)
}

// MockPSP is a mock implementation of PSP for testing and local runs.
type MockPSP struct{}

// NewMockPSP creates a new mock PSP.
func NewMockPSP() *MockPSP {
	return &MockPSP{}
}

// Charge simulates a payment charge. Always succeeds.
func (p *MockPSP) Charge(ctx context.Context, amount float64, currency string) (bool, error) {
	return true, nil
}

// Transfer simulates a payout transfer. Always succeeds.
func (p *MockPSP) Transfer(ctx context.Context, driverID string, amount float64, currency string) (bool, error) {
	return true, nil
}

// SettlementService records fee captures and invokes the payment provider.
// Captures are idempotency-keyed per (kind, trip), so racing timer fires
// cannot double-charge. Provider failures are recorded FAILED and logged for
// reconciliation; they never revert an applied trip transition.
type SettlementService struct {
	captures repository.CaptureRepository
	psp      PSP
	logger   *slog.Logger
}

// NewSettlementService creates a new SettlementService.
func NewSettlementService(captures repository.CaptureRepository, psp PSP, logger *slog.Logger) *SettlementService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettlementService{
		captures: captures,
		psp:      psp,
		logger:   logger,
	}
}

// CaptureFee captures a flat fee for the trip.
func (s *SettlementService) CaptureFee(ctx context.Context, trip *domain.Trip, kind domain.CaptureKind, amount float64) error {
	return s.capture(ctx, trip, kind, amount)
}

// CaptureFinalFare captures the trip's final fare plus any accrued waiting fee.
func (s *SettlementService) CaptureFinalFare(ctx context.Context, trip *domain.Trip) error {
	return s.capture(ctx, trip, domain.CaptureFinalFare, trip.Fare+trip.WaitingFee)
}

// TransferPayout transfers the driver's share for a completed trip.
func (s *SettlementService) TransferPayout(ctx context.Context, trip *domain.Trip, amount float64) error {
	capture, done, err := s.record(ctx, trip, domain.CapturePayout, amount)
	if err != nil || done {
		return err
	}

	ok, err := s.psp.Transfer(ctx, trip.DriverID, amount, trip.Currency)
	return s.finish(ctx, capture, ok, err)
}

func (s *SettlementService) capture(ctx context.Context, trip *domain.Trip, kind domain.CaptureKind, amount float64) error {
	capture, done, err := s.record(ctx, trip, kind, amount)
	if err != nil || done {
		return err
	}

	ok, err := s.psp.Charge(ctx, amount, trip.Currency)
	return s.finish(ctx, capture, ok, err)
}

// record persists the PENDING capture, or short-circuits when the
// idempotency key has already been settled. done is true when no provider
// call should follow.
func (s *SettlementService) record(ctx context.Context, trip *domain.Trip, kind domain.CaptureKind, amount float64) (*domain.FeeCapture, bool, error) {
	if amount <= 0 {
		return nil, true, nil
	}

	key := fmt.Sprintf("capture:%s:%s", kind, trip.ID)

	existing, err := s.captures.GetByIdempotencyKey(ctx, key)
	if err != nil {
		s.logger.Error("settlement: idempotency lookup failed", "trip_id", trip.ID, "kind", kind, "error", err)
		return nil, true, err
	}
	if existing != nil {
		return nil, true, nil
	}

	capture := &domain.FeeCapture{
		ID:             uuid.New().String(),
		TripID:         trip.ID,
		DriverID:       trip.DriverID,
		Amount:         amount,
		Currency:       trip.Currency,
		Kind:           kind,
		Status:         domain.CaptureStatusPending,
		IdempotencyKey: key,
		CreatedAt:      time.Now(),
	}

	if err := s.captures.Create(ctx, capture); err != nil {
		s.logger.Error("settlement: capture create failed", "trip_id", trip.ID, "kind", kind, "error", err)
		return nil, true, err
	}

	return capture, false, nil
}

func (s *SettlementService) finish(ctx context.Context, capture *domain.FeeCapture, ok bool, err error) error {
	if err != nil || !ok {
		_ = s.captures.UpdateStatus(ctx, capture.ID, domain.CaptureStatusFailed)
		s.logger.Error("settlement: provider call failed, flagged for reconciliation",
			"capture_id", capture.ID, "trip_id", capture.TripID, "kind", capture.Kind,
			"amount", capture.Amount, "currency", capture.Currency, "error", err)
		if err != nil {
			return err
		}
		return fmt.Errorf("provider declined %s capture %s", capture.Kind, capture.ID)
	}

	if err := s.captures.UpdateStatus(ctx, capture.ID, domain.CaptureStatusSuccess); err != nil {
		s.logger.Error("settlement: status update failed", "capture_id", capture.ID, "error", err)
		return err
	}

	return nil
}

// Ensure SettlementService implements SettlementPort.
var _ SettlementPort = (*SettlementService)(nil)
