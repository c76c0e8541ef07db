package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"tripflow/internal/cache"
	"tripflow/internal/domain"
	redisstore "tripflow/internal/redis"
	"tripflow/internal/repository"
)

// PricingConfig holds the fixed lifecycle fees. Fare formulas proper live in
// the quoting path; the lifecycle engine only applies these flat rates.
type PricingConfig struct {
	WaitPerMinuteRate float64 // waiting fee per started minute
	NoShowPenalty     float64 // flat penalty on no-show
	DriverShare       float64 // payout fraction of the final fare
}

// DefaultPricingConfig returns the default lifecycle fees.
func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		WaitPerMinuteRate: 0.5,
		NoShowPenalty:     3.0,
		DriverShare:       0.8,
	}
}

// Base fare per product category, multiplied by the surge multiplier at
// creation to form the initial quote.
func baseFareFor(product domain.ProductCategory) float64 {
	switch product {
	case domain.ProductPremium:
		return 8.0
	case domain.ProductDelivery:
		return 6.0
	default:
		return 5.0
	}
}

// TripFlowService is the state machine engine: it validates and applies trip
// lifecycle transitions, arms and disarms the deferred timers, and invokes
// the settlement and notification ports on the transitions that require them.
//
// Every single-record transition is one conditional update against the trip
// store; the accept transition is the only compound operation and runs under
// the per-trip exclusive lock.
type TripFlowService struct {
	trips      repository.TripRepository
	snippets   repository.SnippetRepository
	surge      *cache.SurgeCache
	locker     redisstore.TripLocker
	tripCache  *redisstore.TripCacheStore
	settlement SettlementPort
	notifier   NotificationPort
	timers     *TimerManager

	pricing     PricingConfig
	timerCfg    TimerConfig
	lockTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewTripFlowService creates a new TripFlowService. surge, locker, tripCache,
// and timers may be nil in reduced configurations; settlement and notifier
// must not be.
func NewTripFlowService(
	trips repository.TripRepository,
	snippets repository.SnippetRepository,
	surge *cache.SurgeCache,
	locker redisstore.TripLocker,
	tripCache *redisstore.TripCacheStore,
	settlement SettlementPort,
	notifier NotificationPort,
	timers *TimerManager,
	pricing PricingConfig,
	timerCfg TimerConfig,
	lockTimeout time.Duration,
	logger *slog.Logger,
) *TripFlowService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TripFlowService{
		trips:       trips,
		snippets:    snippets,
		surge:       surge,
		locker:      locker,
		tripCache:   tripCache,
		settlement:  settlement,
		notifier:    notifier,
		timers:      timers,
		pricing:     pricing,
		timerCfg:    timerCfg,
		lockTimeout: lockTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// CreateTripRequest contains the parameters for creating a trip. Addresses
// and currency arrive already resolved by the upstream geocoding and pricing
// collaborators.
type CreateTripRequest struct {
	RiderID         string
	PickupLat       float64
	PickupLng       float64
	DropoffLat      float64
	DropoffLng      float64
	PickupAddress   string
	DropoffAddress  string
	Product         domain.ProductCategory
	Currency        string
	Zone            string
	PackageWeightKg float64
}

// CreateTripResponse contains the result of creating a trip.
type CreateTripResponse struct {
	Trip            *domain.Trip
	SurgeMultiplier float64
}

// CreateTrip creates a trip in REQUESTED state, quotes the fare through the
// surge cache, and arms the no-show timer.
func (s *TripFlowService) CreateTrip(ctx context.Context, req CreateTripRequest) (*CreateTripResponse, error) {
	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}

	// Surge lookup is decoupled from the state machine; on error we quote
	// without surge rather than failing the creation.
	multiplier := 1.0
	if s.surge != nil {
		m, err := s.surge.Multiplier(ctx, req.Zone, req.Product)
		if err != nil {
			s.logger.Warn("surge lookup failed, quoting without surge",
				"zone", req.Zone, "product", req.Product, "error", err)
		} else {
			multiplier = m.Value
		}
	}

	trip := &domain.Trip{
		ID:              uuid.New().String(),
		RiderID:         req.RiderID,
		PickupLat:       req.PickupLat,
		PickupLng:       req.PickupLng,
		DropoffLat:      req.DropoffLat,
		DropoffLng:      req.DropoffLng,
		PickupAddress:   req.PickupAddress,
		DropoffAddress:  req.DropoffAddress,
		Product:         req.Product,
		Fare:            baseFareFor(req.Product) * multiplier,
		Currency:        req.Currency,
		PackageWeightKg: req.PackageWeightKg,
		Zone:            req.Zone,
		Status:          domain.TripStatusRequested,
		SafetyPIN:       generatePIN(),
		CreatedAt:       s.now(),
	}

	if err := s.trips.Create(ctx, trip); err != nil {
		return nil, err
	}

	if s.timers != nil {
		s.timers.ArmNoShow(trip.ID)
	}

	_ = s.notifier.BroadcastTripEvent(ctx, trip.ID, "created", StatusChangePayload{
		TripID:     trip.ID,
		RiderID:    trip.RiderID,
		Status:     string(trip.Status),
		OccurredAt: trip.CreatedAt,
	})

	return &CreateTripResponse{Trip: trip, SurgeMultiplier: multiplier}, nil
}

// AcceptRequest contains the parameters for a driver accepting a trip.
type AcceptRequest struct {
	TripID   string
	DriverID string
}

// MatchPayload is broadcast to both parties when a driver wins the accept
// race.
type MatchPayload struct {
	TripID     string               `json:"trip_id"`
	SafetyPIN  string               `json:"safety_pin"`
	Rider      domain.RiderSnippet  `json:"rider"`
	Driver     domain.DriverSnippet `json:"driver"`
	AcceptedAt time.Time            `json:"accepted_at"`
}

// Accept assigns the driver to a REQUESTED trip. This is the only compound
// transition: winning the conditional update, fetching both party
// projections, and broadcasting the match must not interleave with another
// accept for the same trip, so the whole sequence runs under the per-trip
// lock. Exactly one of N concurrent accepts succeeds; the rest observe
// ErrTransitionConflict.
func (s *TripFlowService) Accept(ctx context.Context, req AcceptRequest) (*MatchPayload, error) {
	if req.TripID == "" {
		return nil, ErrInvalidTripID
	}
	if req.DriverID == "" {
		return nil, ErrInvalidDriverID
	}

	var payload *MatchPayload

	run := func(ctx context.Context) error {
		applied, err := s.trips.AssignDriver(ctx, req.TripID, req.DriverID, s.now())
		if err != nil {
			return err
		}
		if !applied {
			return s.conflictOrNotFound(ctx, req.TripID)
		}

		s.invalidate(ctx, req.TripID)

		// Acceptance makes a pending no-show fire a guaranteed no-op,
		// but cancel it proactively anyway.
		if s.timers != nil {
			s.timers.Cancel(TimerNoShow, req.TripID)
		}

		trip, err := s.trips.GetByID(ctx, req.TripID)
		if err != nil {
			return err
		}

		payload = &MatchPayload{
			TripID:     trip.ID,
			SafetyPIN:  trip.SafetyPIN,
			AcceptedAt: trip.AcceptedAt,
		}

		// Snippet fetches are display data; a missing projection
		// degrades the payload, it does not undo the assignment.
		if rider, err := s.snippets.GetRiderSnippet(ctx, trip.RiderID); err != nil {
			s.logger.Warn("rider snippet fetch failed", "trip_id", trip.ID, "error", err)
		} else {
			payload.Rider = *rider
		}
		if driver, err := s.snippets.GetDriverSnippet(ctx, trip.DriverID); err != nil {
			s.logger.Warn("driver snippet fetch failed", "trip_id", trip.ID, "error", err)
		} else {
			payload.Driver = *driver
		}

		_ = s.notifier.BroadcastTripEvent(ctx, trip.ID, "matched", payload)
		_ = s.notifier.NotifyStatusChange(ctx, trip)

		return nil
	}

	var err error
	if s.locker != nil {
		err = s.locker.WithTripLock(ctx, req.TripID, s.lockTimeout, run)
	} else {
		err = run(ctx)
	}

	if err != nil {
		if errors.Is(err, redisstore.ErrLockBusy) {
			return nil, ErrLockBusy
		}
		return nil, err
	}

	return payload, nil
}

// TransitionRequest identifies a driver-initiated single-record transition.
type TransitionRequest struct {
	TripID   string
	DriverID string
}

// MarkEnRoute moves ACCEPTED -> EN_ROUTE.
func (s *TripFlowService) MarkEnRoute(ctx context.Context, req TransitionRequest) (*domain.Trip, error) {
	return s.driverTransition(ctx, req, func(ctx context.Context, at time.Time) (bool, error) {
		return s.trips.MarkEnRoute(ctx, req.TripID, req.DriverID, at)
	}, nil)
}

// MarkArrived moves EN_ROUTE -> ARRIVED and arms the waiting-fee timer.
func (s *TripFlowService) MarkArrived(ctx context.Context, req TransitionRequest) (*domain.Trip, error) {
	return s.driverTransition(ctx, req, func(ctx context.Context, at time.Time) (bool, error) {
		return s.trips.MarkArrived(ctx, req.TripID, req.DriverID, at)
	}, func(trip *domain.Trip) {
		if s.timers != nil {
			s.timers.ArmWaiting(trip.ID)
		}
	})
}

// StartTrip moves ARRIVED or WAITING -> IN_PROGRESS (rider picked up).
func (s *TripFlowService) StartTrip(ctx context.Context, req TransitionRequest) (*domain.Trip, error) {
	return s.driverTransition(ctx, req, func(ctx context.Context, at time.Time) (bool, error) {
		return s.trips.MarkInProgress(ctx, req.TripID, req.DriverID, at)
	}, func(trip *domain.Trip) {
		if s.timers != nil {
			s.timers.Cancel(TimerWaiting, trip.ID)
		}
	})
}

// CompleteTripRequest contains the parameters for completing a trip.
type CompleteTripRequest struct {
	TripID   string
	DriverID string
	Fare     *float64 // optional final fare override
}

// CompleteTrip moves IN_PROGRESS -> COMPLETED, then triggers final fare
// capture and the driver payout. Settlement failures are logged and flagged
// for reconciliation; the completed transition stands regardless.
func (s *TripFlowService) CompleteTrip(ctx context.Context, req CompleteTripRequest) (*domain.Trip, error) {
	if req.TripID == "" {
		return nil, ErrInvalidTripID
	}
	if req.DriverID == "" {
		return nil, ErrInvalidDriverID
	}
	if req.Fare != nil && *req.Fare < 0 {
		return nil, ErrInvalidFare
	}

	applied, err := s.trips.Complete(ctx, req.TripID, req.DriverID, req.Fare, s.now())
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, s.conflictOrNotFound(ctx, req.TripID)
	}

	s.invalidate(ctx, req.TripID)
	if s.timers != nil {
		s.timers.CancelTrip(req.TripID)
	}

	trip, err := s.trips.GetByID(ctx, req.TripID)
	if err != nil {
		return nil, err
	}

	if err := s.settlement.CaptureFinalFare(ctx, trip); err != nil {
		s.logger.Error("final fare capture failed, transition stands",
			"trip_id", trip.ID, "error", err)
	} else {
		payout := (trip.Fare + trip.WaitingFee) * s.pricing.DriverShare
		if err := s.settlement.TransferPayout(ctx, trip, payout); err != nil {
			s.logger.Error("driver payout failed, transition stands",
				"trip_id", trip.ID, "driver_id", trip.DriverID, "error", err)
		}
	}

	_ = s.notifier.NotifyStatusChange(ctx, trip)

	return trip, nil
}

// CancelTripRequest contains the parameters for cancelling a trip.
type CancelTripRequest struct {
	TripID string
	Reason string
}

// CancelTripResponse contains the result of a cancellation. AlreadyFinal is
// set when the trip was already terminal: the caller is informed, not errored.
type CancelTripResponse struct {
	Trip         *domain.Trip
	AlreadyFinal bool
}

// CancelTrip cancels the trip from any non-terminal state and disarms its
// timers. Idempotent: a second cancel (or a cancel after completion/no-show)
// reports AlreadyFinal.
func (s *TripFlowService) CancelTrip(ctx context.Context, req CancelTripRequest) (*CancelTripResponse, error) {
	if req.TripID == "" {
		return nil, ErrInvalidTripID
	}

	applied, err := s.trips.Cancel(ctx, req.TripID, req.Reason, s.now())
	if err != nil {
		return nil, err
	}

	trip, err := s.trips.GetByID(ctx, req.TripID)
	if err != nil {
		return nil, err
	}

	if !applied {
		if trip.Status.IsTerminal() {
			return &CancelTripResponse{Trip: trip, AlreadyFinal: true}, nil
		}
		// The trip transitioned between our update and the re-read.
		return nil, ErrTransitionConflict
	}

	s.invalidate(ctx, req.TripID)

	// Best-effort: a timer firing right now re-checks status and no-ops.
	if s.timers != nil {
		s.timers.CancelTrip(req.TripID)
	}

	_ = s.notifier.NotifyStatusChange(ctx, trip)

	return &CancelTripResponse{Trip: trip}, nil
}

// GetTrip retrieves a full trip snapshot from the store.
func (s *TripFlowService) GetTrip(ctx context.Context, tripID string) (*domain.Trip, error) {
	if tripID == "" {
		return nil, ErrInvalidTripID
	}
	return s.trips.GetByID(ctx, tripID)
}

// TripStatusSnapshot returns the lightweight status projection served to
// polling clients, read through the Redis snapshot cache. Timer callbacks
// never use this path; they always re-fetch from the store.
func (s *TripFlowService) TripStatusSnapshot(ctx context.Context, tripID string) (*redisstore.CachedTrip, error) {
	if tripID == "" {
		return nil, ErrInvalidTripID
	}

	if s.tripCache != nil {
		cached, err := s.tripCache.GetTrip(ctx, tripID)
		if err != nil {
			s.logger.Warn("trip cache read failed", "trip_id", tripID, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	trip, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}

	if s.tripCache != nil {
		if err := s.tripCache.SetTrip(ctx, trip); err != nil {
			s.logger.Warn("trip cache write failed", "trip_id", tripID, "error", err)
		}
	}

	return &redisstore.CachedTrip{
		ID:             trip.ID,
		RiderID:        trip.RiderID,
		DriverID:       trip.DriverID,
		Status:         string(trip.Status),
		Fare:           trip.Fare,
		Currency:       trip.Currency,
		WaitingSeconds: trip.WaitingSeconds,
		WaitingFee:     trip.WaitingFee,
	}, nil
}

// ListTripsRequest filters a trip listing. Exactly one filter must be set.
type ListTripsRequest struct {
	Status   domain.TripStatus
	RiderID  string
	DriverID string
}

// ListTrips lists trips by status or owner.
func (s *TripFlowService) ListTrips(ctx context.Context, req ListTripsRequest) ([]*domain.Trip, error) {
	switch {
	case req.Status != "":
		return s.trips.ListByStatus(ctx, req.Status)
	case req.RiderID != "":
		return s.trips.ListByRider(ctx, req.RiderID)
	case req.DriverID != "":
		return s.trips.ListByDriver(ctx, req.DriverID)
	default:
		return nil, ErrInvalidListFilter
	}
}

// ──────────────────────────────────────────────
// TIMER CALLBACKS
// ──────────────────────────────────────────────

// ExecuteTimerCommand runs a fired timer's callback. Callback errors are
// observable only through logs; there is no caller to propagate to.
func (s *TripFlowService) ExecuteTimerCommand(ctx context.Context, cmd TimerCommand) time.Duration {
	switch cmd.Family {
	case TimerNoShow:
		return s.fireNoShow(ctx, cmd.TripID)
	case TimerWaiting:
		return s.fireWaitingTick(ctx, cmd.TripID)
	default:
		s.logger.Error("unknown timer family", "family", cmd.Family, "trip_id", cmd.TripID)
		return 0
	}
}

// fireNoShow cancels a trip still REQUESTED after the grace period and
// captures the flat penalty. The conditional update makes a fire that races
// driver acceptance a silent no-op.
func (s *TripFlowService) fireNoShow(ctx context.Context, tripID string) time.Duration {
	applied, err := s.trips.MarkNoShow(ctx, tripID, domain.TripStatusRequested, "no-show", s.now())
	if err != nil {
		s.logger.Error("no-show timer: conditional update failed", "trip_id", tripID, "error", err)
		return 0
	}
	if !applied {
		// State advanced before the timer fired.
		return 0
	}

	s.invalidate(ctx, tripID)
	s.settleNoShow(ctx, tripID)
	return 0
}

// fireWaitingTick drives ARRIVED -> WAITING after the waiting grace, then
// accrues the waiting fee each interval until pickup, cancellation, or the
// waiting ceiling.
func (s *TripFlowService) fireWaitingTick(ctx context.Context, tripID string) time.Duration {
	trip, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Error("invariant violation: waiting timer for unknown trip", "trip_id", tripID)
		} else {
			s.logger.Error("waiting timer: trip fetch failed", "trip_id", tripID, "error", err)
		}
		return 0
	}

	switch trip.Status {
	case domain.TripStatusArrived:
		if trip.ArrivedAt.IsZero() {
			s.logger.Error("invariant violation: waiting timer for trip without arrival timestamp",
				"trip_id", tripID, "status", trip.Status)
			return 0
		}

		applied, err := s.trips.MarkWaiting(ctx, tripID, s.now())
		if err != nil {
			s.logger.Error("waiting timer: conditional update failed", "trip_id", tripID, "error", err)
			return 0
		}
		if !applied {
			return 0
		}

		s.invalidate(ctx, tripID)
		if updated, err := s.trips.GetByID(ctx, tripID); err == nil {
			_ = s.notifier.NotifyStatusChange(ctx, updated)
		}
		return s.timerCfg.TickInterval

	case domain.TripStatusWaiting:
		seconds, fee, terminate := NextWaitingAccrual(
			trip.WaitingSeconds, s.timerCfg.TickInterval, s.timerCfg.WaitingCeiling, s.pricing.WaitPerMinuteRate)

		if terminate {
			applied, err := s.trips.MarkNoShow(ctx, tripID, domain.TripStatusWaiting, "no-show", s.now())
			if err != nil {
				s.logger.Error("waiting ceiling: conditional update failed", "trip_id", tripID, "error", err)
				return 0
			}
			if applied {
				s.invalidate(ctx, tripID)
				s.settleNoShow(ctx, tripID)
			}
			return 0
		}

		applied, err := s.trips.AccrueWaiting(ctx, tripID, seconds, fee)
		if err != nil {
			s.logger.Error("waiting accrual: conditional update failed", "trip_id", tripID, "error", err)
			return 0
		}
		if !applied {
			// Picked up or cancelled between the read and the write.
			return 0
		}

		s.invalidate(ctx, tripID)
		return s.timerCfg.TickInterval

	default:
		// Trip moved on; the ticker deregisters itself with no side effect.
		return 0
	}
}

// settleNoShow captures the flat no-show penalty and notifies both parties.
func (s *TripFlowService) settleNoShow(ctx context.Context, tripID string) {
	trip, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		s.logger.Error("no-show settlement: trip fetch failed", "trip_id", tripID, "error", err)
		return
	}

	if err := s.settlement.CaptureFee(ctx, trip, domain.CaptureNoShowPenalty, s.pricing.NoShowPenalty); err != nil {
		s.logger.Error("no-show penalty capture failed, flagged for reconciliation",
			"trip_id", tripID, "error", err)
	}

	_ = s.notifier.NotifyStatusChange(ctx, trip)
	_ = s.notifier.BroadcastTripEvent(ctx, trip.ID, "no_show", StatusChangePayload{
		TripID:     trip.ID,
		RiderID:    trip.RiderID,
		DriverID:   trip.DriverID,
		Status:     string(trip.Status),
		Reason:     trip.CancelReason,
		OccurredAt: s.now(),
	})
}

// ──────────────────────────────────────────────
// HELPERS
// ──────────────────────────────────────────────

// driverTransition runs one driver-actor conditional update, then refreshes
// and returns the trip. after runs only when the transition applied.
func (s *TripFlowService) driverTransition(
	ctx context.Context,
	req TransitionRequest,
	update func(ctx context.Context, at time.Time) (bool, error),
	after func(trip *domain.Trip),
) (*domain.Trip, error) {
	if req.TripID == "" {
		return nil, ErrInvalidTripID
	}
	if req.DriverID == "" {
		return nil, ErrInvalidDriverID
	}

	applied, err := update(ctx, s.now())
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, s.conflictOrNotFound(ctx, req.TripID)
	}

	s.invalidate(ctx, req.TripID)

	trip, err := s.trips.GetByID(ctx, req.TripID)
	if err != nil {
		return nil, err
	}

	if after != nil {
		after(trip)
	}

	_ = s.notifier.NotifyStatusChange(ctx, trip)

	return trip, nil
}

// conflictOrNotFound distinguishes the two reasons a conditional update can
// match zero rows.
func (s *TripFlowService) conflictOrNotFound(ctx context.Context, tripID string) error {
	if _, err := s.trips.GetByID(ctx, tripID); err != nil {
		return err
	}
	return ErrTransitionConflict
}

func (s *TripFlowService) invalidate(ctx context.Context, tripID string) {
	if s.tripCache == nil {
		return
	}
	if err := s.tripCache.InvalidateTrip(ctx, tripID); err != nil {
		s.logger.Warn("trip cache invalidation failed", "trip_id", tripID, "error", err)
	}
}

func validateCreateRequest(req CreateTripRequest) error {
	if req.RiderID == "" {
		return ErrInvalidRiderID
	}
	if !isValidLatitude(req.PickupLat) || !isValidLongitude(req.PickupLng) {
		return ErrInvalidPickupLocation
	}
	if !isValidLatitude(req.DropoffLat) || !isValidLongitude(req.DropoffLng) {
		return ErrInvalidDropoffLocation
	}
	if !domain.ValidProduct(req.Product) {
		return ErrInvalidProduct
	}
	if len(req.Currency) != 3 {
		return ErrInvalidCurrency
	}
	return nil
}

func isValidLatitude(lat float64) bool {
	return lat >= -90 && lat <= 90
}

func isValidLongitude(lng float64) bool {
	return lng >= -180 && lng <= 180
}

// generatePIN returns the 4-digit safety token shown to the rider and read
// back by the driver at pickup.
func generatePIN() string {
	return fmt.Sprintf("%04d", rand.Intn(10000))
}

// Ensure TripFlowService implements TimerExecutor.
var _ TimerExecutor = (*TripFlowService)(nil)
