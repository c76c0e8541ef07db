package tests

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"tripflow/internal/domain"
	"tripflow/internal/repository"
	"tripflow/internal/service"
)

// fixture bundles the flow engine with its mock collaborators.
type fixture struct {
	flow       *service.TripFlowService
	trips      *MockTripRepository
	snippets   *MockSnippetRepository
	locker     *MockTripLocker
	settlement *MockSettlement
	notifier   *MockNotifier
	timers     *service.TimerManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	trips := NewMockTripRepository()
	snippets := NewMockSnippetRepository()
	locker := NewMockTripLocker()
	settlement := NewMockSettlement()
	notifier := NewMockNotifier()

	// Compressed schedule so nothing scheduled here can fire mid-test.
	timerCfg := service.TimerConfig{
		NoShowGrace:    time.Hour,
		WaitingGrace:   time.Hour,
		TickInterval:   30 * time.Second,
		WaitingCeiling: 7 * time.Minute,
		Workers:        2,
	}
	timers := service.NewTimerManager(timerCfg, slog.Default())

	flow := service.NewTripFlowService(
		trips, snippets, nil, locker, nil,
		settlement, notifier, timers,
		service.DefaultPricingConfig(), timerCfg, time.Second, slog.Default(),
	)

	return &fixture{
		flow:       flow,
		trips:      trips,
		snippets:   snippets,
		locker:     locker,
		settlement: settlement,
		notifier:   notifier,
		timers:     timers,
	}
}

func (f *fixture) createRequested(t *testing.T) *domain.Trip {
	t.Helper()

	result, err := f.flow.CreateTrip(context.Background(), service.CreateTripRequest{
		RiderID:        "rider-1",
		PickupLat:      52.52,
		PickupLng:      13.405,
		DropoffLat:     52.50,
		DropoffLng:     13.39,
		PickupAddress:  "Alexanderplatz 1",
		DropoffAddress: "Potsdamer Platz 1",
		Product:        domain.ProductStandard,
		Currency:       "EUR",
		Zone:           "berlin-mitte",
	})
	if err != nil {
		t.Fatalf("create trip: %v", err)
	}
	return result.Trip
}

// ──────────────────────────────────────────────
// FULL LIFECYCLE
// ──────────────────────────────────────────────

func TestLifecycle_HappyPath(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	trip := f.createRequested(t)
	if trip.Status != domain.TripStatusRequested {
		t.Fatalf("expected REQUESTED, got %s", trip.Status)
	}
	if len(trip.SafetyPIN) != 4 {
		t.Errorf("expected 4-digit safety PIN, got %q", trip.SafetyPIN)
	}
	if !f.timers.Active(service.TimerNoShow, trip.ID) {
		t.Error("expected no-show timer armed after creation")
	}

	f.snippets.AddRider(&domain.RiderSnippet{ID: "rider-1", Name: "Ana", Rating: 4.9})
	f.snippets.AddDriver(&domain.DriverSnippet{ID: "driver-1", Name: "Ben", VehiclePlate: "B-XY 123"})

	match, err := f.flow.Accept(ctx, service.AcceptRequest{TripID: trip.ID, DriverID: "driver-1"})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if match.SafetyPIN != trip.SafetyPIN {
		t.Error("match payload missing safety PIN")
	}
	if match.Rider.Name != "Ana" || match.Driver.Name != "Ben" {
		t.Errorf("match payload snippets wrong: %+v", match)
	}
	if f.timers.Active(service.TimerNoShow, trip.ID) {
		t.Error("no-show timer should be cancelled on accept")
	}

	req := service.TransitionRequest{TripID: trip.ID, DriverID: "driver-1"}

	got, err := f.flow.MarkEnRoute(ctx, req)
	if err != nil || got.Status != domain.TripStatusEnRoute {
		t.Fatalf("en route: %v, status %s", err, got.Status)
	}

	got, err = f.flow.MarkArrived(ctx, req)
	if err != nil || got.Status != domain.TripStatusArrived {
		t.Fatalf("arrived: %v, status %s", err, got.Status)
	}
	if !f.timers.Active(service.TimerWaiting, trip.ID) {
		t.Error("expected waiting timer armed on arrival")
	}

	got, err = f.flow.StartTrip(ctx, req)
	if err != nil || got.Status != domain.TripStatusInProgress {
		t.Fatalf("start: %v, status %s", err, got.Status)
	}
	if f.timers.Active(service.TimerWaiting, trip.ID) {
		t.Error("waiting timer should be cancelled at pickup")
	}

	fare := 21.5
	got, err = f.flow.CompleteTrip(ctx, service.CompleteTripRequest{TripID: trip.ID, DriverID: "driver-1", Fare: &fare})
	if err != nil || got.Status != domain.TripStatusCompleted {
		t.Fatalf("complete: %v, status %s", err, got.Status)
	}
	if got.Fare != 21.5 {
		t.Errorf("expected fare override 21.5, got %v", got.Fare)
	}

	final := f.settlement.FeeOfKind(trip.ID, domain.CaptureFinalFare)
	if final == nil {
		t.Fatal("expected final fare capture")
	}
	if final.Amount != 21.5 {
		t.Errorf("expected capture amount 21.5, got %v", final.Amount)
	}
	if len(f.settlement.Payouts) != 1 {
		t.Fatalf("expected 1 payout, got %d", len(f.settlement.Payouts))
	}
	if want := 21.5 * 0.8; f.settlement.Payouts[0].Amount != want {
		t.Errorf("expected payout %v, got %v", want, f.settlement.Payouts[0].Amount)
	}
}

func TestLifecycle_CompletedFareIncludesWaitingFee(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.trips.AddTrip(&domain.Trip{
		ID:             "trip-w",
		RiderID:        "rider-1",
		DriverID:       "driver-1",
		Status:         domain.TripStatusInProgress,
		Fare:           10.0,
		WaitingSeconds: 120,
		WaitingFee:     1.0,
	})

	_, err := f.flow.CompleteTrip(ctx, service.CompleteTripRequest{TripID: "trip-w", DriverID: "driver-1"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	final := f.settlement.FeeOfKind("trip-w", domain.CaptureFinalFare)
	if final == nil {
		t.Fatal("expected final fare capture")
	}
	if final.Amount != 11.0 {
		t.Errorf("expected fare 10 + waiting fee 1, got %v", final.Amount)
	}
}

// ──────────────────────────────────────────────
// TRANSITION RACES AND ORDERING
// ──────────────────────────────────────────────

func TestAccept_ConcurrentDrivers_ExactlyOneWins(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	trip := f.createRequested(t)

	const drivers = 20
	var wg sync.WaitGroup
	results := make([]error, drivers)

	for i := 0; i < drivers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.flow.Accept(context.Background(), service.AcceptRequest{
				TripID:   trip.ID,
				DriverID: "driver-" + string(rune('a'+i)),
			})
		}(i)
	}
	wg.Wait()

	wins, conflicts := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, service.ErrTransitionConflict):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	if wins != 1 {
		t.Errorf("expected exactly 1 winning accept, got %d", wins)
	}
	if conflicts != drivers-1 {
		t.Errorf("expected %d conflicts, got %d", drivers-1, conflicts)
	}

	stored := f.trips.GetTrip(trip.ID)
	if stored.Status != domain.TripStatusAccepted || stored.DriverID == "" {
		t.Errorf("trip not properly assigned: %+v", stored)
	}
}

func TestTransitions_WrongDriver_Conflicts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.trips.AddTrip(&domain.Trip{
		ID:       "trip-1",
		RiderID:  "rider-1",
		DriverID: "driver-1",
		Status:   domain.TripStatusAccepted,
	})

	_, err := f.flow.MarkEnRoute(ctx, service.TransitionRequest{TripID: "trip-1", DriverID: "driver-2"})
	if !errors.Is(err, service.ErrTransitionConflict) {
		t.Errorf("expected conflict for wrong driver, got %v", err)
	}

	// The assigned driver still succeeds afterwards.
	_, err = f.flow.MarkEnRoute(ctx, service.TransitionRequest{TripID: "trip-1", DriverID: "driver-1"})
	if err != nil {
		t.Errorf("assigned driver should succeed: %v", err)
	}
}

func TestTransitions_OutOfOrder_Conflicts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	trip := f.createRequested(t)

	// Completing a REQUESTED trip skips the whole chain.
	_, err := f.flow.CompleteTrip(ctx, service.CompleteTripRequest{TripID: trip.ID, DriverID: "driver-1"})
	if !errors.Is(err, service.ErrTransitionConflict) {
		t.Errorf("expected conflict, got %v", err)
	}

	// Starting before arrival likewise.
	_, err = f.flow.StartTrip(ctx, service.TransitionRequest{TripID: trip.ID, DriverID: "driver-1"})
	if !errors.Is(err, service.ErrTransitionConflict) {
		t.Errorf("expected conflict, got %v", err)
	}

	if got := f.trips.GetTrip(trip.ID).Status; got != domain.TripStatusRequested {
		t.Errorf("failed transitions must not change state, got %s", got)
	}
}

func TestTransitions_UnknownTrip_NotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.flow.Accept(ctx, service.AcceptRequest{TripID: "nope", DriverID: "driver-1"})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	_, err = f.flow.GetTrip(ctx, "nope")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAccept_LockBusy_Translates(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	trip := f.createRequested(t)

	f.locker.LockError = ErrMockLockBusy
	_, err := f.flow.Accept(context.Background(), service.AcceptRequest{TripID: trip.ID, DriverID: "driver-1"})
	if err == nil {
		t.Fatal("expected error when lock cannot be acquired")
	}
	if got := f.trips.GetTrip(trip.ID).Status; got != domain.TripStatusRequested {
		t.Errorf("trip must stay REQUESTED when lock fails, got %s", got)
	}
}

// ──────────────────────────────────────────────
// CANCELLATION
// ──────────────────────────────────────────────

func TestCancel_FromAnyNonTerminalState(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	for _, status := range []domain.TripStatus{
		domain.TripStatusRequested,
		domain.TripStatusAccepted,
		domain.TripStatusEnRoute,
		domain.TripStatusArrived,
		domain.TripStatusWaiting,
		domain.TripStatusInProgress,
	} {
		id := "trip-" + string(status)
		f.trips.AddTrip(&domain.Trip{ID: id, RiderID: "rider-1", Status: status})

		result, err := f.flow.CancelTrip(ctx, service.CancelTripRequest{TripID: id, Reason: "rider change of plans"})
		if err != nil {
			t.Fatalf("cancel from %s: %v", status, err)
		}
		if result.AlreadyFinal {
			t.Errorf("cancel from %s reported already final", status)
		}
		if result.Trip.Status != domain.TripStatusCancelled {
			t.Errorf("cancel from %s: got %s", status, result.Trip.Status)
		}
	}
}

func TestCancel_Twice_ReportsAlreadyFinal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	trip := f.createRequested(t)

	first, err := f.flow.CancelTrip(ctx, service.CancelTripRequest{TripID: trip.ID, Reason: "mistake"})
	if err != nil || first.AlreadyFinal {
		t.Fatalf("first cancel: %v already_final=%v", err, first.AlreadyFinal)
	}

	second, err := f.flow.CancelTrip(ctx, service.CancelTripRequest{TripID: trip.ID, Reason: "again"})
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if !second.AlreadyFinal {
		t.Error("second cancel should report already final")
	}
	if second.Trip.CancelReason != "mistake" {
		t.Errorf("original cancel reason must be preserved, got %q", second.Trip.CancelReason)
	}
}

func TestCancel_AfterCompletion_ReportsAlreadyFinal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.trips.AddTrip(&domain.Trip{
		ID:      "trip-done",
		RiderID: "rider-1",
		Status:  domain.TripStatusCompleted,
	})

	result, err := f.flow.CancelTrip(ctx, service.CancelTripRequest{TripID: "trip-done", Reason: "too late"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !result.AlreadyFinal {
		t.Error("cancel after completion should report already final")
	}
	if result.Trip.Status != domain.TripStatusCompleted {
		t.Errorf("status must stay COMPLETED, got %s", result.Trip.Status)
	}
}

// ──────────────────────────────────────────────
// VALIDATION
// ──────────────────────────────────────────────

func TestCreateTrip_Validation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	base := service.CreateTripRequest{
		RiderID:    "rider-1",
		PickupLat:  52.52,
		PickupLng:  13.405,
		DropoffLat: 52.50,
		DropoffLng: 13.39,
		Product:    domain.ProductStandard,
		Currency:   "EUR",
	}

	cases := []struct {
		name    string
		mutate  func(*service.CreateTripRequest)
		wantErr error
	}{
		{"missing rider", func(r *service.CreateTripRequest) { r.RiderID = "" }, service.ErrInvalidRiderID},
		{"bad pickup latitude", func(r *service.CreateTripRequest) { r.PickupLat = 91 }, service.ErrInvalidPickupLocation},
		{"bad dropoff longitude", func(r *service.CreateTripRequest) { r.DropoffLng = -200 }, service.ErrInvalidDropoffLocation},
		{"unknown product", func(r *service.CreateTripRequest) { r.Product = "HELICOPTER" }, service.ErrInvalidProduct},
		{"bad currency", func(r *service.CreateTripRequest) { r.Currency = "EURO" }, service.ErrInvalidCurrency},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mutate(&req)
			_, err := f.flow.CreateTrip(ctx, req)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}

	if f.trips.CountTrips() != 0 {
		t.Errorf("invalid requests must not persist trips, got %d", f.trips.CountTrips())
	}
}

func TestListTrips_RequiresExactlyOneFilter(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.flow.ListTrips(ctx, service.ListTripsRequest{})
	if !errors.Is(err, service.ErrInvalidListFilter) {
		t.Errorf("expected ErrInvalidListFilter, got %v", err)
	}

	f.trips.AddTrip(&domain.Trip{ID: "t1", RiderID: "rider-1", Status: domain.TripStatusRequested})
	trips, err := f.flow.ListTrips(ctx, service.ListTripsRequest{RiderID: "rider-1"})
	if err != nil || len(trips) != 1 {
		t.Errorf("rider filter: err=%v len=%d", err, len(trips))
	}
}
