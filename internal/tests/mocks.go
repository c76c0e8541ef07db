package tests

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"tripflow/internal/domain"
	"tripflow/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK TRIP REPOSITORY
// ──────────────────────────────────────────────

// MockTripRepository is an in-memory TripRepository that preserves the
// conditional-update contract: every transition checks the precondition and
// writes under one lock, so concurrent callers race exactly as they would
// against the real store.
type MockTripRepository struct {
	mu    sync.RWMutex
	trips map[string]*domain.Trip

	// Counters for verification
	CreateCallCount       int32
	AssignDriverCallCount int32
	MarkWaitingCallCount  int32
	MarkNoShowCallCount   int32
	AccrueCallCount       int32

	// Error injection
	CreateError error
	UpdateError error
	GetError    error
}

// NewMockTripRepository creates a new mock trip repository.
func NewMockTripRepository() *MockTripRepository {
	return &MockTripRepository{
		trips: make(map[string]*domain.Trip),
	}
}

// AddTrip adds a trip to the mock repository.
func (m *MockTripRepository) AddTrip(trip *domain.Trip) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips[trip.ID] = trip
}

func (m *MockTripRepository) Create(ctx context.Context, trip *domain.Trip) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *trip
	m.trips[trip.ID] = &copy
	return nil
}

func (m *MockTripRepository) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	trip, ok := m.trips[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	// Return a copy to avoid mutation issues.
	copy := *trip
	return &copy, nil
}

func (m *MockTripRepository) ListByStatus(ctx context.Context, status domain.TripStatus) ([]*domain.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Trip
	for _, t := range m.trips {
		if t.Status == status {
			copy := *t
			result = append(result, &copy)
		}
	}
	return result, nil
}

func (m *MockTripRepository) ListByRider(ctx context.Context, riderID string) ([]*domain.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Trip
	for _, t := range m.trips {
		if t.RiderID == riderID {
			copy := *t
			result = append(result, &copy)
		}
	}
	return result, nil
}

func (m *MockTripRepository) ListByDriver(ctx context.Context, driverID string) ([]*domain.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Trip
	for _, t := range m.trips {
		if t.DriverID == driverID {
			copy := *t
			result = append(result, &copy)
		}
	}
	return result, nil
}

func (m *MockTripRepository) AssignDriver(ctx context.Context, tripID, driverID string, at time.Time) (bool, error) {
	atomic.AddInt32(&m.AssignDriverCallCount, 1)
	if m.UpdateError != nil {
		return false, m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	trip, ok := m.trips[tripID]
	if !ok || trip.Status != domain.TripStatusRequested || trip.DriverID != "" {
		return false, nil
	}
	trip.DriverID = driverID
	trip.Status = domain.TripStatusAccepted
	trip.AcceptedAt = at
	return true, nil
}

func (m *MockTripRepository) MarkEnRoute(ctx context.Context, tripID, driverID string, at time.Time) (bool, error) {
	if m.UpdateError != nil {
		return false, m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	trip, ok := m.trips[tripID]
	if !ok || trip.Status != domain.TripStatusAccepted || trip.DriverID != driverID {
		return false, nil
	}
	trip.Status = domain.TripStatusEnRoute
	trip.EnRouteAt = at
	return true, nil
}

func (m *MockTripRepository) MarkArrived(ctx context.Context, tripID, driverID string, at time.Time) (bool, error) {
	if m.UpdateError != nil {
		return false, m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	trip, ok := m.trips[tripID]
	if !ok || trip.Status != domain.TripStatusEnRoute || trip.DriverID != driverID {
		return false, nil
	}
	trip.Status = domain.TripStatusArrived
	trip.ArrivedAt = at
	return true, nil
}

func (m *MockTripRepository) MarkWaiting(ctx context.Context, tripID string, at time.Time) (bool, error) {
	atomic.AddInt32(&m.MarkWaitingCallCount, 1)
	if m.UpdateError != nil {
		return false, m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	trip, ok := m.trips[tripID]
	if !ok || trip.Status != domain.TripStatusArrived {
		return false, nil
	}
	trip.Status = domain.TripStatusWaiting
	trip.WaitingAt = at
	trip.WaitingSeconds = 0
	trip.WaitingFee = 0
	return true, nil
}

func (m *MockTripRepository) MarkInProgress(ctx context.Context, tripID, driverID string, at time.Time) (bool, error) {
	if m.UpdateError != nil {
		return false, m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	trip, ok := m.trips[tripID]
	if !ok || trip.DriverID != driverID {
		return false, nil
	}
	if trip.Status != domain.TripStatusArrived && trip.Status != domain.TripStatusWaiting {
		return false, nil
	}
	trip.Status = domain.TripStatusInProgress
	trip.PickupAt = at
	return true, nil
}

func (m *MockTripRepository) Complete(ctx context.Context, tripID, driverID string, fare *float64, at time.Time) (bool, error) {
	if m.UpdateError != nil {
		return false, m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	trip, ok := m.trips[tripID]
	if !ok || trip.Status != domain.TripStatusInProgress || trip.DriverID != driverID {
		return false, nil
	}
	if fare != nil {
		trip.Fare = *fare
	}
	trip.Status = domain.TripStatusCompleted
	trip.CompletedAt = at
	return true, nil
}

func (m *MockTripRepository) Cancel(ctx context.Context, tripID, reason string, at time.Time) (bool, error) {
	if m.UpdateError != nil {
		return false, m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	trip, ok := m.trips[tripID]
	if !ok || trip.Status.IsTerminal() {
		return false, nil
	}
	trip.Status = domain.TripStatusCancelled
	trip.CancelReason = reason
	trip.CancelledAt = at
	return true, nil
}

func (m *MockTripRepository) MarkNoShow(ctx context.Context, tripID string, expected domain.TripStatus, reason string, at time.Time) (bool, error) {
	atomic.AddInt32(&m.MarkNoShowCallCount, 1)
	if m.UpdateError != nil {
		return false, m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	trip, ok := m.trips[tripID]
	if !ok || trip.Status != expected {
		return false, nil
	}
	trip.Status = domain.TripStatusNoShow
	trip.CancelReason = reason
	trip.NoShowAt = at
	return true, nil
}

func (m *MockTripRepository) AccrueWaiting(ctx context.Context, tripID string, seconds int64, fee float64) (bool, error) {
	atomic.AddInt32(&m.AccrueCallCount, 1)
	if m.UpdateError != nil {
		return false, m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	trip, ok := m.trips[tripID]
	if !ok || trip.Status != domain.TripStatusWaiting {
		return false, nil
	}
	trip.WaitingSeconds = seconds
	trip.WaitingFee = fee
	return true, nil
}

// GetTrip returns the stored trip for assertions.
func (m *MockTripRepository) GetTrip(id string) *domain.Trip {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trips[id]
}

// CountTrips returns the number of trips.
func (m *MockTripRepository) CountTrips() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.trips)
}

// ──────────────────────────────────────────────
// MOCK SNIPPET REPOSITORY
// ──────────────────────────────────────────────

// MockSnippetRepository is a mock implementation of SnippetRepository.
type MockSnippetRepository struct {
	mu      sync.RWMutex
	riders  map[string]*domain.RiderSnippet
	drivers map[string]*domain.DriverSnippet

	// Error injection
	RiderError  error
	DriverError error
}

// NewMockSnippetRepository creates a new mock snippet repository.
func NewMockSnippetRepository() *MockSnippetRepository {
	return &MockSnippetRepository{
		riders:  make(map[string]*domain.RiderSnippet),
		drivers: make(map[string]*domain.DriverSnippet),
	}
}

// AddRider adds a rider snippet.
func (m *MockSnippetRepository) AddRider(r *domain.RiderSnippet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.riders[r.ID] = r
}

// AddDriver adds a driver snippet.
func (m *MockSnippetRepository) AddDriver(d *domain.DriverSnippet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[d.ID] = d
}

func (m *MockSnippetRepository) GetRiderSnippet(ctx context.Context, riderID string) (*domain.RiderSnippet, error) {
	if m.RiderError != nil {
		return nil, m.RiderError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.riders[riderID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *r
	return &copy, nil
}

func (m *MockSnippetRepository) GetDriverSnippet(ctx context.Context, driverID string) (*domain.DriverSnippet, error) {
	if m.DriverError != nil {
		return nil, m.DriverError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drivers[driverID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *d
	return &copy, nil
}

// ──────────────────────────────────────────────
// MOCK CAPTURE REPOSITORY
// ──────────────────────────────────────────────

// MockCaptureRepository is a mock implementation of CaptureRepository.
type MockCaptureRepository struct {
	mu       sync.RWMutex
	captures map[string]*domain.FeeCapture

	// Counters
	CreateCallCount int32

	// Error injection
	CreateError error
}

// NewMockCaptureRepository creates a new mock capture repository.
func NewMockCaptureRepository() *MockCaptureRepository {
	return &MockCaptureRepository{
		captures: make(map[string]*domain.FeeCapture),
	}
}

func (m *MockCaptureRepository) Create(ctx context.Context, capture *domain.FeeCapture) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *capture
	m.captures[capture.ID] = &copy
	return nil
}

func (m *MockCaptureRepository) GetByID(ctx context.Context, id string) (*domain.FeeCapture, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.captures[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *c
	return &copy, nil
}

func (m *MockCaptureRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.FeeCapture, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.captures {
		if c.IdempotencyKey == key {
			copy := *c
			return &copy, nil
		}
	}
	return nil, nil // Not found, but not an error for idempotency check
}

func (m *MockCaptureRepository) UpdateStatus(ctx context.Context, id string, status domain.CaptureStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.captures[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.Status = status
	return nil
}

func (m *MockCaptureRepository) ListByTrip(ctx context.Context, tripID string) ([]*domain.FeeCapture, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.FeeCapture
	for _, c := range m.captures {
		if c.TripID == tripID {
			copy := *c
			result = append(result, &copy)
		}
	}
	return result, nil
}

// CountCaptures returns the number of captures.
func (m *MockCaptureRepository) CountCaptures() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.captures)
}

// GetCaptureByKind returns the first capture of the given kind for a trip.
func (m *MockCaptureRepository) GetCaptureByKind(tripID string, kind domain.CaptureKind) *domain.FeeCapture {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.captures {
		if c.TripID == tripID && c.Kind == kind {
			return c
		}
	}
	return nil
}

// ──────────────────────────────────────────────
// MOCK SURGE WINDOW REPOSITORY
// ──────────────────────────────────────────────

// MockSurgeWindowRepository is a mock implementation of SurgeWindowRepository.
type MockSurgeWindowRepository struct {
	mu      sync.RWMutex
	windows []*domain.SurgeWindow

	// Counters
	FindActiveCallCount int32

	// Error injection
	FindActiveError error
	ListKeysError   error
}

// NewMockSurgeWindowRepository creates a new mock surge window repository.
func NewMockSurgeWindowRepository() *MockSurgeWindowRepository {
	return &MockSurgeWindowRepository{}
}

// AddWindow adds a surge window.
func (m *MockSurgeWindowRepository) AddWindow(w *domain.SurgeWindow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows = append(m.windows, w)
}

func (m *MockSurgeWindowRepository) FindActive(ctx context.Context, zone string, product domain.ProductCategory, at time.Time) (*domain.SurgeWindow, error) {
	atomic.AddInt32(&m.FindActiveCallCount, 1)
	if m.FindActiveError != nil {
		return nil, m.FindActiveError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, w := range m.windows {
		if w.Zone == zone && w.Product == product && w.Covers(at) {
			copy := *w
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockSurgeWindowRepository) ListKnownKeys(ctx context.Context) ([]repository.SurgeKey, error) {
	if m.ListKeysError != nil {
		return nil, m.ListKeysError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[repository.SurgeKey]bool)
	var keys []repository.SurgeKey
	for _, w := range m.windows {
		key := repository.SurgeKey{Zone: w.Zone, Product: w.Product}
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// ──────────────────────────────────────────────
// MOCK TRIP LOCKER
// ──────────────────────────────────────────────

// MockTripLocker serializes bodies per trip with real mutual exclusion, so
// accept-race tests exercise the same contention the Redis lock provides.
type MockTripLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// Counters
	LockCallCount int32

	// Error injection
	LockError error
}

// NewMockTripLocker creates a new mock trip locker.
func NewMockTripLocker() *MockTripLocker {
	return &MockTripLocker{
		locks: make(map[string]*sync.Mutex),
	}
}

func (m *MockTripLocker) WithTripLock(ctx context.Context, tripID string, timeout time.Duration, body func(ctx context.Context) error) error {
	atomic.AddInt32(&m.LockCallCount, 1)
	if m.LockError != nil {
		return m.LockError
	}

	m.mu.Lock()
	lock, ok := m.locks[tripID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[tripID] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return body(ctx)
}

// ──────────────────────────────────────────────
// MOCK SETTLEMENT
// ──────────────────────────────────────────────

// MockSettlement is a mock implementation of SettlementPort.
type MockSettlement struct {
	mu sync.Mutex

	// Recorded calls
	Fees    []RecordedFee
	Payouts []RecordedFee

	// Counters
	CaptureFeeCallCount       int32
	CaptureFinalFareCallCount int32
	TransferPayoutCallCount   int32

	// Error injection
	CaptureError error
}

// RecordedFee is one recorded settlement call.
type RecordedFee struct {
	TripID string
	Kind   domain.CaptureKind
	Amount float64
}

// NewMockSettlement creates a new mock settlement port.
func NewMockSettlement() *MockSettlement {
	return &MockSettlement{}
}

func (m *MockSettlement) CaptureFee(ctx context.Context, trip *domain.Trip, kind domain.CaptureKind, amount float64) error {
	atomic.AddInt32(&m.CaptureFeeCallCount, 1)
	if m.CaptureError != nil {
		return m.CaptureError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fees = append(m.Fees, RecordedFee{TripID: trip.ID, Kind: kind, Amount: amount})
	return nil
}

func (m *MockSettlement) CaptureFinalFare(ctx context.Context, trip *domain.Trip) error {
	atomic.AddInt32(&m.CaptureFinalFareCallCount, 1)
	if m.CaptureError != nil {
		return m.CaptureError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fees = append(m.Fees, RecordedFee{TripID: trip.ID, Kind: domain.CaptureFinalFare, Amount: trip.Fare + trip.WaitingFee})
	return nil
}

func (m *MockSettlement) TransferPayout(ctx context.Context, trip *domain.Trip, amount float64) error {
	atomic.AddInt32(&m.TransferPayoutCallCount, 1)
	if m.CaptureError != nil {
		return m.CaptureError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Payouts = append(m.Payouts, RecordedFee{TripID: trip.ID, Kind: domain.CapturePayout, Amount: amount})
	return nil
}

// FeeOfKind returns the first recorded fee of the given kind for a trip.
func (m *MockSettlement) FeeOfKind(tripID string, kind domain.CaptureKind) *RecordedFee {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Fees {
		if m.Fees[i].TripID == tripID && m.Fees[i].Kind == kind {
			return &m.Fees[i]
		}
	}
	return nil
}

// ──────────────────────────────────────────────
// MOCK NOTIFIER
// ──────────────────────────────────────────────

// MockNotifier is a mock implementation of NotificationPort.
type MockNotifier struct {
	mu     sync.Mutex
	Events []RecordedEvent

	// Counters
	BroadcastCallCount int32
	StatusCallCount    int32
}

// RecordedEvent is one recorded notification.
type RecordedEvent struct {
	TripID string
	Event  string
	Status domain.TripStatus
}

// NewMockNotifier creates a new mock notifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) BroadcastTripEvent(ctx context.Context, tripID, event string, payload any) error {
	atomic.AddInt32(&m.BroadcastCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, RecordedEvent{TripID: tripID, Event: event})
	return nil
}

func (m *MockNotifier) NotifyStatusChange(ctx context.Context, trip *domain.Trip) error {
	atomic.AddInt32(&m.StatusCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, RecordedEvent{TripID: trip.ID, Event: "status_changed", Status: trip.Status})
	return nil
}

// ──────────────────────────────────────────────
// HELPER ERRORS
// ──────────────────────────────────────────────

var (
	ErrMockDBDown   = errors.New("mock: database unavailable")
	ErrMockTimeout  = errors.New("mock: operation timeout")
	ErrMockLockBusy = errors.New("mock: lock busy")
)
