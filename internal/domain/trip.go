package domain

import "time"

// TripStatus represents the current lifecycle status of a trip.
type TripStatus string

const (
	TripStatusRequested  TripStatus = "REQUESTED"
	TripStatusAccepted   TripStatus = "ACCEPTED"
	TripStatusEnRoute    TripStatus = "EN_ROUTE"
	TripStatusArrived    TripStatus = "ARRIVED"
	TripStatusWaiting    TripStatus = "WAITING"
	TripStatusInProgress TripStatus = "IN_PROGRESS"
	TripStatusCompleted  TripStatus = "COMPLETED"
	TripStatusCancelled  TripStatus = "CANCELLED"
	TripStatusNoShow     TripStatus = "NO_SHOW"
)

// IsTerminal reports whether no further transitions are permitted.
func (s TripStatus) IsTerminal() bool {
	switch s {
	case TripStatusCompleted, TripStatusCancelled, TripStatusNoShow:
		return true
	}
	return false
}

// ProductCategory represents the commercial product of a trip.
type ProductCategory string

const (
	ProductStandard ProductCategory = "STANDARD"
	ProductPremium  ProductCategory = "PREMIUM"
	ProductDelivery ProductCategory = "DELIVERY"
)

// ValidProduct reports whether p is a known product category.
func ValidProduct(p ProductCategory) bool {
	switch p {
	case ProductStandard, ProductPremium, ProductDelivery:
		return true
	}
	return false
}

// Trip represents a single rider-to-destination engagement (ride or delivery)
// tracked through its lifecycle. Status advances monotonically except for
// cancellation and no-show, which are reachable from any non-terminal state.
type Trip struct {
	ID       string
	RiderID  string
	DriverID string // empty until accepted; set at most once, retained after cancellation

	PickupLat      float64
	PickupLng      float64
	DropoffLat     float64
	DropoffLng     float64
	PickupAddress  string
	DropoffAddress string

	Product         ProductCategory
	Fare            float64
	Currency        string // fixed at creation, never mutated by the lifecycle engine
	PackageWeightKg float64
	Zone            string

	Status    TripStatus
	SafetyPIN string // short PIN generated at creation, immutable

	// Waiting accrual; non-decreasing while WAITING, absent before.
	WaitingSeconds int64
	WaitingFee     float64

	CancelReason string

	// One nullable instant per transition, each set exactly once.
	// Exactly one of CompletedAt, CancelledAt, NoShowAt is ever set.
	CreatedAt   time.Time
	AcceptedAt  time.Time
	EnRouteAt   time.Time
	ArrivedAt   time.Time
	WaitingAt   time.Time
	PickupAt    time.Time
	CompletedAt time.Time
	CancelledAt time.Time
	NoShowAt    time.Time
}
