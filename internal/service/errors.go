package service

import "errors"

var (
	// ErrTransitionConflict is returned when a conditional update matched
	// zero rows: the trip was already transitioned by someone else, the
	// actor is not the assigned driver, or the current state does not
	// permit the transition. Expected under concurrency; never logged as
	// an error.
	ErrTransitionConflict = errors.New("trip transition conflict")

	// ErrLockBusy is returned when the per-trip lock could not be acquired
	// within the timeout. Retryable.
	ErrLockBusy = errors.New("trip lock busy")

	// ErrInvalidTripID is returned when trip ID is empty.
	ErrInvalidTripID = errors.New("invalid trip id")

	// ErrInvalidRiderID is returned when rider ID is empty.
	ErrInvalidRiderID = errors.New("invalid rider id")

	// ErrInvalidDriverID is returned when driver ID is empty.
	ErrInvalidDriverID = errors.New("invalid driver id")

	// ErrInvalidPickupLocation is returned when pickup coordinates are invalid.
	ErrInvalidPickupLocation = errors.New("invalid pickup location")

	// ErrInvalidDropoffLocation is returned when dropoff coordinates are invalid.
	ErrInvalidDropoffLocation = errors.New("invalid dropoff location")

	// ErrInvalidProduct is returned when the product category is unknown.
	ErrInvalidProduct = errors.New("invalid product category")

	// ErrInvalidCurrency is returned when the currency code is empty.
	ErrInvalidCurrency = errors.New("invalid currency code")

	// ErrInvalidFare is returned when a supplied final fare is negative.
	ErrInvalidFare = errors.New("invalid fare amount")

	// ErrInvalidListFilter is returned when a trip listing specifies no
	// usable filter.
	ErrInvalidListFilter = errors.New("invalid list filter")
)
