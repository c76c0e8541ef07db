package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tripflow/internal/domain"
	"tripflow/internal/service"
)

// TripHandler handles HTTP requests for trips.
type TripHandler struct {
	flow *service.TripFlowService
}

// NewTripHandler creates a new TripHandler.
func NewTripHandler(flow *service.TripFlowService) *TripHandler {
	return &TripHandler{flow: flow}
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

// TripResponse is the HTTP response for trip operations.
type TripResponse struct {
	TripID          string  `json:"trip_id"`
	RiderID         string  `json:"rider_id"`
	DriverID        string  `json:"driver_id,omitempty"`
	Product         string  `json:"product"`
	Status          string  `json:"status"`
	Fare            float64 `json:"fare"`
	Currency        string  `json:"currency"`
	Zone            string  `json:"zone,omitempty"`
	SurgeMultiplier float64 `json:"surge_multiplier,omitempty"`
	SafetyPIN       string  `json:"safety_pin,omitempty"`
	WaitingSeconds  int64   `json:"waiting_seconds,omitempty"`
	WaitingFee      float64 `json:"waiting_fee,omitempty"`
	CancelReason    string  `json:"cancel_reason,omitempty"`
	CreatedAt       string  `json:"created_at"`
	AcceptedAt      string  `json:"accepted_at,omitempty"`
	EnRouteAt       string  `json:"en_route_at,omitempty"`
	ArrivedAt       string  `json:"arrived_at,omitempty"`
	WaitingAt       string  `json:"waiting_at,omitempty"`
	PickupAt        string  `json:"pickup_at,omitempty"`
	CompletedAt     string  `json:"completed_at,omitempty"`
	CancelledAt     string  `json:"cancelled_at,omitempty"`
	NoShowAt        string  `json:"no_show_at,omitempty"`
}

func tripResponse(trip *domain.Trip) TripResponse {
	tr := TripResponse{
		TripID:         trip.ID,
		RiderID:        trip.RiderID,
		DriverID:       trip.DriverID,
		Product:        string(trip.Product),
		Status:         string(trip.Status),
		Fare:           trip.Fare,
		Currency:       trip.Currency,
		Zone:           trip.Zone,
		WaitingSeconds: trip.WaitingSeconds,
		WaitingFee:     trip.WaitingFee,
		CancelReason:   trip.CancelReason,
		CreatedAt:      trip.CreatedAt.Format(timeLayout),
	}
	if !trip.AcceptedAt.IsZero() {
		tr.AcceptedAt = trip.AcceptedAt.Format(timeLayout)
	}
	if !trip.EnRouteAt.IsZero() {
		tr.EnRouteAt = trip.EnRouteAt.Format(timeLayout)
	}
	if !trip.ArrivedAt.IsZero() {
		tr.ArrivedAt = trip.ArrivedAt.Format(timeLayout)
	}
	if !trip.WaitingAt.IsZero() {
		tr.WaitingAt = trip.WaitingAt.Format(timeLayout)
	}
	if !trip.PickupAt.IsZero() {
		tr.PickupAt = trip.PickupAt.Format(timeLayout)
	}
	if !trip.CompletedAt.IsZero() {
		tr.CompletedAt = trip.CompletedAt.Format(timeLayout)
	}
	if !trip.CancelledAt.IsZero() {
		tr.CancelledAt = trip.CancelledAt.Format(timeLayout)
	}
	if !trip.NoShowAt.IsZero() {
		tr.NoShowAt = trip.NoShowAt.Format(timeLayout)
	}
	return tr
}

// CreateTripRequest is the HTTP request body for creating a trip.
type CreateTripRequest struct {
	RiderID         string  `json:"rider_id" binding:"required"`
	PickupLat       float64 `json:"pickup_lat"`
	PickupLng       float64 `json:"pickup_lng"`
	DropoffLat      float64 `json:"dropoff_lat"`
	DropoffLng      float64 `json:"dropoff_lng"`
	PickupAddress   string  `json:"pickup_address"`
	DropoffAddress  string  `json:"dropoff_address"`
	Product         string  `json:"product" binding:"required"`
	Currency        string  `json:"currency" binding:"required"`
	Zone            string  `json:"zone"`
	PackageWeightKg float64 `json:"package_weight_kg"`
}

// CreateTrip handles POST /v1/trips
func (h *TripHandler) CreateTrip(c *gin.Context) {
	var req CreateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	result, err := h.flow.CreateTrip(c.Request.Context(), service.CreateTripRequest{
		RiderID:         req.RiderID,
		PickupLat:       req.PickupLat,
		PickupLng:       req.PickupLng,
		DropoffLat:      req.DropoffLat,
		DropoffLng:      req.DropoffLng,
		PickupAddress:   req.PickupAddress,
		DropoffAddress:  req.DropoffAddress,
		Product:         domain.ProductCategory(req.Product),
		Currency:        req.Currency,
		Zone:            req.Zone,
		PackageWeightKg: req.PackageWeightKg,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	response := tripResponse(result.Trip)
	response.SurgeMultiplier = result.SurgeMultiplier
	response.SafetyPIN = result.Trip.SafetyPIN

	respondJSON(c, http.StatusCreated, response)
}

// AcceptTripRequest is the HTTP request body for accepting a trip.
type AcceptTripRequest struct {
	DriverID string `json:"driver_id" binding:"required"`
}

// AcceptTrip handles POST /v1/trips/:id/accept
func (h *TripHandler) AcceptTrip(c *gin.Context) {
	var req AcceptTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	match, err := h.flow.Accept(c.Request.Context(), service.AcceptRequest{
		TripID:   c.Param("id"),
		DriverID: req.DriverID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, match)
}

// DriverActionRequest is the HTTP request body for driver-initiated
// transitions.
type DriverActionRequest struct {
	DriverID string `json:"driver_id" binding:"required"`
}

// MarkEnRoute handles POST /v1/trips/:id/enroute
func (h *TripHandler) MarkEnRoute(c *gin.Context) {
	h.driverAction(c, func(req service.TransitionRequest) (*domain.Trip, error) {
		return h.flow.MarkEnRoute(c.Request.Context(), req)
	})
}

// MarkArrived handles POST /v1/trips/:id/arrived
func (h *TripHandler) MarkArrived(c *gin.Context) {
	h.driverAction(c, func(req service.TransitionRequest) (*domain.Trip, error) {
		return h.flow.MarkArrived(c.Request.Context(), req)
	})
}

// StartTrip handles POST /v1/trips/:id/start
func (h *TripHandler) StartTrip(c *gin.Context) {
	h.driverAction(c, func(req service.TransitionRequest) (*domain.Trip, error) {
		return h.flow.StartTrip(c.Request.Context(), req)
	})
}

func (h *TripHandler) driverAction(c *gin.Context, call func(service.TransitionRequest) (*domain.Trip, error)) {
	var req DriverActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	trip, err := call(service.TransitionRequest{
		TripID:   c.Param("id"),
		DriverID: req.DriverID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, tripResponse(trip))
}

// CompleteTripRequest is the HTTP request body for completing a trip.
type CompleteTripRequest struct {
	DriverID string   `json:"driver_id" binding:"required"`
	Fare     *float64 `json:"fare,omitempty"`
}

// CompleteTrip handles POST /v1/trips/:id/complete
func (h *TripHandler) CompleteTrip(c *gin.Context) {
	var req CompleteTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	trip, err := h.flow.CompleteTrip(c.Request.Context(), service.CompleteTripRequest{
		TripID:   c.Param("id"),
		DriverID: req.DriverID,
		Fare:     req.Fare,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, tripResponse(trip))
}

// CancelTripRequest is the HTTP request body for cancelling a trip.
type CancelTripRequest struct {
	Reason string `json:"reason"`
}

// CancelTripResponse is the HTTP response for a cancellation.
type CancelTripResponse struct {
	TripResponse
	AlreadyFinal bool `json:"already_final,omitempty"`
}

// CancelTrip handles POST /v1/trips/:id/cancel
func (h *TripHandler) CancelTrip(c *gin.Context) {
	var req CancelTripRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	result, err := h.flow.CancelTrip(c.Request.Context(), service.CancelTripRequest{
		TripID: c.Param("id"),
		Reason: req.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, CancelTripResponse{
		TripResponse: tripResponse(result.Trip),
		AlreadyFinal: result.AlreadyFinal,
	})
}

// GetTrip handles GET /v1/trips/:id
func (h *TripHandler) GetTrip(c *gin.Context) {
	trip, err := h.flow.GetTrip(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, tripResponse(trip))
}

// GetTripStatus handles GET /v1/trips/:id/status
func (h *TripHandler) GetTripStatus(c *gin.Context) {
	snapshot, err := h.flow.TripStatusSnapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, snapshot)
}

// ListTrips handles GET /v1/trips
func (h *TripHandler) ListTrips(c *gin.Context) {
	trips, err := h.flow.ListTrips(c.Request.Context(), service.ListTripsRequest{
		Status:   domain.TripStatus(c.Query("status")),
		RiderID:  c.Query("rider_id"),
		DriverID: c.Query("driver_id"),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]TripResponse, 0, len(trips))
	for _, trip := range trips {
		response = append(response, tripResponse(trip))
	}

	c.JSON(http.StatusOK, response)
}
