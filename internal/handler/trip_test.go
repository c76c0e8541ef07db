package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"tripflow/internal/domain"
	"tripflow/internal/service"
	"tripflow/internal/tests"
)

func newTestRouter(t *testing.T) (*gin.Engine, *tests.MockTripRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	trips := tests.NewMockTripRepository()
	timerCfg := service.DefaultTimerConfig()
	timerCfg.NoShowGrace = time.Hour
	timers := service.NewTimerManager(timerCfg, slog.Default())

	flow := service.NewTripFlowService(
		trips, tests.NewMockSnippetRepository(), nil, tests.NewMockTripLocker(), nil,
		tests.NewMockSettlement(), tests.NewMockNotifier(), timers,
		service.DefaultPricingConfig(), timerCfg, time.Second, slog.Default(),
	)

	h := NewTripHandler(flow)

	router := gin.New()
	v1 := router.Group("/v1")
	v1.POST("/trips", h.CreateTrip)
	v1.GET("/trips/:id", h.GetTrip)
	v1.POST("/trips/:id/accept", h.AcceptTrip)
	v1.POST("/trips/:id/enroute", h.MarkEnRoute)
	v1.POST("/trips/:id/cancel", h.CancelTrip)

	return router, trips
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateTrip_HTTP(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/trips", `{
		"rider_id": "rider-1",
		"pickup_lat": 52.52, "pickup_lng": 13.405,
		"dropoff_lat": 52.50, "dropoff_lng": 13.39,
		"product": "STANDARD",
		"currency": "EUR",
		"zone": "berlin"
	}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp TripResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.Status != string(domain.TripStatusRequested) {
		t.Errorf("expected REQUESTED, got %s", resp.Status)
	}
	if resp.SafetyPIN == "" {
		t.Error("create response must include the safety PIN")
	}
}

func TestCreateTrip_HTTP_BadBody(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/trips", `{"rider_id": ""}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestTransition_HTTP_ErrorMapping(t *testing.T) {
	router, trips := newTestRouter(t)

	// Unknown trip -> 404.
	w := doJSON(t, router, http.MethodPost, "/v1/trips/nope/enroute", `{"driver_id": "driver-1"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown trip: expected 404, got %d", w.Code)
	}

	// Precondition violated -> 409.
	trips.AddTrip(&domain.Trip{ID: "trip-1", RiderID: "rider-1", Status: domain.TripStatusRequested})
	w = doJSON(t, router, http.MethodPost, "/v1/trips/trip-1/enroute", `{"driver_id": "driver-1"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("bad transition: expected 409, got %d", w.Code)
	}
}

func TestAccept_HTTP_LoserGets409(t *testing.T) {
	router, trips := newTestRouter(t)

	trips.AddTrip(&domain.Trip{
		ID:      "trip-1",
		RiderID: "rider-1",
		Status:  domain.TripStatusAccepted, // already taken
	})

	w := doJSON(t, router, http.MethodPost, "/v1/trips/trip-1/accept", `{"driver_id": "driver-2"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for losing accept, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCancel_HTTP_AlreadyFinal(t *testing.T) {
	router, trips := newTestRouter(t)

	trips.AddTrip(&domain.Trip{
		ID:      "trip-1",
		RiderID: "rider-1",
		Status:  domain.TripStatusCompleted,
	})

	w := doJSON(t, router, http.MethodPost, "/v1/trips/trip-1/cancel", `{"reason": "too late"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp CancelTripResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if !resp.AlreadyFinal {
		t.Error("expected already_final in response")
	}
	if resp.Status != string(domain.TripStatusCompleted) {
		t.Errorf("status must stay COMPLETED, got %s", resp.Status)
	}
}
