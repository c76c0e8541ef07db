package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"tripflow/internal/domain"
	"tripflow/internal/repository"
)

// fakeClock is an adjustable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stubWindows is an in-memory SurgeWindowRepository with a call counter.
type stubWindows struct {
	mu      sync.Mutex
	windows map[repository.SurgeKey]*domain.SurgeWindow
	calls   int
	err     error
}

func newStubWindows() *stubWindows {
	return &stubWindows{windows: make(map[repository.SurgeKey]*domain.SurgeWindow)}
}

func (s *stubWindows) set(zone string, product domain.ProductCategory, w *domain.SurgeWindow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows[repository.SurgeKey{Zone: zone, Product: product}] = w
}

func (s *stubWindows) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubWindows) FindActive(ctx context.Context, zone string, product domain.ProductCategory, at time.Time) (*domain.SurgeWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	w, ok := s.windows[repository.SurgeKey{Zone: zone, Product: product}]
	if !ok || !w.Covers(at) {
		return nil, repository.ErrNotFound
	}
	copy := *w
	return &copy, nil
}

func (s *stubWindows) ListKnownKeys(ctx context.Context) ([]repository.SurgeKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]repository.SurgeKey, 0, len(s.windows))
	for k := range s.windows {
		keys = append(keys, k)
	}
	return keys, nil
}

func newTestCache(windows *stubWindows, clock *fakeClock, capacity int) *SurgeCache {
	c := NewSurgeCache(windows, 30*time.Second, capacity, nil)
	c.now = clock.Now
	return c
}

func activeWindow(clock *fakeClock, zone string, product domain.ProductCategory, multiplier float64) *domain.SurgeWindow {
	return &domain.SurgeWindow{
		ID:          "w-" + zone,
		Zone:        zone,
		Product:     product,
		Multiplier:  multiplier,
		WindowStart: clock.Now().Add(-time.Hour),
		WindowEnd:   clock.Now().Add(time.Hour),
	}
}

func TestSurgeCache_ReadThroughAndTTL(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	windows := newStubWindows()
	windows.set("berlin", domain.ProductStandard, activeWindow(clock, "berlin", domain.ProductStandard, 1.8))
	c := newTestCache(windows, clock, 100)

	ctx := context.Background()

	m, err := c.Multiplier(ctx, "berlin", domain.ProductStandard)
	if err != nil {
		t.Fatalf("multiplier: %v", err)
	}
	if m.Value != 1.8 || !m.Active {
		t.Errorf("expected 1.8 active, got %+v", m)
	}
	if windows.callCount() != 1 {
		t.Errorf("expected 1 store call, got %d", windows.callCount())
	}

	// Within the TTL the store is not consulted again.
	clock.Advance(10 * time.Second)
	if _, err := c.Multiplier(ctx, "berlin", domain.ProductStandard); err != nil {
		t.Fatalf("multiplier: %v", err)
	}
	if windows.callCount() != 1 {
		t.Errorf("expected cached read, got %d store calls", windows.callCount())
	}

	// Past the TTL it is.
	clock.Advance(30 * time.Second)
	if _, err := c.Multiplier(ctx, "berlin", domain.ProductStandard); err != nil {
		t.Fatalf("multiplier: %v", err)
	}
	if windows.callCount() != 2 {
		t.Errorf("expected refresh past TTL, got %d store calls", windows.callCount())
	}
}

func TestSurgeCache_NegativeCaching(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	windows := newStubWindows()
	c := newTestCache(windows, clock, 100)

	ctx := context.Background()

	m, err := c.Multiplier(ctx, "quiet-zone", domain.ProductStandard)
	if err != nil {
		t.Fatalf("multiplier: %v", err)
	}
	if m.Value != 1.0 || m.Active {
		t.Errorf("expected inactive 1.0, got %+v", m)
	}

	// The miss itself is cached.
	c.Multiplier(ctx, "quiet-zone", domain.ProductStandard)
	c.Multiplier(ctx, "quiet-zone", domain.ProductStandard)
	if windows.callCount() != 1 {
		t.Errorf("expected 1 store call for repeated misses, got %d", windows.callCount())
	}
}

func TestSurgeCache_StoreErrorFailsOpen(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	windows := newStubWindows()
	windows.err = errors.New("connection refused")
	c := newTestCache(windows, clock, 100)

	m, err := c.Multiplier(context.Background(), "berlin", domain.ProductStandard)
	if err == nil {
		t.Fatal("expected store error to propagate")
	}
	if m.Value != 1.0 {
		t.Errorf("error path must return the no-surge multiplier, got %+v", m)
	}
	if c.Len() != 0 {
		t.Errorf("errors must not be cached, got %d entries", c.Len())
	}
}

func TestSurgeCache_MultiplierFloor(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	windows := newStubWindows()
	windows.set("berlin", domain.ProductStandard, activeWindow(clock, "berlin", domain.ProductStandard, 0.7))
	c := newTestCache(windows, clock, 100)

	m, err := c.Multiplier(context.Background(), "berlin", domain.ProductStandard)
	if err != nil {
		t.Fatalf("multiplier: %v", err)
	}
	if m.Value != 1.0 {
		t.Errorf("multipliers below 1.0 must clamp, got %v", m.Value)
	}
}

func TestSurgeCache_CapacityEviction(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	windows := newStubWindows()
	c := newTestCache(windows, clock, 3)

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		zone := fmt.Sprintf("zone-%d", i)
		clock.Advance(time.Second) // distinct storedAt per entry
		c.Multiplier(ctx, zone, domain.ProductStandard)
	}
	if c.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", c.Len())
	}

	// Nothing expired: the oldest entry (zone-0) gives way.
	clock.Advance(time.Second)
	c.Multiplier(ctx, "zone-3", domain.ProductStandard)
	if c.Len() != 3 {
		t.Errorf("capacity exceeded: %d entries", c.Len())
	}

	before := windows.callCount()
	c.Multiplier(ctx, "zone-3", domain.ProductStandard)
	if windows.callCount() != before {
		t.Error("zone-3 should still be cached after insertion")
	}
	c.Multiplier(ctx, "zone-0", domain.ProductStandard)
	if windows.callCount() != before+1 {
		t.Error("zone-0 should have been evicted as oldest")
	}
}

func TestSurgeCache_Refresh(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	windows := newStubWindows()
	windows.set("berlin", domain.ProductPremium, activeWindow(clock, "berlin", domain.ProductPremium, 2.2))
	c := newTestCache(windows, clock, 100)

	ctx := context.Background()
	key := repository.SurgeKey{Zone: "berlin", Product: domain.ProductPremium}

	if err := c.Refresh(ctx, key); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	// The refreshed value is served without another store call.
	before := windows.callCount()
	m, err := c.Multiplier(ctx, "berlin", domain.ProductPremium)
	if err != nil {
		t.Fatalf("multiplier: %v", err)
	}
	if m.Value != 2.2 {
		t.Errorf("expected refreshed 2.2, got %v", m.Value)
	}
	if windows.callCount() != before {
		t.Error("refreshed entry should serve from cache")
	}
}
