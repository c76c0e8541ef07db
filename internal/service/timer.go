package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// TimerFamily identifies the two kinds of per-trip deferred actions.
type TimerFamily string

const (
	// TimerNoShow fires once after the no-show grace period.
	TimerNoShow TimerFamily = "no_show"

	// TimerWaiting drives the ARRIVED -> WAITING transition and the
	// periodic waiting-fee accrual.
	TimerWaiting TimerFamily = "waiting"
)

// TimerCommand is an "attempt transition now" command emitted by a firing
// timer and consumed by the flow engine's worker pool. The command carries
// only the trip id; the executor re-fetches current state before acting.
type TimerCommand struct {
	Family TimerFamily
	TripID string
}

// TimerExecutor runs one timer callback. The returned delay re-arms the same
// timer key; zero deregisters it. Callbacks must be short and resolve races
// through conditional updates, never through cached state.
type TimerExecutor interface {
	ExecuteTimerCommand(ctx context.Context, cmd TimerCommand) time.Duration
}

// TimerConfig holds the deferred-action schedule.
type TimerConfig struct {
	NoShowGrace    time.Duration // REQUESTED age before auto no-show
	WaitingGrace   time.Duration // ARRIVED age before waiting accrual starts
	TickInterval   time.Duration // waiting accrual period
	WaitingCeiling time.Duration // accumulated waiting before auto no-show
	Workers        int           // worker pool size for timer callbacks
}

// DefaultTimerConfig returns the default schedule.
func DefaultTimerConfig() TimerConfig {
	return TimerConfig{
		NoShowGrace:    2 * time.Minute,
		WaitingGrace:   2 * time.Minute,
		TickInterval:   30 * time.Second,
		WaitingCeiling: 7 * time.Minute,
		Workers:        4,
	}
}

type timerKey struct {
	family TimerFamily
	tripID string
}

// TimerManager schedules, re-arms, and cancels per-trip timers. At most one
// timer is live per trip per family; registry entries are inserted and removed
// only by the manager itself. Firing timers enqueue commands executed by a
// bounded worker pool, not one goroutine per trip.
//
// Cancellation is best-effort: a timer that fires concurrently with a cancel
// still runs, and relies on the executor's status re-check to stay a no-op.
type TimerManager struct {
	cfg    TimerConfig
	logger *slog.Logger

	cmds chan TimerCommand
	quit chan struct{}

	mu     sync.Mutex
	timers map[timerKey]*time.Timer
}

// NewTimerManager creates a TimerManager with the given schedule.
func NewTimerManager(cfg TimerConfig, logger *slog.Logger) *TimerManager {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TimerManager{
		cfg:    cfg,
		logger: logger,
		cmds:   make(chan TimerCommand, 256),
		quit:   make(chan struct{}),
		timers: make(map[timerKey]*time.Timer),
	}
}

// Run consumes timer commands with a bounded worker pool until ctx is
// cancelled, then stops every pending timer. Blocks.
func (m *TimerManager) Run(ctx context.Context, exec TimerExecutor) {
	var wg sync.WaitGroup
	for i := 0; i < m.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.worker(ctx, exec)
		}()
	}

	<-ctx.Done()
	m.shutdown()
	wg.Wait()
}

func (m *TimerManager) worker(ctx context.Context, exec TimerExecutor) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-m.cmds:
			delay := exec.ExecuteTimerCommand(ctx, cmd)
			key := timerKey{family: cmd.Family, tripID: cmd.TripID}
			if delay > 0 {
				m.schedule(key, delay)
			} else {
				m.remove(key)
			}
		}
	}
}

// ArmNoShow schedules the one-shot no-show check for a freshly created trip.
func (m *TimerManager) ArmNoShow(tripID string) {
	m.schedule(timerKey{family: TimerNoShow, tripID: tripID}, m.cfg.NoShowGrace)
}

// ArmWaiting schedules the waiting-fee timer for a trip that just arrived.
func (m *TimerManager) ArmWaiting(tripID string) {
	m.schedule(timerKey{family: TimerWaiting, tripID: tripID}, m.cfg.WaitingGrace)
}

// Cancel stops the pending timer for one family. Best-effort: a concurrently
// firing callback is not suppressed.
func (m *TimerManager) Cancel(family TimerFamily, tripID string) {
	m.remove(timerKey{family: family, tripID: tripID})
}

// CancelTrip stops every pending timer for the trip.
func (m *TimerManager) CancelTrip(tripID string) {
	m.Cancel(TimerNoShow, tripID)
	m.Cancel(TimerWaiting, tripID)
}

// Active reports whether a timer is registered for the key.
func (m *TimerManager) Active(family TimerFamily, tripID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.timers[timerKey{family: family, tripID: tripID}]
	return ok
}

func (m *TimerManager) schedule(key timerKey, delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.timers[key]; ok {
		old.Stop()
	}

	m.timers[key] = time.AfterFunc(delay, func() {
		m.enqueue(TimerCommand{Family: key.family, TripID: key.tripID})
	})
}

func (m *TimerManager) remove(key timerKey) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.timers[key]; ok {
		t.Stop()
		delete(m.timers, key)
	}
}

func (m *TimerManager) enqueue(cmd TimerCommand) {
	select {
	case m.cmds <- cmd:
	case <-m.quit:
	}
}

func (m *TimerManager) shutdown() {
	m.mu.Lock()
	for key, t := range m.timers {
		t.Stop()
		delete(m.timers, key)
	}
	m.mu.Unlock()
	close(m.quit)
}
