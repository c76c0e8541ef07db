package domain

import "time"

// SurgeWindow is a time-bounded price multiplier for a (zone, product) pair.
// Windows are inserted by an external pricing-admin process; this core only
// reads them. A window is active for instant t when WindowStart <= t < WindowEnd.
type SurgeWindow struct {
	ID          string
	Zone        string
	Product     ProductCategory
	Multiplier  float64 // >= 1.0
	WindowStart time.Time
	WindowEnd   time.Time
}

// Covers reports whether the window is active at t.
func (w *SurgeWindow) Covers(t time.Time) bool {
	return !t.Before(w.WindowStart) && t.Before(w.WindowEnd)
}
