// Package compliance tracks per-action-kind usage against a rolling window.
// The advisor reports whether a sensitive action should proceed; enforcement
// is the caller's policy, so the core stays reusable in deployments without
// usage limits.
package compliance

import (
	"sync"
	"time"
)

// Limits maps a run type (connect, message, follow, dm) to the maximum
// number of runs allowed per window. Kinds absent from the map are
// unlimited.
type Limits map[string]int

// Decision is the advisor's report for one kind.
type Decision struct {
	Allowed      bool
	Used         int
	Limit        int
	WindowActive bool
}

// Advisor counts usage per action kind inside a fixed rolling window. The
// counters reset when the window boundary passes; Reset forces it, for hosts
// that drive the boundary from a scheduler instead.
type Advisor struct {
	mu          sync.Mutex
	limits      Limits
	window      time.Duration
	counts      map[string]int
	windowStart time.Time

	// now is swappable for tests.
	now func() time.Time
}

// NewAdvisor creates an advisor with the given limits and window length. A
// zero window defaults to 24 hours.
func NewAdvisor(limits Limits, window time.Duration) *Advisor {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Advisor{
		limits:      limits,
		window:      window,
		counts:      make(map[string]int),
		windowStart: time.Now(),
		now:         time.Now,
	}
}

// CheckLimit reports whether another action of this kind is within the
// window's limit. It does not record usage; call Record once the run is
// actually created.
func (a *Advisor) CheckLimit(kind string) Decision {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.rollWindow()

	used := a.counts[kind]
	limit, limited := a.limits[kind]
	return Decision{
		Allowed:      !limited || used < limit,
		Used:         used,
		Limit:        limit,
		WindowActive: true,
	}
}

// Record counts one action of this kind against the current window.
func (a *Advisor) Record(kind string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.rollWindow()
	a.counts[kind]++
}

// Reset clears all counters and starts a fresh window.
func (a *Advisor) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.counts = make(map[string]int)
	a.windowStart = a.now()
}

// rollWindow resets the counters when the window boundary has passed.
// Caller holds the mutex.
func (a *Advisor) rollWindow() {
	if a.now().Sub(a.windowStart) >= a.window {
		a.counts = make(map[string]int)
		a.windowStart = a.now()
	}
}
