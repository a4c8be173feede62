package sched

import (
	"sync"
	"time"
)

// TimeDomain supplies the scheduler's notion of time. Delays are converted
// to absolute run times exactly once, at post time, using the bound domain.
// Implementations must be safe for use from any goroutine since posting can
// happen cross-goroutine.
//
// Swapping in a virtual domain changes when delayed tasks become eligible
// but never reorders enqueue orders that were already assigned.
type TimeDomain interface {
	// Now returns the current time in this domain.
	Now() time.Time
}

// RealTimeDomain reads the system clock.
type RealTimeDomain struct{}

// Now implements TimeDomain.
func (RealTimeDomain) Now() time.Time { return time.Now() }

// MockTimeDomain is a virtual clock for deterministic tests. Time only moves
// when Advance or SetNow is called.
type MockTimeDomain struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockTimeDomain creates a virtual clock starting at start.
func NewMockTimeDomain(start time.Time) *MockTimeDomain {
	return &MockTimeDomain{now: start}
}

// Now implements TimeDomain.
func (d *MockTimeDomain) Now() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.now
}

// Advance moves the clock forward by delta. Negative deltas panic; virtual
// time never runs backwards.
func (d *MockTimeDomain) Advance(delta time.Duration) {
	if delta < 0 {
		panic("sched: MockTimeDomain.Advance called with negative delta")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = d.now.Add(delta)
}

// SetNow rebases the clock to t. Panics if t is earlier than the current
// virtual time.
func (d *MockTimeDomain) SetNow(t time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t.Before(d.now) {
		panic("sched: MockTimeDomain.SetNow called with a time in the past")
	}
	d.now = t
}
