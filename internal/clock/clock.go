// Package clock provides the monotonic time source consumed by time-based
// milestone conditions and record timestamping.
//
// Engines take a Clock instead of calling time.Now so that the replicated
// deployment can stamp records deterministically in tests and so merge
// tie-breaks are reproducible.
package clock

import (
	"sync"
	"time"
)

// Clock is a monotonic current-time source. Now returns unix nanoseconds
// and never decreases between calls on the same instance.
type Clock interface {
	Now() int64
}

// System is the production clock backed by the wall clock. Monotonicity is
// enforced locally: if the wall clock steps backwards, Now returns the last
// value plus one.
type System struct {
	mu   sync.Mutex
	last int64
}

// NewSystem creates a system clock.
func NewSystem() *System {
	return &System{}
}

// Now returns the current time in unix nanoseconds, strictly non-decreasing.
func (s *System) Now() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UnixNano()
	if now <= s.last {
		now = s.last + 1
	}
	s.last = now
	return now
}

// Manual is a deterministic clock for tests. It starts at a fixed instant
// and only moves when told to.
//
// Thread-safety: all methods are safe for concurrent use.
type Manual struct {
	mu  sync.Mutex
	now int64
}

// NewManual creates a manual clock at the given instant.
func NewManual(start int64) *Manual {
	return &Manual{now: start}
}

// Now returns the current instant without advancing.
func (m *Manual) Now() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d nanoseconds and returns the new value.
func (m *Manual) Advance(d int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now += d
	return m.now
}

// Set jumps the clock to a specific instant. Jumping backwards is allowed in
// tests; production code never does this.
func (m *Manual) Set(t int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Tick advances by one nanosecond and returns the new value. Convenient for
// stamping successive records with distinct timestamps.
func (m *Manual) Tick() int64 {
	return m.Advance(1)
}
