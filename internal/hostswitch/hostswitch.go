// Package hostswitch implements the primary/secondary endpoint selector
// with automatic fallback and return used by every downstream collaborator
// (rate-control, spam scorer, anti-virus, relay).
package hostswitch

import (
	"sync"
	"time"
)

// Switch is a mutex-guarded primary/secondary endpoint pair. The zero
// value is not usable; construct with New.
type Switch struct {
	mu sync.Mutex

	primary   string
	secondary string

	fallback time.Duration
	ret      time.Duration

	switchTime    time.Time // zero means "no pending switch"
	activeSecond  bool
	now           func() time.Time
}

// New returns a Switch between primary and secondary, falling over to
// secondary for fallback after two Faults and returning to primary ret
// after the switch.
func New(primary, secondary string, fallback, ret time.Duration) *Switch {
	return &Switch{
		primary:   primary,
		secondary: secondary,
		fallback:  fallback,
		ret:       ret,
		now:       time.Now,
	}
}

// GetPrimary returns the endpoint to use right now and advances the
// internal state machine: if active-secondary and now > switchTime,
// revert to primary; else if primary active and switchTime is set and
// now > switchTime, reset the timer (clear it).
// The return value is consistent for this one call even if Fault races
// concurrently, because the whole operation holds the mutex.
func (s *Switch) GetPrimary() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.activeSecond {
		if !s.switchTime.IsZero() && now.After(s.switchTime) {
			s.activeSecond = false
			s.switchTime = time.Time{}
		}
	} else if !s.switchTime.IsZero() && now.After(s.switchTime) {
		s.switchTime = time.Time{}
	}

	if s.activeSecond {
		return s.secondary
	}
	return s.primary
}

// Fault records a failure using the currently active endpoint. The first
// Fault while primary is active starts the fallback timer; a second
// Fault before that timer fires promotes the secondary and starts the
// return timer.
func (s *Switch) Fault() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeSecond {
		// A fault while already on the secondary is a no-op: only faults
		// observed while primary is active drive the switch.
		return
	}

	now := s.now()
	if s.switchTime.IsZero() {
		s.switchTime = now.Add(s.fallback)
		return
	}
	// Second fault before the fallback timer fired: promote.
	s.switchTime = now.Add(s.ret)
	s.activeSecond = true
}

// ActiveSecondary reports whether the secondary endpoint is currently
// selected, for diagnostics/metrics.
func (s *Switch) ActiveSecondary() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeSecond
}
