package timeline

import "time"

// RefreshScheduler coalesces bursts of completions into one downstream
// refresh. The first result after a reset, or any result while the list
// is empty or nothing else is outstanding, refreshes immediately; anything
// else is debounced, and each new call restarts the window.
//
// It is not safe for concurrent use. The owner loop selects on C and calls
// Fired when it triggers.
type RefreshScheduler struct {
	delay time.Duration
	timer *time.Timer
	c     <-chan time.Time
	first bool
}

// NewRefreshScheduler returns a scheduler with the given debounce window.
func NewRefreshScheduler(delay time.Duration) *RefreshScheduler {
	if delay <= 0 {
		delay = DefaultRefreshDebounce
	}
	return &RefreshScheduler{delay: delay, first: true}
}

// Reset marks the start of a full reload and abandons any pending window.
func (s *RefreshScheduler) Reset() {
	s.Stop()
	s.first = true
}

// Notify records a completion. It returns true when the caller should
// refresh now; otherwise a refresh is due when C fires.
func (s *RefreshScheduler) Notify(empty bool, outstanding int) bool {
	if s.first || empty || outstanding == 0 {
		s.first = false
		s.Stop()
		return true
	}
	if s.timer == nil {
		s.timer = time.NewTimer(s.delay)
		s.c = s.timer.C
	} else {
		s.timer.Reset(s.delay)
	}
	return false
}

// C fires when a debounced refresh is due. It is nil when none is pending.
func (s *RefreshScheduler) C() <-chan time.Time {
	return s.c
}

// Fired must be called after receiving from C.
func (s *RefreshScheduler) Fired() {
	s.timer = nil
	s.c = nil
}

// Pending reports whether a debounced refresh is scheduled.
func (s *RefreshScheduler) Pending() bool {
	return s.c != nil
}

// Stop abandons any pending window.
func (s *RefreshScheduler) Stop() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = nil
	s.c = nil
}
