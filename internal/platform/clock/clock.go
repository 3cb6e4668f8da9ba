package clock

import "time"

// SystemClock returns the current wall-clock time in UTC.
type SystemClock struct{}

func NewSystemClock() SystemClock { return SystemClock{} }

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant. Useful for tests that need
// deterministic deadline behavior.
type FixedClock struct {
	now time.Time
}

func NewFixedClock(t time.Time) FixedClock { return FixedClock{now: t.UTC()} }

func (f FixedClock) Now() time.Time { return f.now }
