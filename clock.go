package saga

import "time"

// Clock is the time source used for idempotency TTL comparisons and record
// timestamps. It is injectable so tests can advance time deterministically.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a plain function to a Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns the wall clock (UTC).
func SystemClock() Clock { return systemClock{} }
