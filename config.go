package saga

import "time"

// Config holds configuration for the workflow engine.
type Config struct {
	// IdempotencyTTL is how long a terminal outcome stays cached under its
	// idempotency key. Retries within the window observe the cached
	// outcome instead of re-executing the step chain.
	IdempotencyTTL time.Duration

	// InFlightWait is the maximum time a keyed call waits for an in-flight
	// execution of the same key before giving up with a conflict error.
	InFlightWait time.Duration

	// SideEffectTimeout bounds the best-effort audit persistence and
	// notification dispatch that follow a successful run.
	SideEffectTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		IdempotencyTTL:    10 * time.Minute,
		InFlightWait:      30 * time.Second,
		SideEffectTimeout: 10 * time.Second,
	}
}
