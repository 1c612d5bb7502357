// Package idempotency provides at-most-one logical execution per caller
// supplied key within a TTL window. The engine consults the store before
// running a keyed workflow and publishes the terminal outcome afterwards;
// callers retrying an ambiguous prior call get the original outcome rather
// than duplicated side effects.
//
// Concurrent first-callers sharing a fresh key are serialized through an
// in-flight marker: the first caller becomes the leader and executes, late
// arrivals wait (bounded) for the leader to publish or abandon. The Redis
// store approximates the same protocol cross-process with a SETNX sentinel
// and polling, and is documented as best-effort.
package idempotency

import (
	"context"
	"time"

	"github.com/cybinfo/pg-manager-sub005/workflow"
)

// Store is the idempotency cache contract consumed by the engine.
type Store interface {
	// Acquire looks up key. If a non-expired outcome exists (possibly
	// after waiting out an in-flight execution, up to wait), it is
	// returned with ok=true. ok=false with a nil error means the caller
	// acquired leadership and must eventually Publish or Abandon.
	Acquire(ctx context.Context, key string, wait time.Duration) (raw *workflow.RawOutcome, ok bool, err error)

	// Publish records the terminal outcome for key with the given TTL and
	// releases any waiters.
	Publish(ctx context.Context, key string, raw *workflow.RawOutcome, ttl time.Duration) error

	// Abandon releases leadership for key without recording an outcome,
	// letting a waiter take over. Called when the leader fails before
	// reaching a terminal outcome.
	Abandon(ctx context.Context, key string) error
}

// Entry is a cached terminal outcome. Exposed for store implementations;
// expiry is checked lazily at read time against RecordedAt+TTL.
type Entry struct {
	Key        string               `json:"key"`
	Outcome    *workflow.RawOutcome `json:"outcome"`
	RecordedAt time.Time            `json:"recorded_at"`
	TTL        time.Duration        `json:"ttl"`
}

// Expired reports whether the entry is past its TTL at now.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.RecordedAt.Add(e.TTL))
}
