package idempotency

import (
	"context"
	"sync"
	"time"

	saga "github.com/cybinfo/pg-manager-sub005"
	"github.com/cybinfo/pg-manager-sub005/workflow"
)

// Compile-time interface check.
var _ Store = (*Memory)(nil)

// slot is the per-key state: in-flight (ready open) or done (entry set).
type slot struct {
	entry *Entry
	done  bool
	// ready is closed when the leader publishes or abandons.
	ready chan struct{}
}

// Memory is the in-process idempotency store. Safe for concurrent use.
// Entries are not swept proactively; expiry is checked at read time and
// expired entries are evicted opportunistically.
type Memory struct {
	mu    sync.Mutex
	slots map[string]*slot
	clock saga.Clock
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock sets the time source used for TTL comparisons.
func WithClock(clock saga.Clock) MemoryOption {
	return func(m *Memory) { m.clock = clock }
}

// NewMemory returns an empty store using the system clock.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		slots: make(map[string]*slot),
		clock: saga.SystemClock(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire implements Store.
func (m *Memory) Acquire(ctx context.Context, key string, wait time.Duration) (*workflow.RawOutcome, bool, error) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	for {
		m.mu.Lock()
		s, exists := m.slots[key]

		if !exists {
			// Leader: reserve the slot in-flight.
			m.slots[key] = &slot{ready: make(chan struct{})}
			m.mu.Unlock()
			return nil, false, nil
		}

		if s.done {
			if s.entry.Expired(m.clock.Now()) {
				// Lazy eviction; loop once more to take leadership.
				delete(m.slots, key)
				m.mu.Unlock()
				continue
			}
			raw := s.entry.Outcome
			m.mu.Unlock()
			return raw, true, nil
		}

		// In-flight: wait for the leader to publish or abandon.
		ready := s.ready
		m.mu.Unlock()

		select {
		case <-ready:
			// Re-check the slot: published → cached outcome,
			// abandoned → slot gone, take leadership.
		case <-deadline.C:
			return nil, false, saga.Errorf(saga.KindConflict,
				"execution with idempotency key %q still in progress", key)
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}

// Publish implements Store.
func (m *Memory) Publish(_ context.Context, key string, raw *workflow.RawOutcome, ttl time.Duration) error {
	entry := &Entry{
		Key:        key,
		Outcome:    raw,
		RecordedAt: m.clock.Now(),
		TTL:        ttl,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, exists := m.slots[key]
	if !exists || s.done {
		// Publish without a live in-flight slot (e.g. the prior entry
		// expired and was evicted between Acquire and Publish): store a
		// fresh completed slot.
		m.slots[key] = &slot{entry: entry, done: true, ready: closedChan()}
		return nil
	}

	s.entry = entry
	s.done = true
	close(s.ready)
	return nil
}

// Abandon implements Store.
func (m *Memory) Abandon(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, exists := m.slots[key]
	if !exists || s.done {
		return nil
	}
	delete(m.slots, key)
	close(s.ready)
	return nil
}

// Len returns the number of live slots (in-flight and completed).
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
