package idempotency_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	saga "github.com/cybinfo/pg-manager-sub005"
	"github.com/cybinfo/pg-manager-sub005/idempotency"
	"github.com/cybinfo/pg-manager-sub005/workflow"
)

func successOutcome(data string) *workflow.RawOutcome {
	return &workflow.RawOutcome{Success: true, Data: []byte(`"` + data + `"`)}
}

func TestMemory_LeaderThenCachedRead(t *testing.T) {
	store := idempotency.NewMemory()
	ctx := context.Background()

	raw, ok, err := store.Acquire(ctx, "k", time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if ok || raw != nil {
		t.Fatalf("first Acquire = (%v, %v), want leadership", raw, ok)
	}

	if err := store.Publish(ctx, "k", successOutcome("v"), time.Minute); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	raw, ok, err = store.Acquire(ctx, "k", time.Second)
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if !ok || !raw.Success {
		t.Errorf("second Acquire = (%+v, %v), want cached success", raw, ok)
	}
}

func TestMemory_ExpiryWithFakeClock(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := saga.ClockFunc(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	})
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	store := idempotency.NewMemory(idempotency.WithClock(clock))
	ctx := context.Background()

	if _, ok, _ := store.Acquire(ctx, "k", time.Second); ok {
		t.Fatal("expected leadership on a fresh key")
	}
	if err := store.Publish(ctx, "k", successOutcome("v"), time.Minute); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	// Inside the TTL window the outcome is served.
	advance(59 * time.Second)
	if _, ok, err := store.Acquire(ctx, "k", time.Second); err != nil || !ok {
		t.Fatalf("Acquire inside TTL = (ok=%v, err=%v), want cached", ok, err)
	}

	// Past the TTL the entry reads as absent and the caller leads again.
	advance(2 * time.Second)
	if _, ok, err := store.Acquire(ctx, "k", time.Second); err != nil || ok {
		t.Fatalf("Acquire past TTL = (ok=%v, err=%v), want leadership", ok, err)
	}
	if n := store.Len(); n != 1 {
		t.Errorf("Len = %d, want 1 (fresh in-flight slot)", n)
	}
}

func TestMemory_WaiterReceivesPublishedOutcome(t *testing.T) {
	store := idempotency.NewMemory()
	ctx := context.Background()

	if _, ok, _ := store.Acquire(ctx, "k", time.Second); ok {
		t.Fatal("expected leadership")
	}

	got := make(chan *workflow.RawOutcome, 1)
	go func() {
		raw, ok, err := store.Acquire(ctx, "k", 5*time.Second)
		if err != nil || !ok {
			t.Errorf("waiter Acquire = (ok=%v, err=%v), want cached outcome", ok, err)
		}
		got <- raw
	}()

	// Give the waiter a moment to park, then publish.
	time.Sleep(10 * time.Millisecond)
	if err := store.Publish(ctx, "k", successOutcome("leader"), time.Minute); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case raw := <-got:
		if raw == nil || !raw.Success {
			t.Errorf("waiter outcome = %+v, want published success", raw)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never woke up")
	}
}

func TestMemory_AbandonElectsWaiterAsLeader(t *testing.T) {
	store := idempotency.NewMemory()
	ctx := context.Background()

	if _, ok, _ := store.Acquire(ctx, "k", time.Second); ok {
		t.Fatal("expected leadership")
	}

	var promoted atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok, err := store.Acquire(ctx, "k", 5*time.Second)
		if err != nil {
			t.Errorf("waiter Acquire: %v", err)
			return
		}
		promoted.Store(!ok)
	}()

	time.Sleep(10 * time.Millisecond)
	if err := store.Abandon(ctx, "k"); err != nil {
		t.Fatalf("Abandon: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter never woke up after abandon")
	}
	if !promoted.Load() {
		t.Error("waiter did not take leadership after abandon")
	}
}

func TestMemory_WaitTimeoutIsConflict(t *testing.T) {
	store := idempotency.NewMemory()
	ctx := context.Background()

	if _, ok, _ := store.Acquire(ctx, "k", time.Second); ok {
		t.Fatal("expected leadership")
	}

	_, _, err := store.Acquire(ctx, "k", 20*time.Millisecond)
	if err == nil {
		t.Fatal("expected an error when the leader never publishes")
	}
	if kind := saga.KindOf(err); kind != saga.KindConflict {
		t.Errorf("kind = %q, want %q", kind, saga.KindConflict)
	}
}

func TestMemory_ContextCancellationUnblocksWaiter(t *testing.T) {
	store := idempotency.NewMemory()

	if _, ok, _ := store.Acquire(context.Background(), "k", time.Second); ok {
		t.Fatal("expected leadership")
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, _, err := store.Acquire(ctx, "k", 5*time.Second)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("expected a cancellation error")
		}
	case <-time.After(time.Second):
		t.Fatal("waiter ignored context cancellation")
	}
}
