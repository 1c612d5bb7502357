// Package redis implements the idempotency store on Redis, for deployments
// where retries may land on a different process. Outcomes are stored as
// JSON with a PX expiry; leadership uses a SETNX in-flight sentinel and
// waiters poll. Cross-process serialization of first-callers is therefore
// best-effort: a leader that dies holds the sentinel until its TTL lapses.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store := idemredis.New(client)
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	saga "github.com/cybinfo/pg-manager-sub005"
	"github.com/cybinfo/pg-manager-sub005/idempotency"
	"github.com/cybinfo/pg-manager-sub005/workflow"
)

// Compile-time interface check.
var _ idempotency.Store = (*Store)(nil)

const (
	keyPrefix        = "saga:idem:"
	inflightSentinel = "__inflight__"
)

// abandonScript deletes the key only while it still holds the in-flight
// sentinel, so an Abandon racing a Publish never destroys a real outcome.
var abandonScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Store implements idempotency.Store backed by Redis.
type Store struct {
	client       redis.Cmdable
	logger       *slog.Logger
	pollInterval time.Duration
	inflightTTL  time.Duration
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithPollInterval sets how often waiters re-check an in-flight key.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) { s.pollInterval = d }
}

// WithInFlightTTL bounds how long a dead leader can hold the sentinel.
func WithInFlightTTL(d time.Duration) Option {
	return func(s *Store) { s.inflightTTL = d }
}

// New creates a Redis-backed idempotency store. The caller owns the Redis
// client lifecycle.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client:       client,
		logger:       slog.Default(),
		pollInterval: 100 * time.Millisecond,
		inflightTTL:  time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func cacheKey(key string) string { return keyPrefix + key }

// Acquire implements idempotency.Store.
func (s *Store) Acquire(ctx context.Context, key string, wait time.Duration) (*workflow.RawOutcome, bool, error) {
	k := cacheKey(key)
	deadline := time.Now().Add(wait)

	for {
		val, err := s.client.Get(ctx, k).Result()
		switch {
		case errors.Is(err, redis.Nil):
			claimed, setErr := s.client.SetNX(ctx, k, inflightSentinel, s.inflightTTL).Result()
			if setErr != nil {
				return nil, false, fmt.Errorf("idempotency/redis: claim %q: %w", key, setErr)
			}
			if claimed {
				return nil, false, nil
			}
			// Lost the claim race; fall through to wait.
		case err != nil:
			return nil, false, fmt.Errorf("idempotency/redis: get %q: %w", key, err)
		case val != inflightSentinel:
			var raw workflow.RawOutcome
			if decErr := json.Unmarshal([]byte(val), &raw); decErr != nil {
				return nil, false, fmt.Errorf("idempotency/redis: decode %q: %w", key, decErr)
			}
			return &raw, true, nil
		}

		if time.Now().After(deadline) {
			return nil, false, saga.Errorf(saga.KindConflict,
				"execution with idempotency key %q still in progress", key)
		}

		select {
		case <-time.After(s.pollInterval):
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}

// Publish implements idempotency.Store. Redis handles expiry natively, so
// the TTL is applied with PX rather than checked at read time.
func (s *Store) Publish(ctx context.Context, key string, raw *workflow.RawOutcome, ttl time.Duration) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("idempotency/redis: encode %q: %w", key, err)
	}
	if err := s.client.Set(ctx, cacheKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("idempotency/redis: publish %q: %w", key, err)
	}
	return nil
}

// Abandon implements idempotency.Store.
func (s *Store) Abandon(ctx context.Context, key string) error {
	if err := abandonScript.Run(ctx, s.client, []string{cacheKey(key)}, inflightSentinel).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("idempotency/redis: abandon %q: %w", key, err)
	}
	return nil
}
