// Package redis provides the shared-attempt store backing the rate limiter
// when gateway replicas must draw from a single upstream quota.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/karanb192/reddit-mcp-buddy/internal/core/port"
)

// AttemptStore keeps sliding-window attempt timestamps in Redis sorted sets,
// scored by nanosecond timestamps so range queries map directly onto the
// window boundaries.
type AttemptStore struct {
	client    *redis.Client
	keyPrefix string
}

var _ port.AttemptStore = (*AttemptStore)(nil)

// NewAttemptStore constructs a store using the provided Redis client.
func NewAttemptStore(client *redis.Client, keyPrefix string) *AttemptStore {
	return &AttemptStore{client: client, keyPrefix: keyPrefix}
}

// RecordAttempt stores one attempt and refreshes the set expiry so abandoned
// identifiers clean themselves up.
func (s *AttemptStore) RecordAttempt(ctx context.Context, identifier string, at time.Time) error {
	key := s.key(identifier)
	member := redis.Z{Score: float64(at.UnixNano()), Member: at.UnixNano()}

	if err := s.client.ZAdd(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("redis zadd: %w", err)
	}

	// Twice the longest window the gateway configures; precision is not
	// needed here, only eventual cleanup.
	if err := s.client.Expire(ctx, key, 2*time.Minute).Err(); err != nil {
		return fmt.Errorf("redis expire: %w", err)
	}

	return nil
}

// CountAttempts returns how many attempts fall inside the window ending at
// the reference time.
func (s *AttemptStore) CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	if window <= 0 {
		return 0, errors.New("window must be positive")
	}

	min := formatScore(reference.Add(-window))
	max := formatScore(reference)

	count, err := s.client.ZCount(ctx, s.key(identifier), min, max).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zcount: %w", err)
	}

	return int(count), nil
}

// TrimWindow drops attempts older than the window relative to the reference time.
func (s *AttemptStore) TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error {
	if window <= 0 {
		return errors.New("window must be positive")
	}

	threshold := formatScore(reference.Add(-window))
	if err := s.client.ZRemRangeByScore(ctx, s.key(identifier), "-inf", "("+threshold).Err(); err != nil {
		return fmt.Errorf("redis zremrangebyscore: %w", err)
	}

	return nil
}

// OldestAttempt returns the oldest attempt still inside the window, if any.
func (s *AttemptStore) OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	if window <= 0 {
		return time.Time{}, false, errors.New("window must be positive")
	}

	values, err := s.client.ZRangeByScore(ctx, s.key(identifier), &redis.ZRangeBy{
		Min:   formatScore(reference.Add(-window)),
		Max:   formatScore(reference),
		Count: 1,
	}).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis zrangebyscore: %w", err)
	}

	if len(values) == 0 {
		return time.Time{}, false, nil
	}

	nanos, err := strconv.ParseInt(values[0], 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse timestamp: %w", err)
	}

	return time.Unix(0, nanos), true, nil
}

func (s *AttemptStore) key(identifier string) string {
	if s.keyPrefix == "" {
		return identifier
	}
	return s.keyPrefix + ":" + identifier
}

func formatScore(at time.Time) string {
	return strconv.FormatInt(at.UnixNano(), 10)
}
