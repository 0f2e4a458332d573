package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/karanb192/reddit-mcp-buddy/internal/core/domain"
	"github.com/karanb192/reddit-mcp-buddy/internal/core/port"
)

// Limiter is the admission-control surface the resilient client consumes.
// The memory implementation never touches the context; the store-backed one
// uses it for its round trips.
type Limiter interface {
	CanAdmit(ctx context.Context) (bool, error)
	Record(ctx context.Context) error
	TimeUntilNextSlot(ctx context.Context) (time.Duration, error)
	Tier() domain.AuthTier
	Limit() int
}

// Guidance builds the denial message for the given tier and effective
// per-minute quota. The quota is passed in rather than derived from the tier
// because configuration may override the tier default. Anonymous callers are
// pointed at configuring credentials, since that is what actually raises
// their quota; authenticated callers can only wait.
func Guidance(tier domain.AuthTier, perMinute int, wait time.Duration) string {
	secs := int(wait.Round(time.Second) / time.Second)
	if tier == domain.TierAnonymous {
		return fmt.Sprintf(
			"anonymous quota of %d requests/minute exhausted; retry in ~%ds or set REDDIT_CLIENT_ID/REDDIT_CLIENT_SECRET to raise the limit",
			perMinute, secs,
		)
	}
	return fmt.Sprintf(
		"%s quota of %d requests/minute exhausted; retry in ~%ds",
		tier, perMinute, secs,
	)
}

// MemoryLimiter adapts a Compound to the Limiter interface for
// single-process deployments.
type MemoryLimiter struct {
	compound  *Compound
	tier      domain.AuthTier
	perMinute int
}

// NewMemoryLimiter builds the default limiter for the given tier: a
// per-minute window sized from the tier quota, optionally compounded with a
// per-second window.
func NewMemoryLimiter(tier domain.AuthTier, perMinute, perSecond int) *MemoryLimiter {
	if perMinute <= 0 {
		perMinute = tier.RequestsPerMinute()
	}

	compound := NewCompound().AddWindow("per_minute", perMinute, time.Minute)
	if perSecond > 0 {
		compound.AddWindow("per_second", perSecond, time.Second)
	}

	return &MemoryLimiter{compound: compound, tier: tier, perMinute: perMinute}
}

// Compound exposes the underlying windows, mainly for tests.
func (m *MemoryLimiter) Compound() *Compound { return m.compound }

func (m *MemoryLimiter) CanAdmit(context.Context) (bool, error) {
	return m.compound.CanAdmit(), nil
}

func (m *MemoryLimiter) Record(context.Context) error {
	m.compound.Record()
	return nil
}

func (m *MemoryLimiter) TimeUntilNextSlot(context.Context) (time.Duration, error) {
	return m.compound.TimeUntilNextSlot(), nil
}

func (m *MemoryLimiter) Tier() domain.AuthTier { return m.tier }

// Limit returns the effective per-minute quota.
func (m *MemoryLimiter) Limit() int { return m.perMinute }

// StoreLimiter enforces the same sliding window against a shared attempt
// store so replicas draw from one quota.
type StoreLimiter struct {
	store      port.AttemptStore
	identifier string
	limit      int
	window     time.Duration
	tier       domain.AuthTier
	now        func() time.Time
}

// NewStoreLimiter constructs a store-backed limiter scoped by identifier.
func NewStoreLimiter(store port.AttemptStore, identifier string, tier domain.AuthTier, perMinute int) *StoreLimiter {
	if perMinute <= 0 {
		perMinute = tier.RequestsPerMinute()
	}
	return &StoreLimiter{
		store:      store,
		identifier: identifier,
		limit:      perMinute,
		window:     time.Minute,
		tier:       tier,
		now:        time.Now,
	}
}

// WithClock overrides the limiter clock for deterministic tests.
func (s *StoreLimiter) WithClock(clock func() time.Time) *StoreLimiter {
	if clock != nil {
		s.now = clock
	}
	return s
}

func (s *StoreLimiter) CanAdmit(ctx context.Context) (bool, error) {
	now := s.now()
	if err := s.store.TrimWindow(ctx, s.identifier, s.window, now); err != nil {
		return false, fmt.Errorf("trim window: %w", err)
	}
	count, err := s.store.CountAttempts(ctx, s.identifier, s.window, now)
	if err != nil {
		return false, fmt.Errorf("count attempts: %w", err)
	}
	return count < s.limit, nil
}

func (s *StoreLimiter) Record(ctx context.Context) error {
	if err := s.store.RecordAttempt(ctx, s.identifier, s.now()); err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

func (s *StoreLimiter) TimeUntilNextSlot(ctx context.Context) (time.Duration, error) {
	now := s.now()
	oldest, ok, err := s.store.OldestAttempt(ctx, s.identifier, s.window, now)
	if err != nil {
		return 0, fmt.Errorf("oldest attempt: %w", err)
	}
	if !ok {
		return 0, nil
	}

	wait := oldest.Add(s.window).Sub(now)
	if wait < 0 {
		wait = 0
	}
	return wait, nil
}

func (s *StoreLimiter) Tier() domain.AuthTier { return s.tier }

// Limit returns the effective per-minute quota.
func (s *StoreLimiter) Limit() int { return s.limit }
