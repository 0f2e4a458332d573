package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/karanb192/reddit-mcp-buddy/internal/core/domain"
)

type fakeAttemptStore struct {
	trimErr   error
	count     int
	countErr  error
	oldest    time.Time
	hasOldest bool
	oldestErr error
	recordErr error

	trimmed     []string
	recordedKey string
	recordCalls int
}

func (f *fakeAttemptStore) TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error {
	f.trimmed = append(f.trimmed, identifier)
	return f.trimErr
}

func (f *fakeAttemptStore) CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	return f.count, f.countErr
}

func (f *fakeAttemptStore) RecordAttempt(ctx context.Context, identifier string, at time.Time) error {
	f.recordedKey = identifier
	f.recordCalls++
	return f.recordErr
}

func (f *fakeAttemptStore) OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	return f.oldest, f.hasOldest, f.oldestErr
}

func TestStoreLimiterAdmitsBelowLimit(t *testing.T) {
	store := &fakeAttemptStore{count: 5}
	lim := NewStoreLimiter(store, "buddy:ratelimit", domain.TierApp, 60)

	ok, err := lim.CanAdmit(context.Background())
	if err != nil {
		t.Fatalf("CanAdmit returned error: %v", err)
	}
	if !ok {
		t.Fatalf("expected admission with 5/60 used")
	}
	if len(store.trimmed) != 1 || store.trimmed[0] != "buddy:ratelimit" {
		t.Fatalf("expected window trim before counting, got %v", store.trimmed)
	}
}

func TestStoreLimiterDeniesAtLimit(t *testing.T) {
	store := &fakeAttemptStore{count: 60}
	lim := NewStoreLimiter(store, "buddy:ratelimit", domain.TierApp, 60)

	ok, err := lim.CanAdmit(context.Background())
	if err != nil {
		t.Fatalf("CanAdmit returned error: %v", err)
	}
	if ok {
		t.Fatalf("expected denial at the limit")
	}
}

func TestStoreLimiterWaitFromOldestAttempt(t *testing.T) {
	now := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	store := &fakeAttemptStore{oldest: now.Add(-40 * time.Second), hasOldest: true}
	lim := NewStoreLimiter(store, "buddy:ratelimit", domain.TierApp, 60).
		WithClock(func() time.Time { return now })

	wait, err := lim.TimeUntilNextSlot(context.Background())
	if err != nil {
		t.Fatalf("TimeUntilNextSlot returned error: %v", err)
	}
	if wait != 20*time.Second {
		t.Fatalf("expected 20s wait, got %v", wait)
	}
}

func TestStoreLimiterPropagatesStoreErrors(t *testing.T) {
	wantErr := errors.New("redis gone")
	lim := NewStoreLimiter(&fakeAttemptStore{countErr: wantErr}, "k", domain.TierApp, 60)

	if _, err := lim.CanAdmit(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestStoreLimiterRecordsAttempt(t *testing.T) {
	store := &fakeAttemptStore{}
	lim := NewStoreLimiter(store, "buddy:ratelimit", domain.TierUser, 0)

	if err := lim.Record(context.Background()); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if store.recordCalls != 1 || store.recordedKey != "buddy:ratelimit" {
		t.Fatalf("expected one recorded attempt, got %d for %q", store.recordCalls, store.recordedKey)
	}
	if lim.limit != domain.TierUser.RequestsPerMinute() {
		t.Fatalf("expected tier-derived limit, got %d", lim.limit)
	}
}
