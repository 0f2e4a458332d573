package ratelimit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/karanb192/reddit-mcp-buddy/internal/core/domain"
)

func TestWindowDeniesAtLimit(t *testing.T) {
	now := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	w := NewWindow(3, time.Minute).WithClock(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		if !w.CanAdmit() {
			t.Fatalf("expected admission at count %d", i)
		}
		w.Record()
	}

	if w.CanAdmit() {
		t.Fatalf("expected denial once limit reached")
	}
}

func TestWindowAdmitsAgainAfterOldestAgesOut(t *testing.T) {
	now := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	w := NewWindow(2, time.Minute).WithClock(func() time.Time { return now })

	w.Record()
	now = now.Add(30 * time.Second)
	w.Record()

	if w.CanAdmit() {
		t.Fatalf("expected denial at limit")
	}

	// One nanosecond before the oldest stamp leaves the window.
	now = now.Add(30*time.Second - time.Nanosecond)
	if w.CanAdmit() {
		t.Fatalf("expected denial while oldest stamp is still inside the window")
	}

	now = now.Add(time.Nanosecond)
	if !w.CanAdmit() {
		t.Fatalf("expected admission once oldest stamp aged past the boundary")
	}
}

func TestWindowTimeUntilNextSlot(t *testing.T) {
	now := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	w := NewWindow(1, time.Minute).WithClock(func() time.Time { return now })

	if got := w.TimeUntilNextSlot(); got != 0 {
		t.Fatalf("expected zero wait on empty window, got %v", got)
	}

	w.Record()
	now = now.Add(20 * time.Second)

	if got := w.TimeUntilNextSlot(); got != 40*time.Second {
		t.Fatalf("expected 40s wait, got %v", got)
	}
}

func TestCompoundAllWindowsMustAdmit(t *testing.T) {
	now := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	c := NewCompound().
		AddWindow("per_minute", 100, time.Minute).
		AddWindow("per_second", 1, time.Second).
		WithClock(func() time.Time { return now })

	if !c.CanAdmit() {
		t.Fatalf("expected initial admission")
	}
	c.Record()

	if c.CanAdmit() {
		t.Fatalf("expected per-second window to deny")
	}

	now = now.Add(time.Second + time.Millisecond)
	if !c.CanAdmit() {
		t.Fatalf("expected admission after the per-second window drained")
	}
}

func TestCompoundWithoutWindowsAlwaysAdmits(t *testing.T) {
	c := NewCompound()

	if !c.CanAdmit() {
		t.Fatalf("compound with zero windows must fail open")
	}
	c.Record()
	if got := c.TimeUntilNextSlot(); got != 0 {
		t.Fatalf("expected zero wait, got %v", got)
	}
}

func TestCompoundWaitIsLongestAcrossWindows(t *testing.T) {
	now := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	c := NewCompound().
		AddWindow("per_minute", 1, time.Minute).
		AddWindow("per_second", 1, time.Second).
		WithClock(func() time.Time { return now })

	c.Record()

	if got := c.TimeUntilNextSlot(); got != time.Minute {
		t.Fatalf("expected the per-minute window to dominate, got %v", got)
	}
}

func TestGuidanceVariesByTier(t *testing.T) {
	anon := Guidance(domain.TierAnonymous, domain.TierAnonymous.RequestsPerMinute(), 30*time.Second)
	if !strings.Contains(anon, "REDDIT_CLIENT_ID") {
		t.Fatalf("anonymous guidance should suggest credentials: %q", anon)
	}

	user := Guidance(domain.TierUser, domain.TierUser.RequestsPerMinute(), 30*time.Second)
	if strings.Contains(user, "REDDIT_CLIENT_ID") {
		t.Fatalf("authenticated guidance should not suggest credentials: %q", user)
	}
	if !strings.Contains(user, "100") {
		t.Fatalf("guidance should state the tier quota: %q", user)
	}
}

func TestGuidanceReportsEffectiveQuota(t *testing.T) {
	// A configured override must show up in the message, not the tier default.
	lim := NewMemoryLimiter(domain.TierApp, 42, 0)
	if lim.Limit() != 42 {
		t.Fatalf("expected effective limit 42, got %d", lim.Limit())
	}

	msg := Guidance(lim.Tier(), lim.Limit(), 10*time.Second)
	if !strings.Contains(msg, "42 requests/minute") {
		t.Fatalf("guidance should state the effective quota: %q", msg)
	}
	if strings.Contains(msg, "60") {
		t.Fatalf("guidance must not fall back to the tier default: %q", msg)
	}
}

func TestMemoryLimiterDerivesTierQuota(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	lim := NewMemoryLimiter(domain.TierAnonymous, 0, 0)
	lim.Compound().WithClock(func() time.Time { return now })

	for i := 0; i < 10; i++ {
		ok, err := lim.CanAdmit(ctx)
		if err != nil || !ok {
			t.Fatalf("expected admission at count %d (err=%v)", i, err)
		}
		if err := lim.Record(ctx); err != nil {
			t.Fatalf("Record returned error: %v", err)
		}
	}

	ok, err := lim.CanAdmit(ctx)
	if err != nil {
		t.Fatalf("CanAdmit returned error: %v", err)
	}
	if ok {
		t.Fatalf("anonymous tier should deny after 10 requests/minute")
	}
}
