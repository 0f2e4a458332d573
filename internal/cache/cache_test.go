package cache

import (
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func newTestStore(t *testing.T, maxBytes int) (*Store, *time.Time) {
	t.Helper()

	now := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	store := New(maxBytes, time.Minute, nil, zaptest.NewLogger(t))
	store.WithClock(func() time.Time { return now })
	return store, &now
}

func TestSetGetRoundTrip(t *testing.T) {
	store, _ := newTestStore(t, 1024)

	store.Set("posts:golang:hot", []byte(`{"ok":true}`))

	got, ok := store.Get("posts:golang:hot")
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if string(got) != `{"ok":true}` {
		t.Fatalf("unexpected value: %s", got)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	store, _ := newTestStore(t, 1024)

	store.Set("k", []byte("abc"))
	first, _ := store.Get("k")
	first[0] = 'z'

	second, _ := store.Get("k")
	if string(second) != "abc" {
		t.Fatalf("stored value mutated through returned slice: %s", second)
	}
}

func TestExpiryHonoursTTLOverride(t *testing.T) {
	store, now := newTestStore(t, 1024)

	store.SetWithTTL("k", []byte("v"), 5*time.Second)

	*now = now.Add(4999 * time.Millisecond)
	if _, ok := store.Get("k"); !ok {
		t.Fatalf("expected hit just before TTL elapses")
	}

	*now = now.Add(time.Millisecond)
	if _, ok := store.Get("k"); ok {
		t.Fatalf("expected miss once TTL has elapsed")
	}
	if store.Len() != 0 {
		t.Fatalf("expected expired entry to be evicted, %d resident", store.Len())
	}
}

func TestPrefixRulesPickTTL(t *testing.T) {
	now := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	rules := []TTLRule{
		{Prefix: "posts", TTL: 5 * time.Minute},
		{Prefix: "about", TTL: time.Hour},
	}
	store := New(1024, 10*time.Minute, rules, zaptest.NewLogger(t))
	store.WithClock(func() time.Time { return now })

	if got := store.TTLFor("posts:golang:hot"); got != 5*time.Minute {
		t.Fatalf("posts TTL = %v", got)
	}
	if got := store.TTLFor("about:golang"); got != time.Hour {
		t.Fatalf("about TTL = %v", got)
	}
	if got := store.TTLFor("search:ai"); got != 10*time.Minute {
		t.Fatalf("default TTL = %v", got)
	}

	store.Set("posts:golang:hot", []byte("v"))
	now = now.Add(5*time.Minute + time.Second)
	if _, ok := store.Get("posts:golang:hot"); ok {
		t.Fatalf("expected posts entry to expire after its rule TTL")
	}
}

func TestBudgetNeverExceededAndLRUOrder(t *testing.T) {
	store, _ := newTestStore(t, 30)

	store.Set("a", []byte("aaaaaaaaaa")) // 10 bytes
	store.Set("b", []byte("bbbbbbbbbb"))
	store.Set("c", []byte("cccccccccc"))

	if store.UsedBytes() != 30 {
		t.Fatalf("expected 30 resident bytes, got %d", store.UsedBytes())
	}

	// Touch "a" so "b" becomes least recently used.
	if _, ok := store.Get("a"); !ok {
		t.Fatalf("expected hit for a")
	}

	store.Set("d", []byte("dddddddddd"))

	if store.UsedBytes() > 30 {
		t.Fatalf("budget exceeded: %d bytes resident", store.UsedBytes())
	}
	if store.Has("b") {
		t.Fatalf("expected least recently used entry b to be evicted")
	}
	if !store.Has("a") || !store.Has("c") || !store.Has("d") {
		t.Fatalf("unexpected survivors: a=%v c=%v d=%v", store.Has("a"), store.Has("c"), store.Has("d"))
	}
}

func TestOversizedEntryRejected(t *testing.T) {
	store, _ := newTestStore(t, 10)

	store.Set("small", []byte("1234"))
	store.Set("huge", make([]byte, 11))

	if store.Has("huge") {
		t.Fatalf("oversized entry must never be admitted")
	}
	if !store.Has("small") {
		t.Fatalf("rejection must not disturb resident entries")
	}
}

func TestHasDoesNotRefreshRecency(t *testing.T) {
	store, _ := newTestStore(t, 20)

	store.Set("old", []byte("aaaaaaaaaa"))
	store.Set("new", []byte("bbbbbbbbbb"))

	// Has must not promote "old"; the next insertion should still evict it.
	if !store.Has("old") {
		t.Fatalf("expected old to be resident")
	}
	store.Set("next", []byte("cccccccccc"))

	if store.Has("old") {
		t.Fatalf("Has must not count as cache activity")
	}
	if !store.Has("new") {
		t.Fatalf("expected new to survive")
	}
}

func TestDisabledCache(t *testing.T) {
	store, _ := newTestStore(t, 0)

	store.Set("k", []byte("v"))

	if store.Has("k") || store.Len() != 0 {
		t.Fatalf("disabled cache must accept no entries")
	}
	if _, ok := store.Get("k"); ok {
		t.Fatalf("disabled cache must serve no hits")
	}

	// A zero-byte value fits any budget arithmetically; it must still be
	// refused when the cache is off.
	store.Set("empty", []byte{})

	if store.Has("empty") || store.Len() != 0 {
		t.Fatalf("disabled cache must refuse empty entries too")
	}
	if _, ok := store.Get("empty"); ok {
		t.Fatalf("disabled cache must not serve an empty-value hit")
	}
}

func TestDeleteAndClear(t *testing.T) {
	store, _ := newTestStore(t, 1024)

	store.Set("a", []byte("1"))
	store.Set("b", []byte("2"))

	store.Delete("a")
	if store.Has("a") {
		t.Fatalf("expected a to be deleted")
	}

	store.Clear()
	if store.Len() != 0 || store.UsedBytes() != 0 {
		t.Fatalf("expected empty store after Clear, len=%d bytes=%d", store.Len(), store.UsedBytes())
	}
}

func TestReplaceExistingKeyAdjustsBytes(t *testing.T) {
	store, _ := newTestStore(t, 100)

	store.Set("k", make([]byte, 60))
	store.Set("k", make([]byte, 10))

	if store.UsedBytes() != 10 {
		t.Fatalf("expected 10 resident bytes after replacement, got %d", store.UsedBytes())
	}

	for i := 0; i < 9; i++ {
		store.Set(fmt.Sprintf("fill-%d", i), make([]byte, 10))
	}
	if store.UsedBytes() != 100 {
		t.Fatalf("expected full budget utilisation, got %d", store.UsedBytes())
	}
}
