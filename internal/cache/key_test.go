package cache

import (
	"errors"
	"strings"
	"testing"
)

func TestKeyDeterministicConstruction(t *testing.T) {
	got, err := Key("search", "AI", 10, true)
	if err != nil {
		t.Fatalf("Key returned error: %v", err)
	}
	if got != "search:ai:10:true" {
		t.Fatalf("Key = %q", got)
	}

	again, _ := Key("search", "AI", 10, true)
	if again != got {
		t.Fatalf("Key is not deterministic: %q vs %q", again, got)
	}
}

func TestKeySanitizesParts(t *testing.T) {
	got, err := Key("search", "what is AI?")
	if err != nil {
		t.Fatalf("Key returned error: %v", err)
	}
	if got != "search:what_is_ai_" {
		t.Fatalf("Key = %q", got)
	}
}

func TestKeyDropsNilParts(t *testing.T) {
	got, err := Key("posts", nil, "golang")
	if err != nil {
		t.Fatalf("Key returned error: %v", err)
	}
	if got != "posts:golang" {
		t.Fatalf("Key = %q", got)
	}
}

func TestKeyRejectsEmpty(t *testing.T) {
	if _, err := Key(); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
	if _, err := Key(nil, nil); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey for all-nil parts, got %v", err)
	}
}

func TestKeyTruncatesLongKeys(t *testing.T) {
	long := strings.Repeat("x", 500)
	got, err := Key("posts", long)
	if err != nil {
		t.Fatalf("Key returned error: %v", err)
	}
	if len(got) != DefaultMaxKeyLen {
		t.Fatalf("expected key truncated to %d, got %d", DefaultMaxKeyLen, len(got))
	}

	short, err := KeyN(16, "posts", long)
	if err != nil {
		t.Fatalf("KeyN returned error: %v", err)
	}
	if len(short) != 16 {
		t.Fatalf("expected key truncated to 16, got %d", len(short))
	}
}
