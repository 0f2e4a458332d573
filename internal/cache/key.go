package cache

import (
	"errors"
	"fmt"
	"strings"
)

const (
	keyDelimiter = ":"

	// DefaultMaxKeyLen bounds the memory spent on keys themselves.
	DefaultMaxKeyLen = 200
)

// ErrEmptyKey is returned when no usable key parts were supplied.
var ErrEmptyKey = errors.New("cache: key requires at least one part")

// Key builds a deterministic cache key from the given parts. Each part is
// rendered, lowercased, and sanitized (non-alphanumeric runes become
// underscores); nil parts are dropped; parts join with ":". The same inputs
// always yield the same key, which is what lets cache lookups and in-flight
// deduplication correlate.
//
//	Key("search", "AI", 10, true)   -> "search:ai:10:true"
//	Key("search", "what is AI?")    -> "search:what_is_ai_"
func Key(parts ...any) (string, error) {
	return KeyN(DefaultMaxKeyLen, parts...)
}

// KeyN is Key with an explicit maximum key length.
func KeyN(maxLen int, parts ...any) (string, error) {
	if maxLen <= 0 {
		maxLen = DefaultMaxKeyLen
	}

	sanitized := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == nil {
			continue
		}
		sanitized = append(sanitized, sanitizePart(fmt.Sprint(part)))
	}

	if len(sanitized) == 0 {
		return "", ErrEmptyKey
	}

	key := strings.Join(sanitized, keyDelimiter)
	if len(key) > maxLen {
		key = key[:maxLen]
	}
	return key, nil
}

func sanitizePart(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
