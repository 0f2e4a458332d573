package client

import (
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// Backoff computes retry delays: base doubled per attempt, jittered by ±20%
// so synchronized callers do not retry in lockstep, capped at Cap.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

// NewBackoff constructs a Backoff with sane fallbacks.
func NewBackoff(base, cap time.Duration) Backoff {
	if base <= 0 {
		base = time.Second
	}
	if cap <= 0 {
		cap = 30 * time.Second
	}
	return Backoff{Base: base, Cap: cap}
}

// Delay returns the wait before retry attempt n (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	d := float64(b.Base) * math.Pow(2, float64(attempt))
	jitter := d * 0.2 * (rand.Float64()*2 - 1) //nolint:gosec
	d += jitter

	if d < 0 {
		d = float64(b.Base)
	}
	if d > float64(b.Cap) {
		d = float64(b.Cap)
	}
	return time.Duration(d)
}

// parseRetryAfter parses a Retry-After header in either seconds or HTTP-date
// form and clamps the result to cap. It returns 0 when the header is absent
// or unparseable, letting the caller fall back to computed backoff.
func parseRetryAfter(value string, cap time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	var d time.Duration
	if secs, err := strconv.ParseFloat(value, 64); err == nil && secs >= 0 {
		d = time.Duration(math.Ceil(secs)) * time.Second
	} else {
		for _, layout := range []string{time.RFC1123, time.RFC850, time.ANSIC} {
			if t, err := time.Parse(layout, value); err == nil {
				d = time.Until(t)
				break
			}
		}
	}

	if d <= 0 {
		return 0
	}
	if cap > 0 && d > cap {
		return cap
	}
	return d
}
