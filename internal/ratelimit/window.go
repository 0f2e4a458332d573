// Package ratelimit provides sliding-window admission control for outbound
// Reddit requests, in single-window and compound multi-window form, plus a
// store-backed variant for multi-replica deployments.
package ratelimit

import (
	"sync"
	"time"
)

// Window is a sliding-window quota: at most limit requests within the
// trailing duration. Timestamps are pruned lazily on the next CanAdmit,
// Record, or TimeUntilNextSlot call; there is no background timer.
type Window struct {
	mu       sync.Mutex
	limit    int
	duration time.Duration
	stamps   []time.Time
	now      func() time.Time
}

// NewWindow constructs a sliding window admitting limit requests per duration.
func NewWindow(limit int, duration time.Duration) *Window {
	if limit < 0 {
		limit = 0
	}
	if duration <= 0 {
		duration = time.Minute
	}
	return &Window{
		limit:    limit,
		duration: duration,
		now:      time.Now,
	}
}

// WithClock overrides the window clock for deterministic tests.
func (w *Window) WithClock(clock func() time.Time) *Window {
	if clock != nil {
		w.now = clock
	}
	return w
}

// CanAdmit reports whether a request may proceed right now.
func (w *Window) CanAdmit() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(w.now())
	return len(w.stamps) < w.limit
}

// Record appends the current instant to the window. Callers record only
// requests that actually went out.
func (w *Window) Record() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.prune(now)
	w.stamps = append(w.stamps, now)
}

// TimeUntilNextSlot returns how long until the oldest recorded request ages
// out of the window, or zero when admission is already possible.
func (w *Window) TimeUntilNextSlot() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.prune(now)
	if len(w.stamps) < w.limit {
		return 0
	}

	wait := w.stamps[0].Add(w.duration).Sub(now)
	if wait < 0 {
		wait = 0
	}
	return wait
}

// Limit returns the configured request limit.
func (w *Window) Limit() int { return w.limit }

// Duration returns the configured window duration.
func (w *Window) Duration() time.Duration { return w.duration }

// prune must be called with the mutex held. Timestamps are appended in order,
// so the retained tail is everything at or after the cutoff.
func (w *Window) prune(now time.Time) {
	cutoff := now.Add(-w.duration)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

// Compound is a set of named windows that must all admit simultaneously.
// A compound with zero windows always admits: compound limiting is optional
// composition, not a fallback for missing configuration.
type Compound struct {
	mu      sync.Mutex
	order   []string
	windows map[string]*Window
}

// NewCompound constructs an empty compound limiter.
func NewCompound() *Compound {
	return &Compound{windows: make(map[string]*Window)}
}

// AddWindow registers a named sub-window. Re-adding a name replaces it.
func (c *Compound) AddWindow(name string, limit int, duration time.Duration) *Compound {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.windows[name]; !ok {
		c.order = append(c.order, name)
	}
	c.windows[name] = NewWindow(limit, duration)
	return c
}

// WithClock propagates a clock override to every registered window.
func (c *Compound) WithClock(clock func() time.Time) *Compound {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, w := range c.windows {
		w.WithClock(clock)
	}
	return c
}

// CanAdmit reports whether every sub-window admits.
func (c *Compound) CanAdmit() bool {
	for _, w := range c.snapshot() {
		if !w.CanAdmit() {
			return false
		}
	}
	return true
}

// Record appends the current instant to every sub-window.
func (c *Compound) Record() {
	for _, w := range c.snapshot() {
		w.Record()
	}
}

// TimeUntilNextSlot returns the longest wait across the denying sub-windows,
// or zero when admission is possible.
func (c *Compound) TimeUntilNextSlot() time.Duration {
	var wait time.Duration
	for _, w := range c.snapshot() {
		if d := w.TimeUntilNextSlot(); d > wait {
			wait = d
		}
	}
	return wait
}

func (c *Compound) snapshot() []*Window {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*Window, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.windows[name])
	}
	return out
}
