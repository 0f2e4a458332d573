package port

import (
	"context"
	"time"
)

// AttemptStore persists sliding-window request timestamps for a limiter that
// must be shared across gateway replicas. The in-process limiter keeps its
// window in memory and does not go through this interface.
type AttemptStore interface {
	// TrimWindow drops attempts older than the window relative to reference time.
	TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error
	// CountAttempts returns how many attempts fall inside the window ending at reference time.
	CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error)
	// RecordAttempt stores one attempt at the given instant.
	RecordAttempt(ctx context.Context, identifier string, at time.Time) error
	// OldestAttempt returns the oldest attempt still inside the window, if any.
	OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error)
}
