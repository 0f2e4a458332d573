package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a gateway failure. Every error surfaced by the access
// layer carries exactly one kind so callers can react without parsing text.
type ErrorKind string

const (
	// KindRateLimited means the local limiter denied admission; the caller can
	// retry after the reported delay or raise its auth tier.
	KindRateLimited ErrorKind = "rate_limited"
	// KindAuthUnavailable means no usable token could be obtained.
	KindAuthUnavailable ErrorKind = "authentication_unavailable"
	// KindNotFound means the upstream reported the resource does not exist.
	KindNotFound ErrorKind = "not_found"
	// KindForbidden means the upstream denied access; the resource may be
	// private or quarantined rather than nonexistent.
	KindForbidden ErrorKind = "forbidden"
	// KindUpstreamOverloaded means retries against 429/503 were exhausted.
	KindUpstreamOverloaded ErrorKind = "upstream_overloaded"
	// KindUpstreamDegraded means the upstream answered 2xx with a non-JSON
	// body, typically an HTML error page.
	KindUpstreamDegraded ErrorKind = "upstream_degraded"
	// KindUpstreamError covers any other non-2xx status.
	KindUpstreamError ErrorKind = "upstream_error"
	// KindNetworkUnreachable covers DNS, connection, and TLS failures.
	KindNetworkUnreachable ErrorKind = "network_unreachable"
	// KindTimeout means a dispatch attempt exceeded its deadline.
	KindTimeout ErrorKind = "timeout"
	// KindCacheRejected is non-fatal: an entry was too large to cache.
	KindCacheRejected ErrorKind = "cache_rejected"
)

// Error is the classified failure type for the access layer. It carries
// enough context (resource, status, attempts) to be shown to an end user
// without a translation layer.
type Error struct {
	Kind     ErrorKind
	Resource string
	Status   int
	Attempts int
	// RetryAfter is the suggested wait before the next attempt, set for
	// rate-limited failures.
	RetryAfter time.Duration
	Guidance   string
	Err        error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Resource != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Resource)
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Attempts > 0 {
		msg = fmt.Sprintf("%s after %d attempts", msg, e.Attempts)
	}
	if e.Guidance != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Guidance)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// NewError constructs a classified error of the given kind.
func NewError(kind ErrorKind, guidance string) *Error {
	return &Error{Kind: kind, Guidance: guidance}
}

// KindOf extracts the classification of err, or "" when err is not a
// gateway error.
func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
