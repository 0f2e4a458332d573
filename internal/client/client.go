// Package client implements the resilient upstream client: cache check,
// admission control, in-flight deduplication, dispatch with bounded retries
// and backoff, and classified error translation.
package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/karanb192/reddit-mcp-buddy/internal/core/domain"
	"github.com/karanb192/reddit-mcp-buddy/internal/ratelimit"
)

// TokenSource provides outbound headers and coordinated token refresh.
type TokenSource interface {
	Headers(ctx context.Context) map[string]string
	Refresh(ctx context.Context) error
	Tier() domain.AuthTier
	IsAuthenticated() bool
}

// ResponseCache is the cache surface the client consumes.
type ResponseCache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	TTLFor(key string) time.Duration
}

// Config wires the client's collaborators. Zero values fall back to the
// defaults the gateway ships with.
type Config struct {
	BaseURL         string
	HTTPClient      *http.Client
	Tokens          TokenSource
	Limiter         ratelimit.Limiter
	Cache           ResponseCache
	MaxRetries      int
	RequestTimeout  time.Duration
	BackoffBase     time.Duration
	BackoffCap      time.Duration
	RetryAfterCap   time.Duration
	InflightMaxAge  time.Duration
	MaxResponseSize int64
	Logger          *zap.Logger
	Metrics         *Metrics
}

// Client executes logical "fetch resource at endpoint, cacheable under key"
// operations against the upstream.
type Client struct {
	baseURL         string
	httpClient      *http.Client
	tokens          TokenSource
	limiter         ratelimit.Limiter
	cache           ResponseCache
	maxRetries      int
	requestTimeout  time.Duration
	retryAfterCap   time.Duration
	maxResponseSize int64
	backoff         Backoff
	inflight        *inflightTable
	logger          *zap.Logger
	metrics         *Metrics

	stop     chan struct{}
	stopOnce sync.Once
}

// New constructs a Client and starts its in-flight sweeper.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	if cfg.MaxRetries == 0 {
		maxRetries = 2
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}
	retryAfterCap := cfg.RetryAfterCap
	if retryAfterCap <= 0 {
		retryAfterCap = 30 * time.Second
	}
	maxResponseSize := cfg.MaxResponseSize
	if maxResponseSize <= 0 {
		maxResponseSize = 10 * 1024 * 1024
	}

	c := &Client{
		baseURL:         strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient:      httpClient,
		tokens:          cfg.Tokens,
		limiter:         cfg.Limiter,
		cache:           cfg.Cache,
		maxRetries:      maxRetries,
		requestTimeout:  requestTimeout,
		retryAfterCap:   retryAfterCap,
		maxResponseSize: maxResponseSize,
		backoff:         NewBackoff(cfg.BackoffBase, cfg.BackoffCap),
		inflight:        newInflightTable(cfg.InflightMaxAge),
		logger:          logger,
		metrics:         cfg.Metrics,
		stop:            make(chan struct{}),
	}

	go c.sweepLoop()
	return c
}

// Close stops the background sweeper. Safe to call more than once.
func (c *Client) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// IsAuthenticated reports whether upstream credentials are configured.
func (c *Client) IsAuthenticated() bool {
	return c.tokens != nil && c.tokens.IsAuthenticated()
}

// RateLimitTier reports the active quota tier.
func (c *Client) RateLimitTier() domain.AuthTier {
	if c.limiter == nil {
		return domain.TierAnonymous
	}
	return c.limiter.Tier()
}

// CacheTTLHint reports how long a response under key would stay cached.
func (c *Client) CacheTTLHint(key string) time.Duration {
	if c.cache == nil {
		return 0
	}
	return c.cache.TTLFor(key)
}

// Fetch resolves the endpoint to a JSON payload, serving from cache when
// possible, deduplicating identical in-flight requests, and retrying
// transient upstream failures. cacheKey may be empty for uncacheable
// endpoints; deduplication then falls back to the raw endpoint string.
func (c *Client) Fetch(ctx context.Context, cacheKey, endpoint string) (json.RawMessage, error) {
	if c.cache != nil && cacheKey != "" {
		if value, ok := c.cache.Get(cacheKey); ok {
			c.metrics.cacheEvent("hit")
			c.metrics.outcome("cache_hit")
			return value, nil
		}
		c.metrics.cacheEvent("miss")
	}

	if err := c.admit(ctx, endpoint); err != nil {
		return nil, err
	}

	dedupKey := cacheKey
	if dedupKey == "" {
		dedupKey = endpoint
	}

	call, leader := c.inflight.acquire(dedupKey)
	if !leader {
		select {
		case <-call.done:
			return call.payload, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	payload, err := c.do(ctx, endpoint)
	if err == nil && c.cache != nil && cacheKey != "" {
		c.cache.Set(cacheKey, payload)
	}
	c.observeOutcome(err)
	c.inflight.complete(dedupKey, call, payload, err)
	return payload, err
}

// InflightSize reports the number of pending dedup entries, for diagnostics.
func (c *Client) InflightSize() int {
	return c.inflight.size()
}

// admit consults the limiter and fails fast on denial: the caller is an
// interactive tool invocation that needs an answer, not a silent stall.
func (c *Client) admit(ctx context.Context, endpoint string) error {
	if c.limiter == nil {
		return nil
	}

	ok, err := c.limiter.CanAdmit(ctx)
	if err != nil {
		// A broken shared store must not take the gateway down with it.
		c.logger.Warn("rate limit check failed, admitting", zap.Error(err))
		return nil
	}
	if ok {
		return nil
	}

	wait, err := c.limiter.TimeUntilNextSlot(ctx)
	if err != nil {
		wait = 0
	}
	c.metrics.rateLimited()
	return &domain.Error{
		Kind:       domain.KindRateLimited,
		Resource:   resourceFromEndpoint(endpoint),
		RetryAfter: wait,
		Guidance:   ratelimit.Guidance(c.limiter.Tier(), c.limiter.Limit(), wait),
	}
}

// do runs the dispatch/classify/retry loop for one logical request. The
// retry bound is an explicit loop counter, never recursion.
func (c *Client) do(ctx context.Context, endpoint string) (json.RawMessage, error) {
	resource := resourceFromEndpoint(endpoint)
	url := c.baseURL + endpoint

	var refreshed bool
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.metrics.retry()
		}

		status, header, body, err := c.dispatch(ctx, url)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			classified, retryable := classifyTransportError(err, resource)
			if retryable && attempt < c.maxRetries {
				lastErr = classified
				if err := c.wait(ctx, c.backoff.Delay(attempt)); err != nil {
					return nil, err
				}
				continue
			}
			classified.Attempts = attempt + 1
			return nil, classified
		}

		switch {
		case status >= 200 && status < 300:
			if !isJSONContentType(header.Get("Content-Type")) {
				return nil, &domain.Error{
					Kind:     domain.KindUpstreamDegraded,
					Resource: resource,
					Status:   status,
					Guidance: "upstream returned a non-JSON body, likely an error page",
				}
			}
			if c.limiter != nil {
				if err := c.limiter.Record(ctx); err != nil {
					c.logger.Warn("failed to record request in limiter", zap.Error(err))
				}
			}
			return body, nil

		case status == http.StatusUnauthorized:
			if c.tokens != nil && !refreshed && attempt < c.maxRetries {
				refreshed = true
				if err := c.tokens.Refresh(ctx); err != nil {
					c.metrics.tokenRefresh("failure")
					return nil, &domain.Error{
						Kind:     domain.KindAuthUnavailable,
						Resource: resource,
						Status:   status,
						Guidance: "token refresh after 401 failed",
						Err:      err,
					}
				}
				c.metrics.tokenRefresh("success")
				continue
			}
			return nil, &domain.Error{
				Kind:     domain.KindAuthUnavailable,
				Resource: resource,
				Status:   status,
				Attempts: attempt + 1,
				Guidance: "upstream keeps rejecting the refreshed token",
			}

		case status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable:
			if attempt < c.maxRetries {
				delay := parseRetryAfter(header.Get("Retry-After"), c.retryAfterCap)
				if delay <= 0 {
					delay = c.backoff.Delay(attempt)
				}
				lastErr = &domain.Error{Kind: domain.KindUpstreamOverloaded, Resource: resource, Status: status}
				if err := c.wait(ctx, delay); err != nil {
					return nil, err
				}
				continue
			}
			return nil, &domain.Error{
				Kind:     domain.KindUpstreamOverloaded,
				Resource: resource,
				Status:   status,
				Attempts: attempt + 1,
				Guidance: "upstream is shedding load; try again shortly",
			}

		case status == http.StatusNotFound:
			return nil, &domain.Error{
				Kind:     domain.KindNotFound,
				Resource: resource,
				Status:   status,
				Guidance: fmt.Sprintf("%s does not exist", resource),
			}

		case status == http.StatusForbidden:
			// Best-effort classification: the upstream does not reliably
			// distinguish private resources from nonexistent ones.
			return nil, &domain.Error{
				Kind:     domain.KindForbidden,
				Resource: resource,
				Status:   status,
				Guidance: fmt.Sprintf("%s may be private, quarantined, or otherwise restricted", resource),
			}

		default:
			return nil, &domain.Error{
				Kind:     domain.KindUpstreamError,
				Resource: resource,
				Status:   status,
				Guidance: bodySnippet(body),
			}
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, &domain.Error{Kind: domain.KindUpstreamError, Resource: resource}
}

// dispatch performs one attempt with its own timeout. Expiry cancels only
// this attempt; the logical request may still retry.
func (c *Client) dispatch(ctx context.Context, url string) (int, http.Header, []byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("build request: %w", err)
	}

	if c.tokens != nil {
		for k, v := range c.tokens.Headers(ctx) {
			req.Header.Set(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize))
	if err != nil {
		return resp.StatusCode, resp.Header, nil, fmt.Errorf("read response: %w", err)
	}

	return resp.StatusCode, resp.Header, body, nil
}

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) observeOutcome(err error) {
	if err == nil {
		c.metrics.outcome("success")
		return
	}
	if kind := domain.KindOf(err); kind != "" {
		c.metrics.outcome(string(kind))
		return
	}
	c.metrics.outcome("error")
}

func (c *Client) sweepLoop() {
	interval := c.inflight.maxAge / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := c.inflight.sweep(); removed > 0 {
				c.logger.Warn("removed stale in-flight entries", zap.Int("count", removed))
			}
		case <-c.stop:
			return
		}
	}
}

// classifyTransportError maps network-level failures onto the error taxonomy
// and reports whether the failure is retryable. Timeouts and connection
// resets retry like a 503; DNS, refusal, and TLS failures are terminal.
func classifyTransportError(err error, resource string) (*domain.Error, bool) {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &domain.Error{
			Kind:     domain.KindNetworkUnreachable,
			Resource: resource,
			Guidance: "DNS resolution for the upstream host failed; check network connectivity",
			Err:      err,
		}, false
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return &domain.Error{
			Kind:     domain.KindNetworkUnreachable,
			Resource: resource,
			Guidance: "TLS certificate verification failed; a proxy may be intercepting traffic",
			Err:      err,
		}, false
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return &domain.Error{
			Kind:     domain.KindNetworkUnreachable,
			Resource: resource,
			Guidance: "connection refused by the upstream host",
			Err:      err,
		}, false
	}

	if errors.Is(err, syscall.ECONNRESET) {
		return &domain.Error{
			Kind:     domain.KindNetworkUnreachable,
			Resource: resource,
			Guidance: "connection reset by the upstream host",
			Err:      err,
		}, true
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &domain.Error{
			Kind:     domain.KindTimeout,
			Resource: resource,
			Guidance: "upstream request timed out",
			Err:      err,
		}, true
	}

	return &domain.Error{
		Kind:     domain.KindNetworkUnreachable,
		Resource: resource,
		Guidance: "network failure while contacting the upstream",
		Err:      err,
	}, false
}

func isJSONContentType(contentType string) bool {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	contentType = strings.TrimSpace(strings.ToLower(contentType))
	return contentType == "application/json" || strings.HasSuffix(contentType, "+json")
}

// resourceFromEndpoint derives a user-facing resource name from the request
// path, e.g. "/r/golang/about.json" -> "r/golang".
func resourceFromEndpoint(endpoint string) string {
	path := endpoint
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	path = strings.Trim(path, "/")
	if path == "" {
		return endpoint
	}

	segments := strings.Split(path, "/")
	if len(segments) >= 2 {
		switch segments[0] {
		case "r":
			return "r/" + segments[1]
		case "user", "u":
			return "u/" + segments[1]
		}
	}

	return strings.TrimSuffix(path, ".json")
}

func bodySnippet(body []byte) string {
	const maxSnippet = 200
	s := strings.TrimSpace(string(body))
	if len(s) > maxSnippet {
		s = s[:maxSnippet] + "..."
	}
	return s
}
