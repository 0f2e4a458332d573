// Package auth owns the OAuth credential lifecycle for the gateway: request
// headers, token refresh with at-most-one-concurrent-refresh, and credential
// persistence.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/karanb192/reddit-mcp-buddy/internal/core/domain"
)

const (
	// refreshBuffer triggers refresh slightly before literal expiry to absorb
	// clock skew between client and token endpoint.
	refreshBuffer = 10 * time.Second

	// expiryCeiling rejects token responses claiming implausible lifetimes.
	expiryCeiling = 48 * time.Hour

	maxTokenResponseSize = 1 << 20
)

// Store owns the Credential and is the only component that mutates it.
type Store struct {
	mu       sync.Mutex
	cred     domain.Credential
	inflight *refreshFlight

	tokenURL   string
	credFile   string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// refreshFlight is the shared completion signal for one refresh operation.
// Every caller that arrives while it is pending waits on the same channel
// and observes the same outcome.
type refreshFlight struct {
	done chan struct{}
	err  error
}

// NewStore constructs a Store around the given credential.
func NewStore(cred domain.Credential, tokenURL, credFile string, httpClient *http.Client, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &Store{
		cred:       cred,
		tokenURL:   tokenURL,
		credFile:   credFile,
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the store clock for deterministic tests.
func (s *Store) WithClock(clock func() time.Time) *Store {
	if clock != nil {
		s.now = clock
	}
	return s
}

// IsAuthenticated reports whether credentials are configured at all.
func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cred.HasClientCredentials()
}

// Tier derives the rate-limit tier from the credential fields.
func (s *Store) Tier() domain.AuthTier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cred.Tier()
}

// UserAgent returns the configured upstream user agent.
func (s *Store) UserAgent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cred.UserAgent
}

// Headers returns the outbound header set. Without credentials it returns
// anonymous headers. With credentials it returns a bearer token, refreshing
// first when the current one is missing or inside the early-refresh buffer.
// A failed refresh degrades to anonymous headers rather than blocking the
// request: partial service beats none.
func (s *Store) Headers(ctx context.Context) map[string]string {
	s.mu.Lock()
	headers := map[string]string{"User-Agent": s.cred.UserAgent}
	if !s.cred.HasClientCredentials() {
		s.mu.Unlock()
		return headers
	}
	if s.cred.TokenValid(s.now(), refreshBuffer) {
		headers["Authorization"] = "Bearer " + s.cred.AccessToken
		s.mu.Unlock()
		return headers
	}
	s.mu.Unlock()

	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn("token refresh failed, continuing anonymously", zap.Error(err))
		return headers
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred.TokenValid(s.now(), refreshBuffer) {
		headers["Authorization"] = "Bearer " + s.cred.AccessToken
	}
	return headers
}

// Refresh obtains a new access token. Concurrent callers collapse into a
// single underlying token request; all of them receive its outcome. The
// in-progress marker is released on every exit path, so a failed refresh
// never deadlocks the next one.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.inflight != nil {
		flight := s.inflight
		s.mu.Unlock()
		select {
		case <-flight.done:
			return flight.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	flight := &refreshFlight{done: make(chan struct{})}
	s.inflight = flight
	s.mu.Unlock()

	var err error
	defer func() {
		s.mu.Lock()
		s.inflight = nil
		s.mu.Unlock()
		flight.err = err
		close(flight.done)
	}()

	err = s.doRefresh(ctx)
	return err
}

func (s *Store) doRefresh(ctx context.Context) error {
	s.mu.Lock()
	cred := s.cred
	s.mu.Unlock()

	if !cred.HasClientCredentials() {
		return &domain.Error{
			Kind:     domain.KindAuthUnavailable,
			Guidance: "no Reddit credentials configured; set REDDIT_CLIENT_ID to authenticate",
		}
	}

	form := url.Values{}
	if cred.HasUserCredentials() {
		form.Set("grant_type", "password")
		form.Set("username", cred.Username)
		form.Set("password", cred.Password)
	} else {
		form.Set("grant_type", "client_credentials")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return authError("build token request", err)
	}
	req.SetBasicAuth(cred.ClientID, cred.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", cred.UserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return authError("token request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseSize))
	if err != nil {
		return authError("read token response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &domain.Error{
			Kind:     domain.KindAuthUnavailable,
			Status:   resp.StatusCode,
			Guidance: "token endpoint rejected the credential grant; check client id and secret",
		}
	}

	var grant tokenGrant
	if err := json.Unmarshal(body, &grant); err != nil {
		return authError("decode token response", err)
	}

	now := s.now()
	expiresAt, err := grant.validate(now)
	if err != nil {
		return authError("validate token response", err)
	}

	s.mu.Lock()
	s.cred.AccessToken = grant.AccessToken
	s.cred.ExpiresAt = expiresAt
	s.cred.Scope = grant.Scope
	persisted := s.cred.Sanitized()
	s.mu.Unlock()

	s.logger.Info("access token refreshed",
		zap.Time("expires_at", expiresAt),
		zap.String("scope", grant.Scope),
	)

	if s.credFile != "" {
		if err := SaveCredential(s.credFile, persisted); err != nil {
			s.logger.Warn("failed to persist credential state", zap.Error(err))
		}
	}

	return nil
}

// tokenGrant is the token endpoint response. Extra fields are tolerated and
// ignored.
type tokenGrant struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope"`
}

// validate applies the response schema checks. A grant failing any of them
// is a refresh failure, never a usable partial token.
func (g tokenGrant) validate(now time.Time) (time.Time, error) {
	if g.AccessToken == "" {
		return time.Time{}, fmt.Errorf("empty access_token")
	}
	if g.ExpiresIn <= 0 {
		return time.Time{}, fmt.Errorf("non-positive expires_in %d", g.ExpiresIn)
	}
	if time.Duration(g.ExpiresIn)*time.Second > expiryCeiling {
		return time.Time{}, fmt.Errorf("implausible expires_in %d", g.ExpiresIn)
	}

	expiresAt := now.Add(time.Duration(g.ExpiresIn) * time.Second)
	if !expiresAt.After(now) {
		return time.Time{}, fmt.Errorf("computed expiry not in the future")
	}
	return expiresAt, nil
}

func authError(stage string, err error) *domain.Error {
	return &domain.Error{
		Kind:     domain.KindAuthUnavailable,
		Guidance: stage,
		Err:      err,
	}
}
