package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"github.com/karanb192/reddit-mcp-buddy/internal/cache"
	"github.com/karanb192/reddit-mcp-buddy/internal/core/domain"
	"github.com/karanb192/reddit-mcp-buddy/internal/infra/config"
	"github.com/karanb192/reddit-mcp-buddy/internal/reddit"
)

type stubFetcher struct {
	payload string
	err     error
}

func (s *stubFetcher) Fetch(context.Context, string, string) (json.RawMessage, error) {
	if s.err != nil {
		return nil, s.err
	}
	return json.RawMessage(s.payload), nil
}

func newTestEngine(t *testing.T, fetcher *stubFetcher) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	return Register(Dependencies{
		Config:  &config.AppConfig{},
		Logger:  zaptest.NewLogger(t),
		Service: reddit.NewService(fetcher, cache.Key),
		Auth: AuthStatus{
			Authenticated: func() bool { return false },
			Tier:          func() string { return "anonymous" },
		},
	})
}

func TestHealthzReportsTier(t *testing.T) {
	router := newTestEngine(t, &stubFetcher{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var body struct {
		Status        string `json:"status"`
		Tier          string `json:"tier"`
		Authenticated bool   `json:"authenticated"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "ok" || body.Tier != "anonymous" || body.Authenticated {
		t.Fatalf("unexpected health payload: %+v", body)
	}
}

func TestPostsRouteReturnsListing(t *testing.T) {
	fetcher := &stubFetcher{payload: `{
		"kind": "Listing",
		"data": {"children": [{"kind": "t3", "data": {"id": "abc", "title": "hello", "author": "gopher"}}]}
	}`}
	router := newTestEngine(t, fetcher)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/r/golang/posts?limit=5", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Count != 1 {
		t.Fatalf("expected 1 post, got %d", body.Count)
	}
}

func TestInvalidSubredditMapsTo400(t *testing.T) {
	router := newTestEngine(t, &stubFetcher{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/r/a/posts", nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestRateLimitedMapsTo429WithRetryAfter(t *testing.T) {
	fetcher := &stubFetcher{err: &domain.Error{
		Kind:       domain.KindRateLimited,
		RetryAfter: 42 * time.Second,
		Guidance:   "slow down",
	}}
	router := newTestEngine(t, fetcher)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/r/golang/posts", nil))

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "42" {
		t.Fatalf("expected Retry-After 42, got %q", got)
	}
}

func TestNotFoundMapsTo404(t *testing.T) {
	fetcher := &stubFetcher{err: &domain.Error{Kind: domain.KindNotFound, Resource: "r/golang"}}
	router := newTestEngine(t, fetcher)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/r/golang/about", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestTimeoutMapsTo504(t *testing.T) {
	fetcher := &stubFetcher{err: &domain.Error{Kind: domain.KindTimeout}}
	router := newTestEngine(t, fetcher)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=go", nil))

	if rr.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rr.Code)
	}
}

func TestRequestIDHeaderPropagated(t *testing.T) {
	router := newTestEngine(t, &stubFetcher{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	router.ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Request-ID"); got != "req-123" {
		t.Fatalf("expected request id echoed back, got %q", got)
	}
}
