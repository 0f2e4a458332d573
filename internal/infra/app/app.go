// Package app wires the gateway together: config, logger, credential store,
// limiter, cache, resilient client, query service, and the HTTP engine.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/karanb192/reddit-mcp-buddy/internal/auth"
	"github.com/karanb192/reddit-mcp-buddy/internal/cache"
	"github.com/karanb192/reddit-mcp-buddy/internal/client"
	"github.com/karanb192/reddit-mcp-buddy/internal/core/domain"
	"github.com/karanb192/reddit-mcp-buddy/internal/infra/config"
	"github.com/karanb192/reddit-mcp-buddy/internal/infra/logger"
	redisinfra "github.com/karanb192/reddit-mcp-buddy/internal/infra/redis"
	"github.com/karanb192/reddit-mcp-buddy/internal/ratelimit"
	"github.com/karanb192/reddit-mcp-buddy/internal/reddit"
	redisrepo "github.com/karanb192/reddit-mcp-buddy/internal/repository/redis"
	"github.com/karanb192/reddit-mcp-buddy/internal/transport/http/middleware"
	"github.com/karanb192/reddit-mcp-buddy/internal/transport/http/routes"
)

// Application owns the wired components and their lifecycles.
type Application struct {
	cfg     *config.AppConfig
	engine  *gin.Engine
	logger  *zap.Logger
	redis   *redisinfra.Client
	gateway *client.Client
}

// New builds the application from configuration.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	tokenStore := buildTokenStore(cfg, log)
	tier := tokenStore.Tier()
	log.Info("credential state resolved",
		zap.String("tier", tier.String()),
		zap.Bool("authenticated", tokenStore.IsAuthenticated()),
		zap.String("client_id", logger.MaskSecret(cfg.Reddit.ClientID)),
	)

	limiter, redisClient, err := buildLimiter(ctx, cfg, tier, log)
	if err != nil {
		return nil, err
	}

	responseCache := buildCache(cfg, log)

	clientMetrics, err := client.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		closeRedis(redisClient)
		return nil, fmt.Errorf("init client metrics: %w", err)
	}

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		closeRedis(redisClient)
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	gateway := client.New(client.Config{
		BaseURL:         cfg.Upstream.BaseURL,
		Tokens:          tokenStore,
		Limiter:         limiter,
		Cache:           responseCache,
		MaxRetries:      cfg.Upstream.MaxRetries,
		RequestTimeout:  cfg.Upstream.RequestTimeout,
		BackoffBase:     cfg.Upstream.BackoffBase,
		BackoffCap:      cfg.Upstream.BackoffCap,
		RetryAfterCap:   cfg.Upstream.RetryAfterCap,
		InflightMaxAge:  cfg.Upstream.InflightMaxAge,
		MaxResponseSize: cfg.Upstream.MaxResponseSize,
		Logger:          log,
		Metrics:         clientMetrics,
	})

	keyBuilder := func(parts ...any) (string, error) {
		return cache.KeyN(cfg.Cache.MaxKeyLen, parts...)
	}
	service := reddit.NewService(gateway, keyBuilder)

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		Service:     service,
		HTTPMetrics: httpMetrics,
		Auth: routes.AuthStatus{
			Authenticated: tokenStore.IsAuthenticated,
			Tier:          func() string { return tokenStore.Tier().String() },
		},
		Redis: readinessChecker(redisClient),
	})

	return &Application{
		cfg:     cfg,
		engine:  engine,
		logger:  log,
		redis:   redisClient,
		gateway: gateway,
	}, nil
}

// Run serves HTTP until the context is cancelled, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.gateway.Close()
	defer closeRedis(a.redis)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting gateway API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

// buildTokenStore resolves the credential from config and, when a credential
// file exists for the same client id, reuses its persisted token so restarts
// do not burn a fresh grant.
func buildTokenStore(cfg *config.AppConfig, log *zap.Logger) *auth.Store {
	cred := domain.Credential{
		ClientID:     cfg.Reddit.ClientID,
		ClientSecret: cfg.Reddit.ClientSecret,
		Username:     cfg.Reddit.Username,
		Password:     cfg.Reddit.Password,
		UserAgent:    cfg.Reddit.UserAgent,
	}

	if cfg.Reddit.CredentialFile != "" {
		persisted, err := auth.LoadCredential(cfg.Reddit.CredentialFile)
		switch {
		case err == nil && persisted.ClientID == cred.ClientID && cred.ClientID != "":
			cred.AccessToken = persisted.AccessToken
			cred.ExpiresAt = persisted.ExpiresAt
			cred.Scope = persisted.Scope
		case err != nil && !errors.Is(err, os.ErrNotExist):
			log.Warn("failed to load credential file", zap.Error(err))
		}
	}

	return auth.NewStore(cred, cfg.Upstream.TokenURL, cfg.Reddit.CredentialFile, nil, log)
}

// buildLimiter selects the admission backend. The in-process window is the
// default; the Redis store shares one quota across replicas.
func buildLimiter(ctx context.Context, cfg *config.AppConfig, tier domain.AuthTier, log *zap.Logger) (ratelimit.Limiter, *redisinfra.Client, error) {
	if cfg.RateLimit.Backend != "redis" {
		return ratelimit.NewMemoryLimiter(tier, cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.PerSecondLimit), nil, nil
	}

	redisClient, err := redisinfra.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		return nil, nil, fmt.Errorf("init redis: %w", err)
	}

	store := redisrepo.NewAttemptStore(redisClient.Client(), cfg.RateLimit.KeyPrefix)
	limiter := ratelimit.NewStoreLimiter(store, "upstream", tier, cfg.RateLimit.RequestsPerMinute)
	return limiter, redisClient, nil
}

// buildCache assembles the byte-budget LRU with per-prefix TTL rules derived
// from config.
func buildCache(cfg *config.AppConfig, log *zap.Logger) *cache.Store {
	rules := []cache.TTLRule{
		{Prefix: "posts", TTL: cfg.Cache.ListingTTL},
		{Prefix: "search", TTL: cfg.Cache.ListingTTL},
		{Prefix: "comments", TTL: cfg.Cache.CommentsTTL},
		{Prefix: "about", TTL: cfg.Cache.AboutTTL},
		{Prefix: "user", TTL: cfg.Cache.AboutTTL},
	}
	return cache.New(cfg.Cache.MaxBytes, cfg.Cache.DefaultTTL, rules, log)
}

func readinessChecker(redisClient *redisinfra.Client) routes.CacheChecker {
	if redisClient == nil {
		return nil
	}
	return redisClient
}

func closeRedis(redisClient *redisinfra.Client) {
	if redisClient != nil {
		_ = redisClient.Close()
	}
}
