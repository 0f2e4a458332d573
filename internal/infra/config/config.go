package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig is the root configuration for the gateway.
type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Upstream  UpstreamSettings  `mapstructure:"upstream"`
	Reddit    RedditSettings    `mapstructure:"reddit"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Cache     CacheSettings     `mapstructure:"cache"`
	Redis     RedisSettings     `mapstructure:"redis"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// UpstreamSettings controls how the resilient client talks to Reddit.
type UpstreamSettings struct {
	BaseURL         string        `mapstructure:"base_url"`
	TokenURL        string        `mapstructure:"token_url"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	BackoffBase     time.Duration `mapstructure:"backoff_base"`
	BackoffCap      time.Duration `mapstructure:"backoff_cap"`
	RetryAfterCap   time.Duration `mapstructure:"retry_after_cap"`
	InflightMaxAge  time.Duration `mapstructure:"inflight_max_age"`
	MaxResponseSize int64         `mapstructure:"max_response_size"`
}

// RedditSettings carries the OAuth credential material. Each field is
// individually optional; which ones are populated decides the auth tier.
type RedditSettings struct {
	ClientID       string `mapstructure:"client_id"`
	ClientSecret   string `mapstructure:"client_secret"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	UserAgent      string `mapstructure:"user_agent"`
	CredentialFile string `mapstructure:"credential_file"`
}

// RateLimitSettings configures admission control. Backend selects the
// in-process sliding window ("memory") or the Redis-backed store ("redis")
// for deployments with more than one replica.
type RateLimitSettings struct {
	Backend           string        `mapstructure:"backend"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	PerSecondLimit    int           `mapstructure:"per_second_limit"`
	Window            time.Duration `mapstructure:"window"`
	KeyPrefix         string        `mapstructure:"key_prefix"`
}

// CacheSettings bounds the response cache. MaxBytes of zero disables caching
// entirely; this is the documented no-cache mode, not an error.
type CacheSettings struct {
	MaxBytes    int           `mapstructure:"max_bytes"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	ListingTTL  time.Duration `mapstructure:"listing_ttl"`
	CommentsTTL time.Duration `mapstructure:"comments_ttl"`
	AboutTTL    time.Duration `mapstructure:"about_ttl"`
	MaxKeyLen   int           `mapstructure:"max_key_len"`
}

// RedisSettings configures the optional Redis connection.
type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("REDDIT")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"upstream.base_url",
		"upstream.token_url",
		"upstream.request_timeout",
		"upstream.max_retries",
		"upstream.backoff_base",
		"upstream.backoff_cap",
		"upstream.retry_after_cap",
		"upstream.inflight_max_age",
		"upstream.max_response_size",
		"reddit.client_id",
		"reddit.client_secret",
		"reddit.username",
		"reddit.password",
		"reddit.user_agent",
		"reddit.credential_file",
		"rate_limit.backend",
		"rate_limit.requests_per_minute",
		"rate_limit.per_second_limit",
		"rate_limit.window",
		"rate_limit.key_prefix",
		"cache.max_bytes",
		"cache.default_ttl",
		"cache.listing_ttl",
		"cache.comments_ttl",
		"cache.about_ttl",
		"cache.max_key_len",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	sanitizeCredentials(&cfg.Reddit)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "reddit-mcp-buddy")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("upstream.base_url", "https://oauth.reddit.com")
	v.SetDefault("upstream.token_url", "https://www.reddit.com/api/v1/access_token")
	v.SetDefault("upstream.request_timeout", "10s")
	v.SetDefault("upstream.max_retries", 2)
	v.SetDefault("upstream.backoff_base", "1s")
	v.SetDefault("upstream.backoff_cap", "30s")
	v.SetDefault("upstream.retry_after_cap", "30s")
	v.SetDefault("upstream.inflight_max_age", "5m")
	v.SetDefault("upstream.max_response_size", 10*1024*1024)

	v.SetDefault("reddit.user_agent", "reddit-mcp-buddy/1.0")
	v.SetDefault("reddit.credential_file", "")

	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.requests_per_minute", 0) // 0 = derive from auth tier
	v.SetDefault("rate_limit.per_second_limit", 0)
	v.SetDefault("rate_limit.window", "60s")
	v.SetDefault("rate_limit.key_prefix", "buddy:ratelimit")

	v.SetDefault("cache.max_bytes", 50*1024*1024)
	v.SetDefault("cache.default_ttl", "10m")
	v.SetDefault("cache.listing_ttl", "5m")
	v.SetDefault("cache.comments_ttl", "15m")
	v.SetDefault("cache.about_ttl", "1h")
	v.SetDefault("cache.max_key_len", 200)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "REDDIT_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}

var placeholderPattern = regexp.MustCompile(`^\$\{[A-Za-z_][A-Za-z0-9_]*\}$|^\$[A-Za-z_][A-Za-z0-9_]*$`)

// IsPlaceholder reports whether a value looks like an unexpanded template
// variable such as ${REDDIT_CLIENT_ID} or $REDDIT_CLIENT_ID. Deployments that
// ship unfilled templates must be treated as unconfigured, not as deliberate
// credential text.
func IsPlaceholder(value string) bool {
	return placeholderPattern.MatchString(strings.TrimSpace(value))
}

func sanitizeCredentials(s *RedditSettings) {
	fields := []*string{&s.ClientID, &s.ClientSecret, &s.Username, &s.Password}
	for _, f := range fields {
		if IsPlaceholder(*f) {
			*f = ""
		}
	}
}
