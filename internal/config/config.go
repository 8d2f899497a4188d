package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

const (
	// DefaultBaseURL is the fixed WHOOP developer API base. The v2 data
	// model is still served under the /v1 path prefix.
	DefaultBaseURL = "https://api.prod.whoop.com/developer/v1/"
)

// Config holds the service configuration loaded from the environment.
type Config struct {
	// Env is the deployment environment. Anything but an explicit "dev"
	// runs with production behavior.
	Env string

	DatabaseURL string
	DBMaxConns  int
	DBMinConns  int
	HTTPAddr    string

	// Platform identity provider (JWT) settings.
	JWTHS256Secret string

	// Upstream (WHOOP) settings.
	UpstreamBaseURL      string
	UpstreamClientID     string
	UpstreamClientSecret string
	UpstreamRedirectURI  string

	// Upstream quota pacing.
	RateLimitPerMinute int
	RateLimitPerDay    int

	// Per-type freshness thresholds.
	FreshnessRecovery time.Duration
	FreshnessSleep    time.Duration
	FreshnessCycle    time.Duration
	FreshnessWorkout  time.Duration

	InitialBackfillDays int
	HTTPTimeout         time.Duration
	OAuthStateTTL       time.Duration
}

// Load reads configuration from environment variables, applying defaults.
// Validation is performed separately so tests can build partial configs.
func Load() *Config {
	return &Config{
		Env:            envStr("ENV", "production"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DBMaxConns:     envInt("DB_MAX_CONNS", 20),
		DBMinConns:     envInt("DB_MIN_CONNS", 2),
		HTTPAddr:       envStr("HTTP_ADDR", ":8080"),
		JWTHS256Secret: envStr("JWT_HS256_SECRET", ""),

		UpstreamBaseURL:      envStr("UPSTREAM_BASE_URL", DefaultBaseURL),
		UpstreamClientID:     os.Getenv("UPSTREAM_CLIENT_ID"),
		UpstreamClientSecret: os.Getenv("UPSTREAM_CLIENT_SECRET"),
		UpstreamRedirectURI:  os.Getenv("UPSTREAM_REDIRECT_URI"),

		RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 80),
		RateLimitPerDay:    envInt("RATE_LIMIT_PER_DAY", 8000),

		FreshnessRecovery: envDuration("FRESHNESS_THRESHOLD_RECOVERY", 2*time.Hour),
		FreshnessSleep:    envDuration("FRESHNESS_THRESHOLD_SLEEP", 2*time.Hour),
		FreshnessCycle:    envDuration("FRESHNESS_THRESHOLD_CYCLE", 2*time.Hour),
		FreshnessWorkout:  envDuration("FRESHNESS_THRESHOLD_WORKOUT", time.Hour),

		InitialBackfillDays: envInt("INITIAL_BACKFILL_DAYS", 30),
		HTTPTimeout:         time.Duration(envInt("HTTP_TIMEOUT_SECONDS", 30)) * time.Second,
		OAuthStateTTL:       time.Duration(envInt("OAUTH_STATE_TTL_SECONDS", 600)) * time.Second,
	}
}

// Validate checks that required settings are present.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTHS256Secret == "" {
		return fmt.Errorf("JWT_HS256_SECRET is required")
	}
	if c.UpstreamClientID == "" {
		return fmt.Errorf("UPSTREAM_CLIENT_ID is required")
	}
	if c.UpstreamClientSecret == "" {
		return fmt.Errorf("UPSTREAM_CLIENT_SECRET is required")
	}
	if c.UpstreamRedirectURI == "" {
		return fmt.Errorf("UPSTREAM_REDIRECT_URI is required")
	}
	if c.RateLimitPerMinute <= 0 || c.RateLimitPerMinute > 100 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be in (0, 100], got %d", c.RateLimitPerMinute)
	}
	return nil
}

// DevMode reports whether debug authentication shortcuts are allowed.
// Requires an explicit ENV=dev; an unset environment stays locked down.
func (c *Config) DevMode() bool {
	return c.Env == "dev"
}

// Threshold returns the freshness threshold for a data type.
// Unknown types fall back to the most conservative (workout) threshold.
func (c *Config) Threshold(dataType string) time.Duration {
	switch dataType {
	case "recovery":
		return c.FreshnessRecovery
	case "sleep":
		return c.FreshnessSleep
	case "cycle":
		return c.FreshnessCycle
	case "workout":
		return c.FreshnessWorkout
	}
	return c.FreshnessWorkout
}

// OAuthEndpoints derives the authorization and token URLs from the base
// URL. The OAuth surface lives at the host root, not under the data path
// prefix.
func (c *Config) OAuthEndpoints() (authURL, tokenURL string, err error) {
	u, err := url.Parse(c.UpstreamBaseURL)
	if err != nil {
		return "", "", fmt.Errorf("parsing UPSTREAM_BASE_URL: %w", err)
	}
	root := u.Scheme + "://" + u.Host
	return root + "/oauth/oauth2/auth", root + "/oauth/oauth2/token", nil
}

func envStr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
