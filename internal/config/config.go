// config.go

// Environment variable loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// MinSessionSecretLen is the shortest SESSION_SECRET accepted (256 bits).
const MinSessionSecretLen = 32

// Config holds all env configuration vars for Styx.
type Config struct {
	RedisURL string
	// DatabaseURL is optional; empty disables the Postgres audit log.
	DatabaseURL  string
	Port         string
	CookieDomain string
	LogLevel     slog.Level

	// Identity provider. Discovery runs against IssuerURL at startup.
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string // default openid, email, profile
	OrgClaim     string   // ID token claim holding the organization id

	// SessionSecret keys the HMAC that turns session ids into store keys.
	SessionSecret []byte

	// CookieSecure defaults to true. Only disable for local plain-HTTP development.
	CookieSecure bool

	// Lifetimes. Defaults: 24h session, 10m state, 10s exchange.
	SessionTTL      time.Duration
	SessionSliding  bool
	StateTTL        time.Duration
	ExchangeTimeout time.Duration

	// LoginErrorURL receives ?error=<kind> on failed logins. Default "/".
	LoginErrorURL string
	// PostLoginRedirect is where successful logins land without a return path. Default "/dashboard".
	PostLoginRedirect string

	// Rate limit policy for GET /login per client IP.
	// Defaults: max=20, window=1m, lockout=5m.
	RateLoginMax     int
	RateLoginWindow  time.Duration
	RateLoginLockout time.Duration

	// AuditRetention bounds how long audit rows are kept. Default 90 days.
	AuditRetention time.Duration
}

// LoadConfig reads environment variables and returns a validated Config.
// Returns an error if a required variable is missing or SESSION_SECRET is too short.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	required := []struct {
		key string
		dst *string
	}{
		{"REDIS_URL", &cfg.RedisURL},
		{"OIDC_ISSUER_URL", &cfg.IssuerURL},
		{"OAUTH_CLIENT_ID", &cfg.ClientID},
		{"OAUTH_CLIENT_SECRET", &cfg.ClientSecret},
		{"OAUTH_REDIRECT_URI", &cfg.RedirectURI},
	}
	for _, r := range required {
		*r.dst = os.Getenv(r.key)
		if *r.dst == "" {
			return nil, fmt.Errorf("%s is required", r.key)
		}
	}

	// Redirect URI must be absolute; the provider compares it byte for byte.
	if u, err := url.Parse(cfg.RedirectURI); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("OAUTH_REDIRECT_URI must be an absolute URL")
	}

	secret := os.Getenv("SESSION_SECRET")
	if len(secret) < MinSessionSecretLen {
		return nil, fmt.Errorf("SESSION_SECRET must be at least %d bytes", MinSessionSecretLen)
	}
	cfg.SessionSecret = []byte(secret)

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	// Attempt to get port num, default to 8080
	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		cfg.Port = "8080"
	}

	cfg.CookieDomain = os.Getenv("COOKIE_DOMAIN")

	// Parse log level, default to info
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		cfg.LogLevel = slog.LevelInfo
	}

	if v := os.Getenv("OAUTH_SCOPES"); v != "" {
		cfg.Scopes = strings.Fields(strings.ReplaceAll(v, ",", " "))
	}
	cfg.OrgClaim = os.Getenv("OIDC_ORG_CLAIM")

	// Default true -- only explicit "false" disables.
	cfg.CookieSecure = envBool("COOKIE_SECURE", true)

	cfg.SessionTTL = envDuration("SESSION_TTL", 24*time.Hour)
	cfg.SessionSliding = envBool("SESSION_SLIDING", false)
	cfg.StateTTL = envDuration("STATE_TTL", 10*time.Minute)
	cfg.ExchangeTimeout = envDuration("EXCHANGE_TIMEOUT", 10*time.Second)

	cfg.LoginErrorURL = envString("LOGIN_ERROR_URL", "/")
	cfg.PostLoginRedirect = envString("POST_LOGIN_REDIRECT", "/dashboard")

	// Rate limit: login per IP. Invalid values fall back to the default so a
	// misconfigured env doesn't silently disable rate limiting.
	cfg.RateLoginMax = envInt("RATE_LOGIN_MAX", 20)
	cfg.RateLoginWindow = envDuration("RATE_LOGIN_WINDOW", time.Minute)
	cfg.RateLoginLockout = envDuration("RATE_LOGIN_LOCKOUT", 5*time.Minute)

	cfg.AuditRetention = envDuration("AUDIT_RETENTION", 90*24*time.Hour)

	return cfg, nil
}

// envString reads an env var, returning def if missing.
func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envInt reads an env var as int, returning def if missing or unparseable.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

// envDuration reads an env var as time.Duration, returning def if missing or unparseable.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

// envBool reads an env var as bool, returning def if missing or unparseable.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}
