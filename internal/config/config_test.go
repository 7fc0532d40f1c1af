package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

// --- LoadConfig ---

func TestLoadConfig(t *testing.T) {
	// Helper sets the minimum required env vars for a valid config
	setRequired := func(t *testing.T) {
		t.Helper()
		t.Setenv("REDIS_URL", "redis://localhost:6379")
		t.Setenv("OIDC_ISSUER_URL", "https://idp.example.com")
		t.Setenv("OAUTH_CLIENT_ID", "client")
		t.Setenv("OAUTH_CLIENT_SECRET", "secret")
		t.Setenv("OAUTH_REDIRECT_URI", "https://app.example.com/callback")
		t.Setenv("SESSION_SECRET", strings.Repeat("x", 32))
	}

	t.Run("returns valid config with all required vars", func(t *testing.T) {
		setRequired(t)

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.RedisURL != "redis://localhost:6379" {
			t.Errorf("RedisURL: expected %q, got %q", "redis://localhost:6379", cfg.RedisURL)
		}
		if cfg.IssuerURL != "https://idp.example.com" {
			t.Errorf("IssuerURL: got %q", cfg.IssuerURL)
		}
		if string(cfg.SessionSecret) != strings.Repeat("x", 32) {
			t.Error("SessionSecret not loaded")
		}
	})

	for _, key := range []string{"REDIS_URL", "OIDC_ISSUER_URL", "OAUTH_CLIENT_ID", "OAUTH_CLIENT_SECRET", "OAUTH_REDIRECT_URI", "SESSION_SECRET"} {
		t.Run("errors when "+key+" is missing", func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, "")

			if _, err := LoadConfig(); err == nil {
				t.Fatalf("expected error for missing %s, got nil", key)
			}
		})
	}

	t.Run("errors when SESSION_SECRET is short", func(t *testing.T) {
		setRequired(t)
		t.Setenv("SESSION_SECRET", strings.Repeat("x", 31))

		if _, err := LoadConfig(); err == nil {
			t.Fatal("expected error for short SESSION_SECRET, got nil")
		}
	})

	t.Run("errors when OAUTH_REDIRECT_URI is relative", func(t *testing.T) {
		setRequired(t)
		t.Setenv("OAUTH_REDIRECT_URI", "/callback")

		if _, err := LoadConfig(); err == nil {
			t.Fatal("expected error for relative redirect uri, got nil")
		}
	})

	t.Run("DATABASE_URL is optional", func(t *testing.T) {
		setRequired(t)
		t.Setenv("DATABASE_URL", "")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.DatabaseURL != "" {
			t.Errorf("DatabaseURL: expected empty, got %q", cfg.DatabaseURL)
		}
	})

	t.Run("applies defaults", func(t *testing.T) {
		setRequired(t)
		for _, k := range []string{"PORT", "COOKIE_SECURE", "SESSION_TTL", "SESSION_SLIDING", "STATE_TTL", "EXCHANGE_TIMEOUT", "LOGIN_ERROR_URL", "POST_LOGIN_REDIRECT", "LOG_LEVEL", "OAUTH_SCOPES"} {
			t.Setenv(k, "")
		}

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Port != "8080" {
			t.Errorf("Port: expected 8080, got %q", cfg.Port)
		}
		if !cfg.CookieSecure {
			t.Error("CookieSecure: expected true")
		}
		if cfg.SessionTTL != 24*time.Hour || cfg.StateTTL != 10*time.Minute || cfg.ExchangeTimeout != 10*time.Second {
			t.Errorf("lifetimes: got session=%v state=%v exchange=%v", cfg.SessionTTL, cfg.StateTTL, cfg.ExchangeTimeout)
		}
		if cfg.SessionSliding {
			t.Error("SessionSliding: expected false")
		}
		if cfg.LoginErrorURL != "/" || cfg.PostLoginRedirect != "/dashboard" {
			t.Errorf("redirects: got %q, %q", cfg.LoginErrorURL, cfg.PostLoginRedirect)
		}
		if cfg.LogLevel != slog.LevelInfo {
			t.Errorf("LogLevel: expected info, got %v", cfg.LogLevel)
		}
		if cfg.Scopes != nil {
			t.Errorf("Scopes: expected nil, got %v", cfg.Scopes)
		}
	})

	t.Run("CookieSecure false when explicitly disabled", func(t *testing.T) {
		setRequired(t)
		t.Setenv("COOKIE_SECURE", "false")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.CookieSecure {
			t.Error("CookieSecure: expected false")
		}
	})

	t.Run("parses scopes", func(t *testing.T) {
		setRequired(t)
		t.Setenv("OAUTH_SCOPES", "openid, email  offline_access")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		want := []string{"openid", "email", "offline_access"}
		if strings.Join(cfg.Scopes, "|") != strings.Join(want, "|") {
			t.Errorf("Scopes: expected %v, got %v", want, cfg.Scopes)
		}
	})

	t.Run("invalid durations fall back to defaults", func(t *testing.T) {
		setRequired(t)
		t.Setenv("SESSION_TTL", "forever")
		t.Setenv("RATE_LOGIN_MAX", "-3")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.SessionTTL != 24*time.Hour {
			t.Errorf("SessionTTL: expected 24h, got %v", cfg.SessionTTL)
		}
		if cfg.RateLoginMax != 20 {
			t.Errorf("RateLoginMax: expected 20, got %d", cfg.RateLoginMax)
		}
	})

	t.Run("SESSION_SLIDING true", func(t *testing.T) {
		setRequired(t)
		t.Setenv("SESSION_SLIDING", "true")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if !cfg.SessionSliding {
			t.Error("SessionSliding: expected true")
		}
	})
}
