package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MGallo-Code/styx/internal/audit"
	"github.com/MGallo-Code/styx/internal/auth"
	"github.com/MGallo-Code/styx/internal/config"
	"github.com/MGallo-Code/styx/internal/metrics"
	"github.com/MGallo-Code/styx/internal/oauth"
	"github.com/MGallo-Code/styx/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Embeds the migration files INTO the go bin

//go:embed migrations/*.sql
var migrationsDir embed.FS

func main() {
	// Optional .env for local development; real env vars win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	// Load config first so we can set log level
	cfg, err := config.LoadConfig()
	if err != nil {
		// Fallback logger before config is available
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}

	// Include source location in log entries at debug level only.
	addSrc := cfg.LogLevel == slog.LevelDebug

	// Set up slog to output as json with configured level
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     cfg.LogLevel,
		AddSource: addSrc,
	})))

	// Cancel ctx on SIGINT/SIGTERM; run() shuts down when ctx is done.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, nil); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// run holds all server logic and returns error instead of calling os.Exit,
// so deferred resource cleanup always runs.
// Shuts down when ctx is cancelled (signal handling is the caller's concern).
// If ready is non-nil, the server's base URL is sent on it once the listener is bound.
func run(ctx context.Context, cfg *config.Config, ready chan<- string) error {
	// Create shared Redis client; pending logins, sessions and the limiter share one pool.
	rdb, err := store.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to set up redis client: %w", err)
	}
	defer rdb.Close()

	rs := store.NewRedisStore(rdb)
	rl := store.NewRedisRateLimiter(rdb)

	// Audit log is optional; without DATABASE_URL events are only logged.
	var auditLog auth.AuditLog = store.NopAuditLog{}
	var ps *store.PostgresStore
	var auditQueue *audit.QueuedLog
	if cfg.DatabaseURL != "" {
		ps, err = store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to set up postgres store: %w", err)
		}
		defer ps.Close()

		migrationsFS, err := fs.Sub(migrationsDir, "migrations")
		if err != nil {
			return fmt.Errorf("failed to access embedded migrations: %w", err)
		}
		if err := ps.Migrate(ctx, migrationsFS); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		// Rows go through a Redis queue so callbacks never wait on Postgres.
		auditQueue = audit.NewQueuedLog(ps, rdb, audit.DefaultMaxQueueSize)
		auditLog = auditQueue
	} else {
		slog.Info("DATABASE_URL not set, audit log disabled")
	}

	// Discovery runs once here; the provider is unusable without it.
	provider, err := oauth.NewOIDCProvider(ctx, oauth.OIDCConfig{
		IssuerURL:    cfg.IssuerURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       cfg.Scopes,
		OrgClaim:     cfg.OrgClaim,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	})
	if err != nil {
		return fmt.Errorf("failed to set up oidc provider: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	svc := auth.NewService(auth.Config{
		RedirectURI:     cfg.RedirectURI,
		SessionSecret:   cfg.SessionSecret,
		StateTTL:        cfg.StateTTL,
		SessionTTL:      cfg.SessionTTL,
		ExchangeTimeout: cfg.ExchangeTimeout,
		SlidingSessions: cfg.SessionSliding,
	}, provider, rs, rs, m)

	h := &auth.AuthHandler{
		Svc:     svc,
		RL:      rl,
		Audit:   auditLog,
		Cache:   rs,
		Cookies: auth.CookieConfig{Secure: cfg.CookieSecure, Domain: cfg.CookieDomain},
		LoginRateLimit: store.RateLimit{
			MaxAttempts: cfg.RateLoginMax,
			Window:      cfg.RateLoginWindow,
			LockoutTTL:  cfg.RateLoginLockout,
		},
		LoginErrorURL:     cfg.LoginErrorURL,
		PostLoginRedirect: cfg.PostLoginRedirect,
	}

	// Bind listener; ":0" picks a free port (useful in tests).
	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	server := &http.Server{
		Handler:           buildRouter(h, metrics.Handler(reg)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Audit retention goroutine; prunes rows older than AuditRetention every 24h.
	// Cancelled via cleanupCtx when run() returns.
	cleanupCtx, cancelCleanup := context.WithCancel(ctx)
	defer cancelCleanup()
	if ps != nil {
		go auditQueue.StartWorker(cleanupCtx)
		go func() {
			ticker := time.NewTicker(24 * time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					n, err := ps.PruneAuditLogs(cleanupCtx, cfg.AuditRetention)
					if err != nil {
						slog.Warn("audit log prune failed", "error", err)
					} else {
						slog.Info("audit log prune complete", "deleted", n)
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	// Start server in a goroutine; run() continues past this.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("styx listening", "addr", ln.Addr().String(), "issuer", cfg.IssuerURL)
		// Send error only if server stops for a reason other than explicit shutdown.
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Signal readiness to caller (used by tests; nil in production).
	if ready != nil {
		ready <- "http://" + ln.Addr().String()
	}

	// Wait for server error or shutdown signal from ctx.
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	// In-flight callbacks get the exchange timeout plus headroom to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

// buildRouter wires all routes and middleware.
// Called from run() and from smoke tests.
func buildRouter(h *auth.AuthHandler, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", h.CheckHealth)
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Get("/login", h.Login)
	r.Get("/callback", h.Callback)
	r.Post("/logout", h.Logout)

	// Authentication required routes
	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Get("/session", h.SessionInfo)
		r.Get("/dashboard", h.Dashboard)
		r.Post("/logout/all", h.LogoutAll)
	})

	return r
}
