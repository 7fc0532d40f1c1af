// handler.go -- HTTP handlers for logout, session info, and the protected landing page.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/MGallo-Code/styx/internal/store"
)

// RateLimiter checks and records rate limit state for a given key and policy.
// Satisfied by *store.RedisRateLimiter -- defined here per Go convention.
type RateLimiter interface {
	// Allow records an attempt. Returns store.ErrRateLimitExceeded when over policy.
	Allow(ctx context.Context, key string, policy store.RateLimit) error
}

// AuditLog records security events.
// Satisfied by *store.PostgresStore and store.NopAuditLog.
type AuditLog interface {
	InsertAuditLog(ctx context.Context, entry store.AuditEntry) error
	CheckHealth(ctx context.Context) error
}

// HealthChecker is a dependency that can be pinged.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// AuthHandler holds dependencies for the login endpoints and RequireAuth.
type AuthHandler struct {
	Svc   *Service
	RL    RateLimiter
	Audit AuditLog
	Cache HealthChecker // session store, reported by /health

	Cookies        CookieConfig
	LoginRateLimit store.RateLimit

	// LoginErrorURL receives ?error=<kind> on failures and is the post-logout landing page.
	LoginErrorURL string
	// PostLoginRedirect is used when the login carried no return path.
	PostLoginRedirect string
}

// Logout handles POST /logout -- removes the session if there is one, clears the cookie,
// and redirects to the login page. Succeeds whether or not a session existed.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := h.Cookies.SessionID(r)

	removed, err := h.Svc.Logout(r.Context(), sessionID)
	if err != nil {
		InternalServerError(w, r, fmt.Errorf("logout: %w", err))
		return
	}
	h.Cookies.ClearSession(w)

	if removed != nil {
		h.auditLog(r, &removed.UserID, "user.logout", marshalMeta(struct {
			RecordID string `json:"record_id"`
		}{removed.RecordID.String()}))
		logInfo(r, "user logged out", "user_id", removed.UserID, "record_id", removed.RecordID)
	} else {
		logDebug(r, "logout without active session")
	}

	http.Redirect(w, r, h.LoginErrorURL, http.StatusSeeOther)
}

// LogoutAll handles POST /logout/all -- signs the user out on every device.
// Must run behind RequireAuth.
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		Unauthorized(w, "unauthorized")
		return
	}

	if err := h.Svc.LogoutAll(r.Context(), sess.UserID); err != nil {
		InternalServerError(w, r, fmt.Errorf("logout all: %w", err))
		return
	}
	h.Cookies.ClearSession(w)

	h.auditLog(r, &sess.UserID, "user.logout_all", nil)
	logInfo(r, "user logged out everywhere", "user_id", sess.UserID)

	http.Redirect(w, r, h.LoginErrorURL, http.StatusSeeOther)
}

// SessionInfo handles GET /session -- returns the authenticated identity as JSON.
// Must run behind RequireAuth.
func (h *AuthHandler) SessionInfo(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		Unauthorized(w, "unauthorized")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(struct {
		UserID         string    `json:"user_id"`
		Email          string    `json:"email"`
		OrganizationID string    `json:"organization_id"`
		ExpiresAt      time.Time `json:"expires_at"`
	}{sess.UserID, sess.Email, sess.OrganizationID, sess.ExpiresAt.UTC()})
}

// Dashboard handles GET /dashboard -- the protected landing page.
// Must run behind RequireAuth.
func (h *AuthHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		Unauthorized(w, "unauthorized")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "Welcome, %s!", sess.Email)
}

// auditLog writes an audit row. Failures are logged and never fail the request.
func (h *AuthHandler) auditLog(r *http.Request, userID *string, action string, meta []byte) {
	if h.Audit == nil {
		return
	}
	ip := clientIP(r)
	ua := r.UserAgent()
	err := h.Audit.InsertAuditLog(r.Context(), store.AuditEntry{
		UserID:    userID,
		Action:    action,
		IPAddress: &ip,
		UserAgent: &ua,
		Metadata:  meta,
	})
	if err != nil {
		logWarn(r, "audit log write failed", "action", action, "error", err)
	}
}

// marshalMeta encodes audit metadata; nil on failure.
func marshalMeta(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// clientIP strips the port from RemoteAddr (already rewritten by middleware.RealIP).
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
