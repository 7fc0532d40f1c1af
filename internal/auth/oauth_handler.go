// oauth_handler.go -- Login redirect and provider callback handlers.
package auth

import (
	"errors"
	"net/http"

	"github.com/MGallo-Code/styx/internal/store"
)

// Login handles GET /login?organization_id=&redirect= -- stores a pending login and
// redirects the browser to the provider. Rate limited per client IP.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.RL != nil {
		if err := h.RL.Allow(r.Context(), "login:"+clientIP(r), h.LoginRateLimit); err != nil {
			if errors.Is(err, store.ErrRateLimitExceeded) {
				logWarn(r, "login rate limited")
				TooManyRequests(w)
				return
			}
			// Limiter outage should not lock everyone out.
			logError(r, "login rate limit check failed", "error", err)
		}
	}

	q := r.URL.Query()
	authURL, err := h.Svc.BeginLogin(r.Context(), q.Get("organization_id"), q.Get("redirect"))
	if err != nil {
		InternalServerError(w, r, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback handles GET /callback?code=&state= -- validates state, exchanges the code,
// rotates any existing session, and sets the new session cookie.
// Failures redirect to LoginErrorURL with ?error=<kind>; details stay in the logs.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	params := CallbackParamsFromQuery(r.URL.Query())
	previous := h.Cookies.SessionID(r)

	sess, pending, err := h.Svc.CompleteLogin(r.Context(), params, previous)
	if err != nil {
		kind := ErrorKind(err)
		if kind == "" {
			InternalServerError(w, r, err)
			return
		}
		logWarn(r, "login callback failed", "kind", kind, "provider", h.Svc.ProviderName(), "error", err)
		h.auditLog(r, nil, "login.failed", marshalMeta(struct {
			Kind     string `json:"kind"`
			Provider string `json:"provider"`
		}{kind, h.Svc.ProviderName()}))
		RedirectWithError(w, r, h.LoginErrorURL, kind)
		return
	}

	h.Cookies.SetSession(w, sess.ID, sess.ExpiresAt)
	h.auditLog(r, &sess.UserID, "user.login", marshalMeta(struct {
		RecordID       string `json:"record_id"`
		OrganizationID string `json:"organization_id,omitempty"`
		Provider       string `json:"provider"`
		Rotated        bool   `json:"rotated"`
	}{sess.RecordID.String(), sess.OrganizationID, h.Svc.ProviderName(), previous != ""}))
	logInfo(r, "user logged in", "user_id", sess.UserID, "record_id", sess.RecordID, "organization_id", sess.OrganizationID)

	dest := h.PostLoginRedirect
	if pending.ReturnTo != "" {
		dest = pending.ReturnTo
	}
	http.Redirect(w, r, dest, http.StatusFound)
}
