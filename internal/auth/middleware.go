// middleware.go

// Session authentication middleware.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MGallo-Code/styx/internal/store"
)

// contextKey is unexported to prevent collisions with other packages using the same context.
type contextKey string

const sessionCtxKey contextKey = "session"

// SessionFromContext retrieves the authenticated session.
// Returns nil and false if RequireAuth hasn't run.
func SessionFromContext(ctx context.Context) (*store.Session, bool) {
	sess, ok := ctx.Value(sessionCtxKey).(*store.Session)
	return sess, ok && sess != nil
}

// RequireAuth runs the auth guard on the session cookie.
// On success the session is injected into context. On failure, browser page loads are
// redirected to LoginErrorURL?error=unauthenticated and everything else gets 401 JSON.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := h.Svc.Check(r.Context(), h.Cookies.SessionID(r))
		if err != nil {
			if errors.Is(err, errSessionLookup) {
				logError(r, "require auth failed", "error", err)
			} else {
				logDebug(r, "require auth failed", "error", err)
			}
			if wantsHTML(r) {
				RedirectWithError(w, r, h.LoginErrorURL, ErrorKind(ErrUnauthenticated))
				return
			}
			Unauthorized(w, "unauthorized")
			return
		}

		// Keep the browser cookie alive as long as the sliding session.
		if sess.Extended {
			h.Cookies.SetSession(w, sess.ID, sess.ExpiresAt)
		}

		ctx := context.WithValue(r.Context(), sessionCtxKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// wantsHTML reports whether r looks like a top-level browser navigation.
func wantsHTML(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
