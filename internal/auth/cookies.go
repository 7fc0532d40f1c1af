// cookies.go

// Session cookie management.
package auth

import (
	"net/http"
	"time"
)

// CookieConfig controls the session cookie.
// With Secure and no Domain the cookie uses the __Host- prefix, which browsers
// only accept over HTTPS with Path=/ and no Domain attribute.
type CookieConfig struct {
	Secure bool
	Domain string
}

// Name returns the session cookie name for this config.
func (c CookieConfig) Name() string {
	switch {
	case c.Secure && c.Domain == "":
		return "__Host-session"
	case c.Secure:
		return "__Secure-session"
	default:
		return "session"
	}
}

// SetSession writes the session cookie: HttpOnly, SameSite=Lax, expiring with the session.
func (c CookieConfig) SetSession(w http.ResponseWriter, sessionID string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name(),
		Value:    sessionID,
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
	})
}

// ClearSession overwrites the session cookie with MaxAge=-1 to trigger browser deletion.
func (c CookieConfig) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name(),
		Value:    "",
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// SessionID reads the session id from r, "" if absent.
func (c CookieConfig) SessionID(r *http.Request) string {
	ck, err := r.Cookie(c.Name())
	if err != nil {
		return ""
	}
	return ck.Value
}
