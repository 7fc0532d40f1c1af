// errors.go -- Login flow error kinds.
//
// Every failure that crosses the HTTP boundary is one of these four.
// Causes are wrapped underneath for logs; only the kind reaches the client.
package auth

import "errors"

var (
	// ErrInvalidState: state missing, unknown, expired, or already consumed.
	ErrInvalidState = errors.New("invalid state")

	// ErrMissingCode: callback carried no authorization code.
	ErrMissingCode = errors.New("missing authorization code")

	// ErrExchangeFailed: code exchange errored, timed out, or returned unusable claims.
	ErrExchangeFailed = errors.New("code exchange failed")

	// ErrUnauthenticated: no valid, unexpired session for the presented id.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// errStateLookup marks state consumption failures caused by the store.
var errStateLookup = errors.New("state lookup failed")

// errSessionLookup marks guard denials caused by store failures rather than a missing session.
var errSessionLookup = errors.New("session lookup failed")

// ErrorKind maps err to the short code used in ?error= redirects and metrics.
// Returns "" for errors outside the four kinds (internal failures).
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrMissingCode):
		return "missing_code"
	case errors.Is(err, ErrExchangeFailed):
		return "exchange_failed"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	default:
		return ""
	}
}
