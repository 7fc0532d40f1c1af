// models.go -- Shared domain types for the store package.
// Used by Redis (pending logins, sessions, rate limits) and Postgres (audit log).
package store

import (
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
)

// ErrNotFound is returned when a pending login or session key is absent.
// Redis TTL expiry and explicit deletion look the same to callers.
var ErrNotFound = errors.New("not found")

// ErrRateLimitExceeded is returned by Allow when the caller is locked out.
// Callers use errors.Is to distinguish rate limit rejections from Redis failures.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// ErrAuditDisabled is returned by NopAuditLog.CheckHealth when Postgres is not configured.
var ErrAuditDisabled = errors.New("audit log disabled")

// PendingLogin is one in-flight authorization request, keyed by its state token.
// Lives in Redis under pending_login:<state> until consumed or expired.
type PendingLogin struct {
	State            string    `json:"state"`
	OrganizationHint string    `json:"organization_hint,omitempty"`
	CodeVerifier     string    `json:"code_verifier"`
	ReturnTo         string    `json:"return_to,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// Session is an authenticated browser session.
// ID is the opaque value handed to the client; it is never persisted in clear,
// the store keys records by an HMAC of it instead.
type Session struct {
	ID             string    `json:"-"`
	RecordID       uuid.UUID `json:"record_id"`
	UserID         string    `json:"user_id"`
	Email          string    `json:"email"`
	OrganizationID string    `json:"organization_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`

	// Extended is set when a sliding check pushed ExpiresAt out. Not persisted.
	Extended bool `json:"-"`
}

// RateLimit defines the policy for a rate-limited action.
// All three fields required, zero values disable the respective behaviour.
type RateLimit struct {
	MaxAttempts int           // attempts allowed within Window before lockout
	Window      time.Duration // rolling window for attempt counting
	LockoutTTL  time.Duration // how long to block after MaxAttempts is hit
}

// AuditEntry represents a row in the audit_logs table.
// UserID is nil for pre-auth failures where no user is identified.
// Metadata holds optional event context as a raw JSON blob (e.g. record_id, error kind).
type AuditEntry struct {
	UserID    *string
	Action    string
	IPAddress *string
	UserAgent *string
	Metadata  []byte
}
