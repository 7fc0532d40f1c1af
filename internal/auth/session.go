// session.go

// Session establishment and termination.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/MGallo-Code/styx/internal/oauth"
	"github.com/MGallo-Code/styx/internal/store"
	"github.com/gofrs/uuid/v5"
)

// DefaultSessionTTL is the lifetime of a new session.
const DefaultSessionTTL = 24 * time.Hour

// SessionStore persists sessions by key.
// Satisfied by *store.RedisStore -- defined here (at consumer) per Go convention.
type SessionStore interface {
	// SetSession stores s under key, expiring after ttl.
	SetSession(ctx context.Context, key string, s store.Session, ttl time.Duration) error

	// UpdateSession rewrites an existing session; store.ErrNotFound if it is gone.
	UpdateSession(ctx context.Context, key string, s store.Session, ttl time.Duration) error

	// GetSession returns the session for key, or store.ErrNotFound.
	GetSession(ctx context.Context, key string) (*store.Session, error)

	// DeleteSession removes the session; absent is not an error.
	DeleteSession(ctx context.Context, key string, userID string) error

	// DeleteAllUserSessions removes every session belonging to userID.
	DeleteAllUserSessions(ctx context.Context, userID string) error
}

// sessionKeys derives store keys from client-held session ids.
// Keys are HMAC-SHA256(secret, id) so a leaked store cannot be replayed as cookies.
type sessionKeys struct {
	secret []byte
}

func (k sessionKeys) key(sessionID string) string {
	mac := hmac.New(sha256.New, k.secret)
	mac.Write([]byte(sessionID))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Establisher creates and removes sessions.
type Establisher struct {
	store SessionStore
	keys  sessionKeys
	ttl   time.Duration
	now   func() time.Time
}

// NewEstablisher returns an Establisher. A non-positive ttl means DefaultSessionTTL.
func NewEstablisher(ss SessionStore, secret []byte, ttl time.Duration) *Establisher {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Establisher{store: ss, keys: sessionKeys{secret: secret}, ttl: ttl, now: time.Now}
}

// Establish stores a new session for res and returns it with its client-facing ID set.
// A non-empty previousSessionID is terminated first, so a login always rotates the id.
func (e *Establisher) Establish(ctx context.Context, res *oauth.ExchangeResult, previousSessionID string) (*store.Session, error) {
	if previousSessionID != "" {
		if _, err := e.terminate(ctx, previousSessionID); err != nil {
			return nil, fmt.Errorf("rotating previous session: %w", err)
		}
	}

	id, err := randomToken()
	if err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}
	recordID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating session record id: %w", err)
	}

	now := e.now()
	sess := store.Session{
		ID:             id,
		RecordID:       recordID,
		UserID:         res.UserID,
		Email:          res.Email,
		OrganizationID: res.OrganizationID,
		CreatedAt:      now,
		ExpiresAt:      now.Add(e.ttl),
	}
	if err := e.store.SetSession(ctx, e.keys.key(id), sess, e.ttl); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}
	return &sess, nil
}

// Terminate removes the session for sessionID. Idempotent.
func (e *Establisher) Terminate(ctx context.Context, sessionID string) error {
	_, err := e.terminate(ctx, sessionID)
	return err
}

// TerminateAll removes every session held by userID, on any device.
func (e *Establisher) TerminateAll(ctx context.Context, userID string) error {
	if err := e.store.DeleteAllUserSessions(ctx, userID); err != nil {
		return fmt.Errorf("deleting user sessions: %w", err)
	}
	return nil
}

// terminate deletes the session and returns what was removed (nil if nothing was).
func (e *Establisher) terminate(ctx context.Context, sessionID string) (*store.Session, error) {
	if sessionID == "" {
		return nil, nil
	}
	key := e.keys.key(sessionID)

	sess, err := e.store.GetSession(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("looking up session: %w", err)
	}
	if err := e.store.DeleteSession(ctx, key, sess.UserID); err != nil {
		return nil, fmt.Errorf("deleting session: %w", err)
	}
	sess.ID = sessionID
	return sess, nil
}
