// guard.go -- Session check used by every protected route.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MGallo-Code/styx/internal/store"
)

// GuardOptions configures Guard.
type GuardOptions struct {
	// Sliding extends a session to now+TTL on each successful Check.
	// Off by default; with it off Check never writes.
	Sliding bool

	// TTL is the sliding extension. Non-positive means DefaultSessionTTL.
	TTL time.Duration
}

// Guard checks that a session id names a live session.
type Guard struct {
	store SessionStore
	keys  sessionKeys
	opts  GuardOptions
	now   func() time.Time
}

func NewGuard(ss SessionStore, secret []byte, opts GuardOptions) *Guard {
	if opts.TTL <= 0 {
		opts.TTL = DefaultSessionTTL
	}
	return &Guard{store: ss, keys: sessionKeys{secret: secret}, opts: opts, now: time.Now}
}

// Check returns the session for sessionID, or ErrUnauthenticated if the id is
// empty, unknown, or expired. Store failures also deny, wrapped with errSessionLookup.
func (g *Guard) Check(ctx context.Context, sessionID string) (*store.Session, error) {
	if sessionID == "" {
		return nil, ErrUnauthenticated
	}
	key := g.keys.key(sessionID)

	sess, err := g.store.GetSession(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("%w: %w: %w", ErrUnauthenticated, errSessionLookup, err)
	}

	now := g.now()
	if !now.Before(sess.ExpiresAt) {
		return nil, ErrUnauthenticated
	}
	sess.ID = sessionID

	if g.opts.Sliding {
		extended := *sess
		extended.ExpiresAt = now.Add(g.opts.TTL)
		if extended.ExpiresAt.After(sess.ExpiresAt) {
			err := g.store.UpdateSession(ctx, key, extended, g.opts.TTL)
			switch {
			case errors.Is(err, store.ErrNotFound):
				// Terminated between read and write.
				return nil, ErrUnauthenticated
			case err != nil:
				slog.Warn("sliding session extension failed", "record_id", sess.RecordID, "error", err)
			default:
				sess = &extended
				sess.Extended = true
			}
		}
	}
	return sess, nil
}
