// state.go -- Single-use state tokens for pending logins.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/MGallo-Code/styx/internal/store"
	"golang.org/x/oauth2"
)

// DefaultStateTTL bounds how long a user may sit on the provider's login page.
const DefaultStateTTL = 10 * time.Minute

// PendingStore holds pending logins between redirect and callback.
// Satisfied by *store.RedisStore -- defined here (at consumer) per Go convention.
type PendingStore interface {
	// SavePendingLogin stores p under p.State, expiring after ttl.
	SavePendingLogin(ctx context.Context, p store.PendingLogin, ttl time.Duration) error

	// ConsumePendingLogin atomically reads and deletes the pending login for state.
	// Returns store.ErrNotFound if absent or already consumed.
	ConsumePendingLogin(ctx context.Context, state string) (*store.PendingLogin, error)
}

// StateManager issues and consumes state tokens.
type StateManager struct {
	store PendingStore
	ttl   time.Duration
	now   func() time.Time
}

// NewStateManager returns a manager over ps. A non-positive ttl means DefaultStateTTL.
func NewStateManager(ps PendingStore, ttl time.Duration) *StateManager {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateManager{store: ps, ttl: ttl, now: time.Now}
}

// Issue creates and stores a PendingLogin with a fresh 256-bit state and PKCE verifier.
func (m *StateManager) Issue(ctx context.Context, organizationHint, returnTo string) (*store.PendingLogin, error) {
	state, err := randomToken()
	if err != nil {
		return nil, fmt.Errorf("generating state: %w", err)
	}
	verifier, err := randomToken()
	if err != nil {
		return nil, fmt.Errorf("generating code verifier: %w", err)
	}

	now := m.now()
	p := store.PendingLogin{
		State:            state,
		OrganizationHint: organizationHint,
		CodeVerifier:     verifier,
		ReturnTo:         returnTo,
		CreatedAt:        now,
		ExpiresAt:        now.Add(m.ttl),
	}
	if err := m.store.SavePendingLogin(ctx, p, m.ttl); err != nil {
		return nil, fmt.Errorf("storing pending login: %w", err)
	}
	return &p, nil
}

// Consume removes and returns the PendingLogin for state.
// Fails with ErrInvalidState when state is empty, unknown, already consumed, or expired.
// Store failures are also ErrInvalidState, with the cause wrapped for logging.
func (m *StateManager) Consume(ctx context.Context, state string) (*store.PendingLogin, error) {
	if state == "" {
		return nil, ErrInvalidState
	}

	p, err := m.store.ConsumePendingLogin(ctx, state)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidState
		}
		return nil, fmt.Errorf("%w: %w: %w", ErrInvalidState, errStateLookup, err)
	}

	// Redis TTL normally removes these first; the clock check covers TTL drift and other stores.
	if !m.now().Before(p.ExpiresAt) {
		return nil, fmt.Errorf("%w: pending login expired", ErrInvalidState)
	}
	return p, nil
}

// randomToken returns 32 bytes from crypto/rand, base64url without padding.
func randomToken() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}

// codeChallenge is the PKCE S256 transform of verifier.
func codeChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}
