// stores.go
//
// Shared mock implementations of the auth package's store interfaces and oauth.Provider.
// Imported by test files across packages to avoid duplicate mock definitions.
package testutil

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/MGallo-Code/styx/internal/oauth"
	"github.com/MGallo-Code/styx/internal/store"
)

// MockPendingStore implements auth.PendingStore for tests.
// Always stateful...Pending is a map, like Redis. Consume is atomic under mu.
// Use *Err fields to inject errors for specific operations.
type MockPendingStore struct {
	// Error injection...zero value means no error
	SaveErr    error
	ConsumeErr error

	Pending map[string]store.PendingLogin // keyed by state

	mu sync.Mutex
}

// NewMockPendingStore returns an empty MockPendingStore ready for use.
func NewMockPendingStore() *MockPendingStore {
	return &MockPendingStore{Pending: make(map[string]store.PendingLogin)}
}

func (m *MockPendingStore) SavePendingLogin(_ context.Context, p store.PendingLogin, _ time.Duration) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Pending == nil {
		m.Pending = make(map[string]store.PendingLogin)
	}
	m.Pending[p.State] = p
	return nil
}

func (m *MockPendingStore) ConsumePendingLogin(_ context.Context, state string) (*store.PendingLogin, error) {
	if m.ConsumeErr != nil {
		return nil, m.ConsumeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Pending[state]
	if !ok {
		return nil, store.ErrNotFound
	}
	delete(m.Pending, state)
	return &p, nil
}

// Len returns the number of pending logins still stored.
func (m *MockPendingStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Pending)
}

// MockSessionStore implements auth.SessionStore for tests.
// Always stateful...Sessions is a map keyed by the derived store key.
type MockSessionStore struct {
	// Error injection...zero value means no error
	SetErr    error
	UpdateErr error
	GetErr    error
	DeleteErr error

	Sessions map[string]store.Session

	UpdateCalls int

	mu sync.Mutex
}

// NewMockSessionStore returns an empty MockSessionStore ready for use.
func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{Sessions: make(map[string]store.Session)}
}

func (m *MockSessionStore) SetSession(_ context.Context, key string, s store.Session, _ time.Duration) error {
	if m.SetErr != nil {
		return m.SetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Sessions == nil {
		m.Sessions = make(map[string]store.Session)
	}
	s.ID = ""
	m.Sessions[key] = s
	return nil
}

func (m *MockSessionStore) UpdateSession(_ context.Context, key string, s store.Session, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCalls++
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	if _, ok := m.Sessions[key]; !ok {
		return store.ErrNotFound
	}
	s.ID = ""
	m.Sessions[key] = s
	return nil
}

func (m *MockSessionStore) GetSession(_ context.Context, key string) (*store.Session, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Sessions[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

func (m *MockSessionStore) DeleteSession(_ context.Context, key string, _ string) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Sessions, key)
	return nil
}

// DeleteAllUserSessions removes every stored session whose UserID matches.
func (m *MockSessionStore) DeleteAllUserSessions(_ context.Context, userID string) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, s := range m.Sessions {
		if s.UserID == userID {
			delete(m.Sessions, k)
		}
	}
	return nil
}

// CheckHealth always succeeds unless GetErr is set.
func (m *MockSessionStore) CheckHealth(_ context.Context) error {
	return m.GetErr
}

// Len returns the number of stored sessions.
func (m *MockSessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sessions)
}

// MockRateLimiter implements auth.RateLimiter for tests.
// AllowErr is returned from every call; Keys records what was checked.
type MockRateLimiter struct {
	AllowErr error
	Keys     []string

	mu sync.Mutex
}

func (m *MockRateLimiter) Allow(_ context.Context, key string, _ store.RateLimit) error {
	m.mu.Lock()
	m.Keys = append(m.Keys, key)
	m.mu.Unlock()
	return m.AllowErr
}

// MockAuditLog implements auth.AuditLog for tests and records every entry.
type MockAuditLog struct {
	InsertErr error
	HealthErr error

	Entries []store.AuditEntry

	mu sync.Mutex
}

func (m *MockAuditLog) InsertAuditLog(_ context.Context, entry store.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, entry)
	return m.InsertErr
}

func (m *MockAuditLog) CheckHealth(_ context.Context) error {
	return m.HealthErr
}

// Actions returns the recorded actions in order.
func (m *MockAuditLog) Actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Entries))
	for i, e := range m.Entries {
		out[i] = e.Action
	}
	return out
}

// ErrInvalidGrant is returned by MockProvider.Exchange for codes not in Codes.
var ErrInvalidGrant = errors.New("invalid_grant")

// MockProvider implements oauth.Provider for tests.
// AuthCodeURL encodes the request as query params on AuthURL so tests can read them back.
// Exchange returns Result for any code in Codes (or any code if Codes is nil).
type MockProvider struct {
	AuthURL     string
	Result      *oauth.ExchangeResult
	ExchangeErr error
	Codes       map[string]bool
	// Delay blocks Exchange until it elapses or ctx is done.
	Delay time.Duration

	ExchangeCalls int
	LastCode      string
	LastVerifier  string

	mu sync.Mutex
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) AuthCodeURL(req oauth.AuthRequest) string {
	base := m.AuthURL
	if base == "" {
		base = "https://idp.test/authorize"
	}
	q := url.Values{}
	q.Set("redirect_uri", req.RedirectURI)
	q.Set("state", req.State)
	q.Set("code_challenge", req.CodeChallenge)
	q.Set("code_challenge_method", "S256")
	if req.OrganizationHint != "" {
		q.Set("organization_id", req.OrganizationHint)
	}
	return base + "?" + q.Encode()
}

func (m *MockProvider) Exchange(ctx context.Context, code, _ string, codeVerifier string) (*oauth.ExchangeResult, error) {
	m.mu.Lock()
	m.ExchangeCalls++
	m.LastCode = code
	m.LastVerifier = codeVerifier
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.ExchangeErr != nil {
		return nil, m.ExchangeErr
	}
	if m.Codes != nil && !m.Codes[code] {
		return nil, ErrInvalidGrant
	}
	res := *m.Result
	return &res, nil
}

// Calls returns how many times Exchange ran.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ExchangeCalls
}
