// flow.go -- Login flow: redirect, callback, exchange, session.
//
// Per attempt: Initiated -> AwaitingCallback (BeginLogin) -> Exchanging -> Established,
// or Failed from any step after Initiated. Exchanging is only reached after the
// state has been consumed.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/MGallo-Code/styx/internal/metrics"
	"github.com/MGallo-Code/styx/internal/oauth"
	"github.com/MGallo-Code/styx/internal/store"
)

// DefaultExchangeTimeout bounds the provider token call.
const DefaultExchangeTimeout = 10 * time.Second

// Config is passed to NewService. Zero durations take the package defaults.
type Config struct {
	RedirectURI     string
	SessionSecret   []byte
	StateTTL        time.Duration
	SessionTTL      time.Duration
	ExchangeTimeout time.Duration
	SlidingSessions bool
}

// Service composes the login components around one provider.
type Service struct {
	provider        oauth.Provider
	builder         *RequestBuilder
	validator       *CallbackValidator
	establisher     *Establisher
	guard           *Guard
	metrics         *metrics.Metrics
	redirectURI     string
	exchangeTimeout time.Duration
}

// NewService wires the components. m may be nil.
func NewService(cfg Config, p oauth.Provider, pending PendingStore, sessions SessionStore, m *metrics.Metrics) *Service {
	states := NewStateManager(pending, cfg.StateTTL)
	timeout := cfg.ExchangeTimeout
	if timeout <= 0 {
		timeout = DefaultExchangeTimeout
	}
	return &Service{
		provider:    p,
		builder:     NewRequestBuilder(p, states),
		validator:   NewCallbackValidator(states),
		establisher: NewEstablisher(sessions, cfg.SessionSecret, cfg.SessionTTL),
		guard: NewGuard(sessions, cfg.SessionSecret, GuardOptions{
			Sliding: cfg.SlidingSessions,
			TTL:     cfg.SessionTTL,
		}),
		metrics:         m,
		redirectURI:     cfg.RedirectURI,
		exchangeTimeout: timeout,
	}
}

// ProviderName is the configured provider's name.
func (s *Service) ProviderName() string { return s.provider.Name() }

// BeginLogin issues a PendingLogin and returns the provider URL to redirect to.
func (s *Service) BeginLogin(ctx context.Context, organizationHint, returnTo string) (string, error) {
	authURL, _, err := s.builder.Build(ctx, s.redirectURI, organizationHint, returnTo)
	if err != nil {
		return "", err
	}
	s.metrics.LoginStarted()
	return authURL, nil
}

// CompleteLogin validates the callback, exchanges the code under the exchange timeout,
// and establishes a session, rotating previousSessionID if set.
// Errors are ErrInvalidState, ErrMissingCode or ErrExchangeFailed (wrapping the cause),
// or an unclassified error when the session could not be stored.
// If ctx is cancelled before the session is written, no session is created.
func (s *Service) CompleteLogin(ctx context.Context, params CallbackParams, previousSessionID string) (*store.Session, *store.PendingLogin, error) {
	code, pending, err := s.validator.Validate(ctx, params)
	if err != nil {
		s.metrics.CallbackResult(ErrorKind(err))
		return nil, nil, err
	}

	res, err := s.exchange(ctx, code, pending.CodeVerifier)
	if err != nil {
		s.metrics.CallbackResult(ErrorKind(err))
		return nil, pending, err
	}

	if err := ctx.Err(); err != nil {
		s.metrics.CallbackResult("cancelled")
		return nil, pending, fmt.Errorf("%w: request cancelled before session: %w", ErrExchangeFailed, err)
	}

	sess, err := s.establisher.Establish(ctx, res, previousSessionID)
	if err != nil {
		s.metrics.CallbackResult("error")
		return nil, pending, fmt.Errorf("establishing session: %w", err)
	}
	s.metrics.CallbackResult("established")
	return sess, pending, nil
}

// exchange calls the provider with a bounded timeout. Every failure is ErrExchangeFailed.
func (s *Service) exchange(ctx context.Context, code, verifier string) (*oauth.ExchangeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.exchangeTimeout)
	defer cancel()

	start := time.Now()
	res, err := s.provider.Exchange(ctx, code, s.redirectURI, verifier)
	s.metrics.ObserveExchange(s.provider.Name(), time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExchangeFailed, err)
	}
	if res == nil || res.UserID == "" {
		return nil, fmt.Errorf("%w: provider returned no subject", ErrExchangeFailed)
	}
	return res, nil
}

// Check runs the auth guard.
func (s *Service) Check(ctx context.Context, sessionID string) (*store.Session, error) {
	sess, err := s.guard.Check(ctx, sessionID)
	s.metrics.GuardResult(err == nil)
	return sess, err
}

// Logout terminates sessionID and returns the removed session, nil if there was none.
func (s *Service) Logout(ctx context.Context, sessionID string) (*store.Session, error) {
	s.metrics.Logout()
	return s.establisher.terminate(ctx, sessionID)
}

// LogoutAll terminates every session of userID.
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	s.metrics.Logout()
	return s.establisher.TerminateAll(ctx, userID)
}
