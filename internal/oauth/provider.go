// provider.go -- OAuth provider interface and shared types.
package oauth

import "context"

// AuthRequest is everything needed to build one authorization redirect.
// OrganizationHint is optional; empty means the parameter is omitted.
type AuthRequest struct {
	RedirectURI      string
	State            string
	OrganizationHint string
	CodeChallenge    string // PKCE S256 challenge
}

// ExchangeResult holds the identity claims returned by a successful code exchange.
// Only trusted once Exchange has returned without error.
type ExchangeResult struct {
	UserID         string // provider "sub"
	Email          string
	OrganizationID string
	RawClaims      map[string]any
}

// Provider is the identity provider boundary.
// Implementations own the provider's authorize URL format, the token endpoint call,
// and ID token verification. Callers never see tokens.
type Provider interface {
	// Name identifies the provider in logs, metrics and audit rows.
	Name() string

	// AuthCodeURL returns the provider authorization URL for req.
	// Must be deterministic for a given req.
	AuthCodeURL(req AuthRequest) string

	// Exchange trades code for verified identity claims.
	// redirectURI and codeVerifier must match the values used for the authorization request.
	Exchange(ctx context.Context, code, redirectURI, codeVerifier string) (*ExchangeResult, error)
}
