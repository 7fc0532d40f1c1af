// oidc.go -- Generic OpenID Connect provider (discovery + OAuth2 code flow + PKCE).
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// ErrNoIDToken is returned when the token response carries no id_token.
var ErrNoIDToken = errors.New("no id_token in token response")

// DefaultOrgClaim is the ID token claim read for the organization id when
// OIDCConfig.OrgClaim is empty.
const DefaultOrgClaim = "oid"

// fallbackOrgClaims are tried in order when the configured claim is absent.
var fallbackOrgClaims = []string{"org_id", "organization_id"}

// OIDCConfig configures an OIDCProvider. All fields except Scopes, OrgClaim
// and HTTPClient are required.
type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	Scopes       []string
	OrgClaim     string
	// HTTPClient is used for discovery, JWKS and token calls. nil means http.DefaultClient.
	HTTPClient *http.Client
}

// OIDCProvider implements Provider against any OIDC-compliant issuer.
// Uses PKCE (S256) for all authorization requests.
type OIDCProvider struct {
	config   oauth2.Config
	verifier *oidc.IDTokenVerifier
	orgClaim string
	client   *http.Client
}

// NewOIDCProvider fetches the issuer's discovery document and builds a provider.
// Makes an outbound HTTP request at startup; returns an error if the issuer is unreachable.
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig) (*OIDCProvider, error) {
	if cfg.HTTPClient != nil {
		ctx = oidc.ClientContext(ctx, cfg.HTTPClient)
	}
	p, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile"}
	}
	orgClaim := cfg.OrgClaim
	if orgClaim == "" {
		orgClaim = DefaultOrgClaim
	}

	return &OIDCProvider{
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     p.Endpoint(),
			Scopes:       scopes,
		},
		verifier: p.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		orgClaim: orgClaim,
		client:   cfg.HTTPClient,
	}, nil
}

// Name returns "oidc".
func (p *OIDCProvider) Name() string { return "oidc" }

// AuthCodeURL builds the authorize URL with client_id, redirect_uri, response_type=code,
// scope, state, PKCE S256 challenge, and organization_id when a hint is given.
func (p *OIDCProvider) AuthCodeURL(req AuthRequest) string {
	cfg := p.config
	cfg.RedirectURL = req.RedirectURI

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", req.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	}
	if req.OrganizationHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("organization_id", req.OrganizationHint))
	}
	return cfg.AuthCodeURL(req.State, opts...)
}

// Exchange trades an authorization code for verified identity claims.
// Verifies the returned ID token signature against the issuer's JWKS and checks iss, aud, exp.
func (p *OIDCProvider) Exchange(ctx context.Context, code, redirectURI, codeVerifier string) (*ExchangeResult, error) {
	if p.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	}
	cfg := p.config
	cfg.RedirectURL = redirectURI

	token, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, fmt.Errorf("exchanging code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, ErrNoIDToken
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("verifying id token: %w", err)
	}

	var raw map[string]any
	if err := idToken.Claims(&raw); err != nil {
		return nil, fmt.Errorf("extracting id token claims: %w", err)
	}

	email, _ := raw["email"].(string)
	return &ExchangeResult{
		UserID:         idToken.Subject,
		Email:          email,
		OrganizationID: p.organizationID(raw),
		RawClaims:      raw,
	}, nil
}

// organizationID reads the configured org claim, then the common fallbacks.
func (p *OIDCProvider) organizationID(claims map[string]any) string {
	if v, ok := claims[p.orgClaim].(string); ok && v != "" {
		return v
	}
	for _, name := range fallbackOrgClaims {
		if v, ok := claims[name].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
