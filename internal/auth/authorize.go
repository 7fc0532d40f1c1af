// authorize.go -- Builds the outbound authorization redirect.
package auth

import (
	"context"
	"net/url"
	"strings"

	"github.com/MGallo-Code/styx/internal/oauth"
	"github.com/MGallo-Code/styx/internal/store"
)

// RequestBuilder pairs a fresh PendingLogin with the provider's authorize URL.
type RequestBuilder struct {
	provider oauth.Provider
	states   *StateManager
}

func NewRequestBuilder(p oauth.Provider, states *StateManager) *RequestBuilder {
	return &RequestBuilder{provider: p, states: states}
}

// Build issues one PendingLogin and returns the provider URL that carries its state.
// returnTo is filtered through SafeReturnTo before it is stored.
func (b *RequestBuilder) Build(ctx context.Context, redirectURI, organizationHint, returnTo string) (string, *store.PendingLogin, error) {
	p, err := b.states.Issue(ctx, organizationHint, SafeReturnTo(returnTo))
	if err != nil {
		return "", nil, err
	}

	authURL := b.provider.AuthCodeURL(oauth.AuthRequest{
		RedirectURI:      redirectURI,
		State:            p.State,
		OrganizationHint: organizationHint,
		CodeChallenge:    codeChallenge(p.CodeVerifier),
	})
	return authURL, p, nil
}

// SafeReturnTo returns raw's path and query if raw is a same-origin relative path,
// otherwise "". Rejects scheme-relative ("//host") and backslash tricks.
func SafeReturnTo(raw string) string {
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
		return ""
	}
	if strings.ContainsAny(raw, "\\\r\n") {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	return u.RequestURI()
}
