// callback.go -- Validates the provider's redirect back to us.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/MGallo-Code/styx/internal/store"
)

// CallbackParams is the untrusted query of GET /callback.
// Error and ErrorDescription carry an OAuth error response (e.g. access_denied).
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// CallbackParamsFromQuery reads the callback parameters from q.
func CallbackParamsFromQuery(q url.Values) CallbackParams {
	return CallbackParams{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}
}

// CallbackValidator turns CallbackParams into a code that is safe to exchange.
type CallbackValidator struct {
	states *StateManager
}

func NewCallbackValidator(states *StateManager) *CallbackValidator {
	return &CallbackValidator{states: states}
}

// Validate returns the authorization code and the consumed PendingLogin.
// Missing code fails ErrMissingCode before state is looked at; the state, if any,
// is still burned so the attempt cannot be resumed. Otherwise the state is consumed
// and the code is returned only if consumption succeeded, so each issued login
// yields at most one code.
func (v *CallbackValidator) Validate(ctx context.Context, p CallbackParams) (string, *store.PendingLogin, error) {
	if p.Code == "" {
		if p.State != "" {
			// Unknown or expired is fine here; only store failures are worth a log line.
			if _, err := v.states.Consume(ctx, p.State); errors.Is(err, errStateLookup) {
				slog.Warn("burning state after missing code failed", "error", err)
			}
		}
		if p.Error != "" {
			return "", nil, fmt.Errorf("%w: provider returned error %q", ErrMissingCode, p.Error)
		}
		return "", nil, ErrMissingCode
	}

	pending, err := v.states.Consume(ctx, p.State)
	if err != nil {
		return "", nil, err
	}
	return p.Code, pending, nil
}
