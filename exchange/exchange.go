// Package exchange turns identity-provider tokens into application tokens and
// renews application access tokens from a refresh token.
package exchange

import (
	"context"
	"errors"

	"github.com/jrsteele09/go-session-keeper/idp"
	apperrors "github.com/jrsteele09/go-session-keeper/internal/errors"
)

// Result is what the application backend returns for a successful sign-in.
// RefreshToken is empty when the backend does not issue one.
type Result struct {
	AccessToken  string
	RefreshToken string
	Extras       map[string]any
}

// Exchanger trades the provider's tokens for application tokens
type Exchanger interface {
	OnAuthSuccess(ctx context.Context, idToken, accessToken string) (Result, error)
}

// Refresher mints a new application access token from a refresh token. A
// rejected refresh token is reported with ErrRenewalRejected.
type Refresher interface {
	RefreshAccess(ctx context.Context, refreshToken string) (string, error)
}

// DisplayableError is a login failure phrased for the user
type DisplayableError struct {
	Title   string
	Message string
}

func (e *DisplayableError) Error() string {
	return e.Title + ": " + e.Message
}

// ErrorMapper converts login and exchange failures for display
type ErrorMapper interface {
	OnAuthError(err error) *DisplayableError
}

// ErrorMapperFunc adapts a function to ErrorMapper
type ErrorMapperFunc func(err error) *DisplayableError

func (f ErrorMapperFunc) OnAuthError(err error) *DisplayableError {
	return f(err)
}

// PassThrough uses the provider's access token as the application token. It
// never issues a refresh token, so sessions run in access-only mode.
type PassThrough struct{}

var _ Exchanger = PassThrough{}

func (PassThrough) OnAuthSuccess(_ context.Context, _ string, accessToken string) (Result, error) {
	if accessToken == "" {
		return Result{}, apperrors.ErrInvalidToken
	}
	return Result{AccessToken: accessToken}, nil
}

// DefaultErrorMapper phrases the errors the login flow can produce
var DefaultErrorMapper = ErrorMapperFunc(func(err error) *DisplayableError {
	var pe *idp.ProviderError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &DisplayableError{Title: "Sign-in cancelled", Message: "The sign-in was not completed."}
	case errors.As(err, &pe):
		msg := pe.Description
		if msg == "" {
			msg = pe.Code
		}
		return &DisplayableError{Title: "Sign-in failed", Message: msg}
	case errors.Is(err, apperrors.ErrStateMismatch), errors.Is(err, apperrors.ErrNonceMismatch):
		return &DisplayableError{Title: "Sign-in failed", Message: "The sign-in response could not be trusted. Please try again."}
	case errors.Is(err, apperrors.ErrConfiguration):
		return &DisplayableError{Title: "Configuration error", Message: err.Error()}
	default:
		return &DisplayableError{Title: "Sign-in failed", Message: err.Error()}
	}
})
