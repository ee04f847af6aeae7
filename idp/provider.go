package idp

import (
	"context"
	"strings"
	"time"
)

// Tokens are the credentials minted by the identity provider for the application.
type Tokens struct {
	IDToken     string
	AccessToken string
	Expiry      time.Time
}

// InteractionMode is the host's declared capability for interactive sign-in.
// It is decided once at startup rather than inferred from the runtime.
type InteractionMode string

const (
	// Popup completes sign-in in a secondary window without leaving the app.
	Popup InteractionMode = "popup"

	// Redirect navigates the user agent away to the provider and back.
	Redirect InteractionMode = "redirect"
)

// ParseInteractionMode maps a config value to a mode, defaulting to Redirect
func ParseInteractionMode(s string) InteractionMode {
	if InteractionMode(strings.ToLower(strings.TrimSpace(s))) == Popup {
		return Popup
	}
	return Redirect
}

// Provider is the identity provider collaborator.
type Provider interface {
	// LoginInteractive signs the user in with the provider UI
	LoginInteractive(ctx context.Context, scopes []string, mode InteractionMode) (Tokens, error)

	// AcquireSilently mints tokens from an existing provider session. It returns
	// a *ProviderError whose code is in the interaction family when the user
	// must be involved.
	AcquireSilently(ctx context.Context, scopes []string) (Tokens, error)

	// Logout ends the provider session
	Logout(ctx context.Context) error
}

func (m InteractionMode) String() string {
	return string(m)
}
