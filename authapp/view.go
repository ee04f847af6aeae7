package authapp

import (
	"maps"

	"github.com/jrsteele09/go-session-keeper/exchange"
	"github.com/jrsteele09/go-session-keeper/session"
)

// View is what the host renders: an AuthenticatedView or a LandingView
type View interface {
	isView()
}

// AuthenticatedView is shown while a session is established
type AuthenticatedView struct {
	Extras map[string]any
	State  session.State
}

// LandingView is shown while signed out
type LandingView struct {
	Loading bool
	Error   *exchange.DisplayableError
}

func (AuthenticatedView) isView() {}
func (LandingView) isView() {}

func (a *Authenticator) View() View {
	if a.coordinator.Active() {
		a.mu.Lock()
		extras := maps.Clone(a.extras)
		a.mu.Unlock()
		return AuthenticatedView{Extras: extras, State: a.monitor.State()}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return LandingView{Loading: a.loading, Error: a.lastErr}
}

// Loading reports whether a sign-in is in progress
func (a *Authenticator) Loading() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loading
}
