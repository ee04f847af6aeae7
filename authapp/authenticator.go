// Package authapp is the host-facing surface of the session keeper. It decides
// what to do with persisted tokens at startup, runs the sign-in flow and
// exposes either the authenticated or the landing view.
package authapp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/jrsteele09/go-session-keeper/exchange"
	"github.com/jrsteele09/go-session-keeper/idp"
	apperrors "github.com/jrsteele09/go-session-keeper/internal/errors"
	"github.com/jrsteele09/go-session-keeper/notify"
	"github.com/jrsteele09/go-session-keeper/renewal"
	"github.com/jrsteele09/go-session-keeper/session"
	"github.com/jrsteele09/go-session-keeper/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Deps are the collaborators of an Authenticator. Refresher is optional;
// without it every session runs in access-only mode. ErrorMapper defaults to
// exchange.DefaultErrorMapper.
type Deps struct {
	Store       token.Store
	Provider    idp.Provider
	Exchanger   exchange.Exchanger
	Refresher   exchange.Refresher
	ErrorMapper exchange.ErrorMapper
	Gateway     notify.Gateway
}

// Config is fixed for the lifetime of an Authenticator
type Config struct {
	Scopes   []string
	Mode     idp.InteractionMode
	Settings session.Settings
}

// Authenticator wires the token store, renewal coordinator and session
// monitor together behind the operations a host application calls.
type Authenticator struct {
	store       token.Store
	provider    idp.Provider
	exchanger   exchange.Exchanger
	mapper      exchange.ErrorMapper
	calculator  *token.Calculator
	coordinator *renewal.Coordinator
	monitor     *session.Monitor
	logger      zerolog.Logger

	mu      sync.Mutex
	loading bool
	lastErr *exchange.DisplayableError
	extras  map[string]any
}

type Option func(*options)

type options struct {
	clock  clockwork.Clock
	logger zerolog.Logger
}

// WithClock sets the clock for expiry arithmetic and the monitor timers
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithLogger sets the base logger; each component adds its own name
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func New(deps Deps, cfg Config, opts ...Option) (*Authenticator, error) {
	if deps.Exchanger == nil {
		return nil, fmt.Errorf("[authapp.New] exchanger is required: %w", apperrors.ErrConfiguration)
	}
	if deps.ErrorMapper == nil {
		deps.ErrorMapper = exchange.DefaultErrorMapper
	}
	if cfg.Settings == (session.Settings{}) {
		cfg.Settings = session.DefaultSettings()
	}

	o := options{
		clock:  clockwork.NewRealClock(),
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(&o)
	}

	coordinator, err := renewal.New(renewal.Deps{
		Store:     deps.Store,
		Provider:  deps.Provider,
		Refresher: deps.Refresher,
	},
		renewal.WithScopes(cfg.Scopes),
		renewal.WithInteractionMode(cfg.Mode),
		renewal.WithLogger(o.logger.With().Str("component", "renewal").Logger()),
	)
	if err != nil {
		return nil, err
	}

	a := &Authenticator{
		store:       deps.Store,
		provider:    deps.Provider,
		exchanger:   deps.Exchanger,
		mapper:      deps.ErrorMapper,
		calculator:  token.NewCalculator(deps.Store, token.WithNowFunc(o.clock.Now)),
		coordinator: coordinator,
		logger:      o.logger.With().Str("component", "authapp").Logger(),
	}

	monitorDeps := session.Deps{
		Calculator:      a.calculator,
		Clearer:         coordinator,
		Gateway:         deps.Gateway,
		Reauthenticator: extender{a},
	}
	if coordinator.SupportsRenewal() {
		monitorDeps.Renewer = coordinator
	}
	a.monitor, err = session.NewMonitor(monitorDeps,
		session.WithClock(o.clock),
		session.WithSettings(cfg.Settings),
		session.WithLogger(o.logger.With().Str("component", "session-monitor").Logger()),
		session.WithExpiredHook(a.dropExtras),
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Start restores a session from persisted tokens. A valid access token
// resumes even when its refresh token has expired, which is then dropped.
// Otherwise stale token sets are cleared and the Authenticator stays
// unauthenticated; only configuration problems are returned.
func (a *Authenticator) Start(ctx context.Context) error {
	access, refresh := a.stored(token.Access), a.stored(token.Refresh)
	if refresh != "" && !a.coordinator.SupportsRenewal() {
		return fmt.Errorf("stored refresh token without a refresh operation: %w", apperrors.ErrConfiguration)
	}

	accessValid := access != "" && a.calculator.Remaining(token.Access) > 0
	refreshValid := refresh != "" && a.calculator.Remaining(token.Refresh) > 0

	switch {
	case refreshValid && accessValid:
		return a.resume(session.RefreshMode)

	case refreshValid:
		if err := a.coordinator.Resume(); err != nil {
			return err
		}
		if _, err := a.coordinator.RenewAccessToken(ctx); err != nil {
			if errors.Is(err, apperrors.ErrRenewalRejected) {
				a.logger.Info().Err(err).Msg("Stored refresh token rejected, signing out")
				return a.coordinator.ClearSession()
			}
			a.logger.Warn().Err(err).Msg("Startup renewal failed, retrying at first check")
		}
		return a.monitor.Start(session.RefreshMode)

	case accessValid && refresh != "":
		a.logger.Info().Msg("Stored refresh token has expired, continuing with the access token")
		if err := a.coordinator.Establish(access, ""); err != nil {
			return err
		}
		return a.monitor.Start(session.AccessOnly)

	case accessValid:
		return a.resume(session.AccessOnly)

	case access != "" || refresh != "":
		a.logger.Info().Msg("Stored session has expired")
		return a.coordinator.ClearSession()
	}

	a.logger.Debug().Msg("No stored session")
	return nil
}

func (a *Authenticator) resume(mode session.Mode) error {
	if err := a.coordinator.Resume(); err != nil {
		return err
	}
	a.logger.Info().Str("mode", mode.String()).Msg("Resuming stored session")
	return a.monitor.Start(mode)
}

// TriggerLogin runs the interactive sign-in and arms the monitor for the new
// session. A failure is kept for the landing view as well as returned.
func (a *Authenticator) TriggerLogin(ctx context.Context) error {
	a.mu.Lock()
	a.loading = true
	a.lastErr = nil
	a.mu.Unlock()

	mode, err := a.signIn(ctx)
	if err == nil {
		a.monitor.Stop()
		err = a.monitor.Start(mode)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.loading = false
	if err != nil {
		a.logger.Warn().Err(err).Msg("Sign-in failed")
		a.lastErr = a.mapper.OnAuthError(err)
		if a.lastErr == nil {
			return err
		}
		return a.lastErr
	}
	a.logger.Info().Str("mode", mode.String()).Msg("Signed in")
	return nil
}

// signIn is the full login pipeline: provider sign-in, application token
// minting, the backend exchange and finally the store write.
func (a *Authenticator) signIn(ctx context.Context) (session.Mode, error) {
	login, err := a.provider.LoginInteractive(ctx, a.coordinator.Scopes(), a.coordinator.Mode())
	if err != nil {
		return session.AccessOnly, fmt.Errorf("provider sign-in: %w", err)
	}

	minted, err := a.coordinator.MintApplicationTokens(ctx)
	if err != nil {
		return session.AccessOnly, fmt.Errorf("acquiring application tokens: %w", err)
	}
	idToken := minted.IDToken
	if idToken == "" {
		idToken = login.IDToken
	}

	result, err := a.exchanger.OnAuthSuccess(ctx, idToken, minted.AccessToken)
	if err != nil {
		return session.AccessOnly, fmt.Errorf("token exchange: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return session.AccessOnly, err
	}
	if err := a.coordinator.Establish(result.AccessToken, result.RefreshToken); err != nil {
		return session.AccessOnly, err
	}

	a.mu.Lock()
	a.extras = result.Extras
	a.mu.Unlock()

	if result.RefreshToken != "" {
		return session.RefreshMode, nil
	}
	return session.AccessOnly, nil
}

// extender runs the sign-in behind a warning's extend intent. It is called
// from the monitor's own worker, so it never restarts the monitor.
type extender struct {
	a *Authenticator
}

var _ session.Reauthenticator = extender{}

func (e extender) Reauthenticate(ctx context.Context) error {
	mode, err := e.a.signIn(ctx)
	if err != nil {
		if d := e.a.mapper.OnAuthError(err); d != nil {
			return d
		}
		return err
	}
	if mode != e.a.monitor.State().Mode {
		e.a.logger.Warn().Str("mode", mode.String()).Msg("Extended session changed mode")
	}
	return nil
}

// GetToken returns the stored access token, renewing it first when it has
// expired and a refresh token is available.
func (a *Authenticator) GetToken(ctx context.Context) (string, error) {
	if !a.coordinator.Active() {
		return "", apperrors.ErrNotAuthenticated
	}
	if a.calculator.Remaining(token.Access) <= 0 && a.coordinator.SupportsRenewal() && a.stored(token.Refresh) != "" {
		return a.RefreshAccessToken(ctx)
	}
	access := a.stored(token.Access)
	if access == "" {
		return "", apperrors.ErrNotAuthenticated
	}
	return access, nil
}

// Expired reports which stored tokens have no time left
type Expired struct {
	Access  bool
	Refresh bool
}

func (a *Authenticator) IsTokenExpired() Expired {
	return Expired{
		Access:  a.calculator.Remaining(token.Access) <= 0,
		Refresh: a.calculator.Remaining(token.Refresh) <= 0,
	}
}

// RefreshAccessToken renews the access token on demand. A rejected refresh
// token ends the session the same way the monitor would.
func (a *Authenticator) RefreshAccessToken(ctx context.Context) (string, error) {
	if !a.coordinator.Active() {
		return "", apperrors.ErrNotAuthenticated
	}
	access, err := a.coordinator.RenewAccessToken(ctx)
	if errors.Is(err, apperrors.ErrRenewalRejected) {
		if ferr := a.ForceExpire(); ferr != nil {
			a.logger.Err(ferr).Msg("Failed to expire session after rejected renewal")
		}
	}
	return access, err
}

// ForceExpire ends the session immediately with the terminal notice
func (a *Authenticator) ForceExpire() error {
	err := a.monitor.ForceExpire()
	if errors.Is(err, apperrors.ErrSessionInactive) && a.coordinator.Active() {
		a.dropExtras()
		return a.coordinator.ClearSession()
	}
	return err
}

// Logout stops the monitor, clears every stored token and ends the provider
// session.
func (a *Authenticator) Logout(ctx context.Context) error {
	a.monitor.Stop()
	if err := a.coordinator.ClearSession(); err != nil {
		return err
	}
	a.dropExtras()
	a.logger.Info().Msg("Signed out")
	if err := a.provider.Logout(ctx); err != nil {
		return fmt.Errorf("provider logout: %w", err)
	}
	return nil
}

// Close stops the monitor and leaves stored tokens in place
func (a *Authenticator) Close() {
	a.monitor.Stop()
}

// State returns the monitor's view of the session
func (a *Authenticator) State() session.State {
	return a.monitor.State()
}

// Authenticated reports whether a session is established
func (a *Authenticator) Authenticated() bool {
	return a.coordinator.Active()
}

// Components returns the remaining time of a stored token as minutes and seconds
func (a *Authenticator) Components(kind token.Kind) (minutes, seconds int) {
	return a.calculator.Components(kind)
}

func (a *Authenticator) stored(kind token.Kind) string {
	raw, err := a.store.Get(kind)
	if err != nil {
		if !errors.Is(err, apperrors.ErrTokenNotFound) {
			a.logger.Warn().Err(err).Str("token", kind.String()).Msg("Failed to read stored token")
		}
		return ""
	}
	return raw
}

func (a *Authenticator) dropExtras() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.extras = nil
}
