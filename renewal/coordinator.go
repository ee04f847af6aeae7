// Package renewal owns every write to the token store: establishing a session
// after login, renewing the access token and tearing the session down.
package renewal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-keeper/exchange"
	"github.com/jrsteele09/go-session-keeper/idp"
	apperrors "github.com/jrsteele09/go-session-keeper/internal/errors"
	"github.com/jrsteele09/go-session-keeper/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// renewTimeout bounds a shared renewal once no caller can cancel it
const renewTimeout = 30 * time.Second

// Deps are the collaborators of a Coordinator. Refresher may be nil, in which
// case sessions carrying a refresh token are rejected.
type Deps struct {
	Store     token.Store
	Provider  idp.Provider
	Refresher exchange.Refresher
}

// Coordinator renews tokens and guards the store against writes that would
// outlive a logout.
type Coordinator struct {
	store     token.Store
	provider  idp.Provider
	refresher exchange.Refresher
	scopes    []string
	mode      idp.InteractionMode
	logger    zerolog.Logger
	group     singleflight.Group

	mu         sync.Mutex
	active     bool
	generation uint64
}

type Option func(*Coordinator)

func WithScopes(scopes []string) Option {
	return func(c *Coordinator) {
		c.scopes = scopes
	}
}

// WithInteractionMode sets how interactive fallbacks are presented
func WithInteractionMode(mode idp.InteractionMode) Option {
	return func(c *Coordinator) {
		c.mode = mode
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func New(deps Deps, options ...Option) (*Coordinator, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("[renewal.New] token store is required: %w", apperrors.ErrConfiguration)
	}
	if deps.Provider == nil {
		return nil, fmt.Errorf("[renewal.New] identity provider is required: %w", apperrors.ErrConfiguration)
	}

	c := &Coordinator{
		store:     deps.Store,
		provider:  deps.Provider,
		refresher: deps.Refresher,
		mode:      idp.Redirect,
		logger:    log.Logger.With().Str("component", "renewal").Logger(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// SupportsRenewal reports whether a refresh operation was supplied
func (c *Coordinator) SupportsRenewal() bool {
	return c.refresher != nil
}

// Scopes are the scopes requested from the identity provider
func (c *Coordinator) Scopes() []string {
	return c.scopes
}

// Mode is the interaction mode used for interactive sign-in
func (c *Coordinator) Mode() idp.InteractionMode {
	return c.mode
}

// Establish replaces whatever is stored with a freshly issued session. Slots
// are overwritten in place so a concurrent reader never sees an empty store.
func (c *Coordinator) Establish(access, refresh string) error {
	if refresh != "" && c.refresher == nil {
		return fmt.Errorf("refresh token issued without a refresh operation: %w", apperrors.ErrConfiguration)
	}
	if access == "" && refresh == "" {
		return fmt.Errorf("no tokens to establish: %w", apperrors.ErrInvalidToken)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Set(token.Access, access); err != nil {
		return fmt.Errorf("storing access token: %w", err)
	}
	if err := c.store.Set(token.Refresh, refresh); err != nil {
		return fmt.Errorf("storing refresh token: %w", err)
	}
	c.active = true
	c.generation++
	c.logger.Info().Bool("refresh", refresh != "").Msg("Session established")
	return nil
}

// Resume marks a session restored from persisted tokens as active.
func (c *Coordinator) Resume() error {
	if raw, err := c.store.Get(token.Refresh); err == nil && raw != "" && c.refresher == nil {
		return fmt.Errorf("stored refresh token without a refresh operation: %w", apperrors.ErrConfiguration)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = true
	c.generation++
	return nil
}

// ClearSession removes every stored token. Renewals still in flight will not
// write their result afterwards.
func (c *Coordinator) ClearSession() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.active = false
	c.generation++
	if err := c.store.ClearAll(); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// Active reports whether a session is established
func (c *Coordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// RenewAccessToken exchanges the stored refresh token for a new access token
// and stores it. Concurrent callers share one request; each caller stops
// waiting when its own ctx ends while the shared request carries on. The error
// wraps ErrRenewalRejected when the refresh token is no longer accepted, and
// ErrRenewalFailed for failures worth retrying.
func (c *Coordinator) RenewAccessToken(ctx context.Context) (string, error) {
	results := c.group.DoChan(token.Access.String(), func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), renewTimeout)
		defer cancel()
		return c.renew(shared)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			c.logger.Debug().Msg("Joined in-flight access token renewal")
		}
		return res.Val.(string), nil
	}
}

func (c *Coordinator) renew(ctx context.Context) (string, error) {
	if c.refresher == nil {
		return "", apperrors.ErrRenewalUnsupported
	}

	c.mu.Lock()
	active, generation := c.active, c.generation
	c.mu.Unlock()
	if !active {
		return "", apperrors.ErrSessionInactive
	}

	refresh, err := c.store.Get(token.Refresh)
	if err != nil || refresh == "" {
		return "", fmt.Errorf("%w: no refresh token stored", apperrors.ErrRenewalRejected)
	}

	access, err := c.refresher.RefreshAccess(ctx, refresh)
	if err != nil {
		if !errors.Is(err, apperrors.ErrRenewalRejected) && !errors.Is(err, apperrors.ErrRenewalFailed) {
			err = fmt.Errorf("%w: %v", apperrors.ErrRenewalFailed, err)
		}
		c.logger.Warn().Err(err).Msg("Access token renewal failed")
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active || c.generation != generation {
		c.logger.Debug().Msg("Discarding renewed access token for an ended session")
		return "", apperrors.ErrSessionInactive
	}
	if err := c.store.Set(token.Access, access); err != nil {
		return "", fmt.Errorf("%w: storing access token: %v", apperrors.ErrRenewalFailed, err)
	}
	c.logger.Info().Msg("Access token renewed")
	return access, nil
}

// MintApplicationTokens asks the identity provider for tokens silently and
// falls back to an interactive sign-in when the provider requires one.
func (c *Coordinator) MintApplicationTokens(ctx context.Context) (idp.Tokens, error) {
	tokens, err := c.provider.AcquireSilently(ctx, c.scopes)
	if err == nil {
		return tokens, nil
	}
	if !idp.RequiresInteraction(err) {
		return idp.Tokens{}, err
	}

	c.logger.Info().Err(err).Str("mode", c.mode.String()).Msg("Silent acquisition needs interaction")
	tokens, err = c.provider.LoginInteractive(ctx, c.scopes, c.mode)
	if err != nil {
		return idp.Tokens{}, fmt.Errorf("interactive acquisition: %w", err)
	}
	return tokens, nil
}
