package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jrsteele09/go-session-keeper/authapp"
	"github.com/jrsteele09/go-session-keeper/exchange"
	"github.com/jrsteele09/go-session-keeper/idp"
	"github.com/jrsteele09/go-session-keeper/internal/config"
	"github.com/jrsteele09/go-session-keeper/notify"
	"github.com/jrsteele09/go-session-keeper/session"
	"github.com/jrsteele09/go-session-keeper/token"
	"github.com/jrsteele09/go-session-keeper/token/boltstore"
	"github.com/jrsteele09/go-session-keeper/token/sealedstore"
	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
)

const storeFile = "tokens.db"

// openStore returns the configured token store and a func releasing it
func openStore(c config.Config) (token.Store, func(), error) {
	if c.GetStore() != config.StoreBolt {
		return sealedstore.New(), func() {}, nil
	}

	key, err := c.GetStoreKey()
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(c.GetDataFolder(), 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	var options []boltstore.Option
	if key != nil {
		options = append(options, boltstore.WithKey(key))
	}
	path := filepath.Join(c.GetDataFolder(), storeFile)
	store, err := boltstore.NewFromFile(path, &bbolt.Options{Timeout: time.Second}, options...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open token store %s: %w", path, err)
	}
	return store, func() {
		if err := store.Close(); err != nil {
			log.Err(err).Msg("Failed to close token store")
		}
	}, nil
}

// newExchanger picks the application backend. Without an exchange URL the
// provider's access token is used directly and no refresh is possible.
func newExchanger(c config.Config) (exchange.Exchanger, exchange.Refresher, error) {
	if c.GetExchangeURL() == "" {
		return exchange.PassThrough{}, nil, nil
	}
	e, err := exchange.NewHTTPExchanger(exchange.HTTPConfig{
		ExchangeURL: c.GetExchangeURL(),
		RefreshURL:  c.GetRefreshURL(),
		ClientID:    c.GetClientID(),
	})
	if err != nil {
		return nil, nil, err
	}
	if !e.SupportsRenewal() {
		return e, nil, nil
	}
	return e, e, nil
}

func newProvider(ctx context.Context, c config.Config) (*idp.OIDCProvider, error) {
	interactor := &idp.LoopbackInteractor{
		RedirectURL: c.GetRedirectURI(),
		Open: func(authURL string) error {
			fmt.Printf("\nOpen this URL in your browser to sign in:\n\n  %s\n\n", authURL)
			return nil
		},
	}
	return idp.NewOIDCProvider(ctx, idp.OIDCConfig{
		Issuer:       c.GetAuthority(),
		ClientID:     c.GetClientID(),
		ClientSecret: c.GetClientSecret(),
		RedirectURL:  c.GetRedirectURI(),
	}, interactor)
}

// newAuthenticator wires the full keeper. The returned func stops the
// monitor and releases the store.
func newAuthenticator(ctx context.Context, c config.Config, gateway notify.Gateway) (*authapp.Authenticator, func(), error) {
	if err := config.Validate(c); err != nil {
		return nil, nil, err
	}

	store, closeStore, err := openStore(c)
	if err != nil {
		return nil, nil, err
	}
	provider, err := newProvider(ctx, c)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	exchanger, refresher, err := newExchanger(c)
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	app, err := authapp.New(authapp.Deps{
		Store:     store,
		Provider:  provider,
		Exchanger: exchanger,
		Refresher: refresher,
		Gateway:   gateway,
	}, authapp.Config{
		Scopes: c.GetScopes(),
		Mode:   idp.ParseInteractionMode(c.GetInteractionMode()),
		Settings: session.Settings{
			CheckInterval:    c.GetCheckInterval(),
			WarningThreshold: c.GetWarningThreshold(),
			CountdownTick:    c.GetCountdownTick(),
		},
	})
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return app, func() {
		app.Close()
		closeStore()
	}, nil
}
