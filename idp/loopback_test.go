package idp_test

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-keeper/idp"
	apperrors "github.com/jrsteele09/go-session-keeper/internal/errors"
	"github.com/jrsteele09/go-session-keeper/internal/testutil"
	"github.com/stretchr/testify/require"
)

// freeRedirectURL returns a loopback callback URL on a currently unused port
func freeRedirectURL(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return fmt.Sprintf("http://%s/callback", addr)
}

func callback(redirect, query string) error {
	resp, err := http.Get(redirect + "?" + query)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func TestLoopbackInteractor(t *testing.T) {
	t.Run("Returns the code delivered to the callback", func(t *testing.T) {
		redirect := freeRedirectURL(t)
		var opened string
		l := &idp.LoopbackInteractor{
			RedirectURL: redirect,
			Open: func(authURL string) error {
				opened = authURL
				return callback(redirect, "code=abc&state=xyz")
			},
		}

		resp, err := l.Authorize(context.Background(), "https://login.example.com/authorize?x=1", idp.Redirect)
		require.NoError(t, err)
		require.Equal(t, "https://login.example.com/authorize?x=1", opened)
		require.Equal(t, "abc", resp.Code)
		require.Equal(t, "xyz", resp.State)
	})

	t.Run("Returns provider errors", func(t *testing.T) {
		redirect := freeRedirectURL(t)
		l := &idp.LoopbackInteractor{
			RedirectURL: redirect,
			Open: func(string) error {
				return callback(redirect, "error=interaction_required&error_description=prompt")
			},
		}

		resp, err := l.Authorize(context.Background(), "https://login.example.com/authorize", idp.Popup)
		require.NoError(t, err)
		require.Equal(t, idp.InteractionRequired, resp.Error)
		require.Equal(t, "prompt", resp.ErrorDescription)
	})

	t.Run("Honours cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		l := &idp.LoopbackInteractor{
			RedirectURL: freeRedirectURL(t),
			Open: func(string) error {
				cancel()
				return nil
			},
		}

		_, err := l.Authorize(ctx, "https://login.example.com/authorize", idp.Redirect)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("Times out without a response", func(t *testing.T) {
		l := &idp.LoopbackInteractor{
			RedirectURL: freeRedirectURL(t),
			Open:        func(string) error { return nil },
			Timeout:     50 * time.Millisecond,
		}

		_, err := l.Authorize(context.Background(), "https://login.example.com/authorize", idp.Redirect)
		require.Error(t, err)
	})

	t.Run("Requires an opener", func(t *testing.T) {
		l := &idp.LoopbackInteractor{RedirectURL: "http://127.0.0.1:0/callback"}
		_, err := l.Authorize(context.Background(), "https://login.example.com/authorize", idp.Redirect)
		require.ErrorIs(t, err, apperrors.ErrConfiguration)
	})

	t.Run("Drives a full sign-in against an issuer", func(t *testing.T) {
		issuer := testutil.NewIssuer(t, testClientID)
		redirect := freeRedirectURL(t)

		l := &idp.LoopbackInteractor{
			RedirectURL: redirect,
			Open: func(authURL string) error {
				code, state, err := issuer.Authorize(authURL)
				if err != nil {
					return err
				}
				return callback(redirect, fmt.Sprintf("code=%s&state=%s", code, state))
			},
		}

		provider, err := idp.NewOIDCProvider(context.Background(), idp.OIDCConfig{
			Issuer:      issuer.URL(),
			ClientID:    testClientID,
			RedirectURL: redirect,
		}, l)
		require.NoError(t, err)

		tokens, err := provider.LoginInteractive(context.Background(), testScopes, idp.Redirect)
		require.NoError(t, err)
		require.NotEmpty(t, tokens.AccessToken)
	})
}
