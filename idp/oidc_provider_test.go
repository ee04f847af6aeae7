package idp_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-keeper/idp"
	apperrors "github.com/jrsteele09/go-session-keeper/internal/errors"
	"github.com/jrsteele09/go-session-keeper/internal/testutil"
	"github.com/jrsteele09/go-session-keeper/token"
	"github.com/stretchr/testify/require"
)

const (
	testClientID    = "session-keeper-cli"
	testRedirectURI = "http://127.0.0.1:8765/callback"
)

var testScopes = []string{"profile", "api.read"}

type providerFixture struct {
	issuer   *testutil.Issuer
	provider *idp.OIDCProvider
	authURLs []string
	respond  func(authURL string) (idp.AuthorizationResponse, error)
}

func setupProvider(t *testing.T) *providerFixture {
	t.Helper()

	f := &providerFixture{issuer: testutil.NewIssuer(t, testClientID)}
	f.respond = func(authURL string) (idp.AuthorizationResponse, error) {
		code, state, err := f.issuer.Authorize(authURL)
		return idp.AuthorizationResponse{Code: code, State: state}, err
	}

	interactor := idp.InteractorFunc(func(ctx context.Context, authURL string, mode idp.InteractionMode) (idp.AuthorizationResponse, error) {
		f.authURLs = append(f.authURLs, authURL)
		return f.respond(authURL)
	})

	provider, err := idp.NewOIDCProvider(context.Background(), idp.OIDCConfig{
		Issuer:      f.issuer.URL(),
		ClientID:    testClientID,
		RedirectURL: testRedirectURI,
	}, interactor)
	require.NoError(t, err)
	f.provider = provider
	return f
}

func TestNewOIDCProvider(t *testing.T) {
	t.Run("Requires client id", func(t *testing.T) {
		_, err := idp.NewOIDCProvider(context.Background(), idp.OIDCConfig{Issuer: "https://login.example.com"}, idp.InteractorFunc(nil))
		require.ErrorIs(t, err, apperrors.ErrConfiguration)
	})

	t.Run("Requires interactor", func(t *testing.T) {
		_, err := idp.NewOIDCProvider(context.Background(), idp.OIDCConfig{Issuer: "https://login.example.com", ClientID: testClientID}, nil)
		require.ErrorIs(t, err, apperrors.ErrConfiguration)
	})
}

func TestLoginInteractive(t *testing.T) {
	t.Run("Exchanges the code and verifies the id token", func(t *testing.T) {
		f := setupProvider(t)

		tokens, err := f.provider.LoginInteractive(context.Background(), testScopes, idp.Redirect)
		require.NoError(t, err)
		require.NotEmpty(t, tokens.IDToken)
		require.NotEmpty(t, tokens.AccessToken)
		require.Equal(t, 1, f.issuer.Grants("authorization_code"))

		exp, err := token.ExpiresAt(tokens.AccessToken)
		require.NoError(t, err)
		require.True(t, exp.After(time.Now()))

		require.Len(t, f.authURLs, 1)
		u, err := url.Parse(f.authURLs[0])
		require.NoError(t, err)
		q := u.Query()
		require.Equal(t, "openid profile api.read", q.Get("scope"))
		require.Equal(t, "S256", q.Get("code_challenge_method"))
		require.NotEmpty(t, q.Get("nonce"))
		require.Empty(t, q.Get("display"))
	})

	t.Run("Popup mode asks for the popup display", func(t *testing.T) {
		f := setupProvider(t)

		_, err := f.provider.LoginInteractive(context.Background(), testScopes, idp.Popup)
		require.NoError(t, err)

		u, err := url.Parse(f.authURLs[0])
		require.NoError(t, err)
		require.Equal(t, "popup", u.Query().Get("display"))
	})

	t.Run("Rejects a mismatched state", func(t *testing.T) {
		f := setupProvider(t)
		f.respond = func(authURL string) (idp.AuthorizationResponse, error) {
			code, _, err := f.issuer.Authorize(authURL)
			return idp.AuthorizationResponse{Code: code, State: "forged"}, err
		}

		_, err := f.provider.LoginInteractive(context.Background(), testScopes, idp.Redirect)
		require.ErrorIs(t, err, apperrors.ErrStateMismatch)
		require.Zero(t, f.issuer.Grants("authorization_code"))
	})

	t.Run("Surfaces provider errors from the redirect", func(t *testing.T) {
		f := setupProvider(t)
		f.respond = func(string) (idp.AuthorizationResponse, error) {
			return idp.AuthorizationResponse{Error: "access_denied", ErrorDescription: "user cancelled"}, nil
		}

		_, err := f.provider.LoginInteractive(context.Background(), testScopes, idp.Redirect)
		var pe *idp.ProviderError
		require.ErrorAs(t, err, &pe)
		require.Equal(t, "access_denied", pe.Code)
		require.False(t, idp.RequiresInteraction(err))
	})
}

func TestAcquireSilently(t *testing.T) {
	t.Run("Without a provider session interaction is required", func(t *testing.T) {
		f := setupProvider(t)

		_, err := f.provider.AcquireSilently(context.Background(), testScopes)
		require.Error(t, err)
		require.True(t, idp.RequiresInteraction(err))
		require.ErrorIs(t, err, apperrors.ErrInteractionRequired)
	})

	t.Run("Returns the cached tokens while they are fresh", func(t *testing.T) {
		f := setupProvider(t)
		login, err := f.provider.LoginInteractive(context.Background(), testScopes, idp.Redirect)
		require.NoError(t, err)

		tokens, err := f.provider.AcquireSilently(context.Background(), testScopes)
		require.NoError(t, err)
		require.Equal(t, login.AccessToken, tokens.AccessToken)
		require.Equal(t, login.IDToken, tokens.IDToken)
		require.Zero(t, f.issuer.Grants("refresh_token"))
	})

	t.Run("Refreshes expired provider tokens", func(t *testing.T) {
		f := setupProvider(t)
		f.issuer.SetAccessTTL(5 * time.Second)
		login, err := f.provider.LoginInteractive(context.Background(), testScopes, idp.Redirect)
		require.NoError(t, err)

		tokens, err := f.provider.AcquireSilently(context.Background(), testScopes)
		require.NoError(t, err)
		require.NotEqual(t, login.AccessToken, tokens.AccessToken)
		require.Equal(t, 1, f.issuer.Grants("refresh_token"))
	})

	t.Run("Rejected provider refresh requires login", func(t *testing.T) {
		f := setupProvider(t)
		f.issuer.SetAccessTTL(5 * time.Second)
		_, err := f.provider.LoginInteractive(context.Background(), testScopes, idp.Redirect)
		require.NoError(t, err)
		f.issuer.FailRefresh("invalid_grant")

		_, err = f.provider.AcquireSilently(context.Background(), testScopes)
		var pe *idp.ProviderError
		require.ErrorAs(t, err, &pe)
		require.Equal(t, idp.LoginRequired, pe.Code)
		require.True(t, idp.RequiresInteraction(err))
	})

	t.Run("Consent errors keep their code", func(t *testing.T) {
		f := setupProvider(t)
		f.issuer.SetAccessTTL(5 * time.Second)
		_, err := f.provider.LoginInteractive(context.Background(), testScopes, idp.Redirect)
		require.NoError(t, err)
		f.issuer.FailRefresh(idp.ConsentRequired)

		_, err = f.provider.AcquireSilently(context.Background(), testScopes)
		var pe *idp.ProviderError
		require.ErrorAs(t, err, &pe)
		require.Equal(t, idp.ConsentRequired, pe.Code)
	})
}

func TestLogout(t *testing.T) {
	t.Run("Revokes the provider refresh token and drops the session", func(t *testing.T) {
		f := setupProvider(t)
		_, err := f.provider.LoginInteractive(context.Background(), testScopes, idp.Redirect)
		require.NoError(t, err)

		require.NoError(t, f.provider.Logout(context.Background()))
		require.Len(t, f.issuer.Revoked(), 1)

		_, err = f.provider.AcquireSilently(context.Background(), testScopes)
		require.True(t, idp.RequiresInteraction(err))
	})

	t.Run("Without a session there is nothing to revoke", func(t *testing.T) {
		f := setupProvider(t)
		require.NoError(t, f.provider.Logout(context.Background()))
		require.Empty(t, f.issuer.Revoked())
	})
}
