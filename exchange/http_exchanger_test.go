package exchange_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-keeper/exchange"
	"github.com/jrsteele09/go-session-keeper/idp"
	apperrors "github.com/jrsteele09/go-session-keeper/internal/errors"
	"github.com/jrsteele09/go-session-keeper/internal/testutil"
	"github.com/stretchr/testify/require"
)

const testClientID = "session-keeper-cli"

type backend struct {
	server       *httptest.Server
	mu           sync.Mutex
	accessToken  string
	refreshToken string
	exchangeCode int
	refreshCode  int
	refreshError string
	gotAuth      string
	gotRequest   map[string]string
	gotRefresh   string
}

func setupBackend(t *testing.T) *backend {
	t.Helper()

	b := &backend{
		accessToken:  testutil.MintTokenIn(time.Now(), time.Hour),
		refreshToken: testutil.MintTokenIn(time.Now(), 24*time.Hour),
		exchangeCode: http.StatusOK,
		refreshCode:  http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /session", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&b.gotRequest)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(b.exchangeCode)
		if b.exchangeCode != http.StatusOK {
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "user not provisioned"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  b.accessToken,
			"refresh_token": b.refreshToken,
			"extras":        map[string]any{"displayName": "John Doe"},
		})
	})
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		_ = r.ParseForm()
		b.gotRefresh = r.PostForm.Get("refresh_token")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(b.refreshCode)
		if b.refreshCode != http.StatusOK {
			_ = json.NewEncoder(w).Encode(map[string]string{"error": b.refreshError})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "renewed-access",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	b.server = httptest.NewServer(mux)
	t.Cleanup(b.server.Close)
	return b
}

func (b *backend) update(fn func(b *backend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

func (b *backend) exchanger(t *testing.T, withRefresh bool) *exchange.HTTPExchanger {
	t.Helper()
	cfg := exchange.HTTPConfig{ExchangeURL: b.server.URL + "/session", ClientID: testClientID}
	if withRefresh {
		cfg.RefreshURL = b.server.URL + "/token"
	}
	e, err := exchange.NewHTTPExchanger(cfg, exchange.WithHTTPClient(b.server.Client()))
	require.NoError(t, err)
	return e
}

func TestNewHTTPExchanger(t *testing.T) {
	_, err := exchange.NewHTTPExchanger(exchange.HTTPConfig{})
	require.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestOnAuthSuccess(t *testing.T) {
	t.Run("Returns application tokens and extras", func(t *testing.T) {
		b := setupBackend(t)
		e := b.exchanger(t, true)

		result, err := e.OnAuthSuccess(context.Background(), "id-token", "idp-access")
		require.NoError(t, err)
		b.update(func(b *backend) {
			require.Equal(t, b.accessToken, result.AccessToken)
			require.Equal(t, b.refreshToken, result.RefreshToken)
			require.Equal(t, "Bearer idp-access", b.gotAuth)
			require.Equal(t, "id-token", b.gotRequest["id_token"])
		})
		require.Equal(t, "John Doe", result.Extras["displayName"])
	})

	t.Run("Reports backend errors", func(t *testing.T) {
		b := setupBackend(t)
		b.update(func(b *backend) { b.exchangeCode = http.StatusForbidden })
		e := b.exchanger(t, false)

		_, err := e.OnAuthSuccess(context.Background(), "id-token", "idp-access")
		require.ErrorContains(t, err, "user not provisioned")
	})

	t.Run("Requires an access token in the response", func(t *testing.T) {
		b := setupBackend(t)
		b.update(func(b *backend) { b.accessToken = "" })
		e := b.exchanger(t, false)

		_, err := e.OnAuthSuccess(context.Background(), "id-token", "idp-access")
		require.ErrorIs(t, err, apperrors.ErrInvalidToken)
	})
}

func TestRefreshAccess(t *testing.T) {
	t.Run("Returns the renewed access token", func(t *testing.T) {
		b := setupBackend(t)
		e := b.exchanger(t, true)
		require.True(t, e.SupportsRenewal())

		access, err := e.RefreshAccess(context.Background(), "refresh-1")
		require.NoError(t, err)
		require.Equal(t, "renewed-access", access)
		b.update(func(b *backend) { require.Equal(t, "refresh-1", b.gotRefresh) })
	})

	t.Run("Rejected refresh token", func(t *testing.T) {
		b := setupBackend(t)
		b.update(func(b *backend) {
			b.refreshCode = http.StatusBadRequest
			b.refreshError = "invalid_grant"
		})
		e := b.exchanger(t, true)

		_, err := e.RefreshAccess(context.Background(), "refresh-1")
		require.ErrorIs(t, err, apperrors.ErrRenewalRejected)
	})

	t.Run("Server failures are not rejections", func(t *testing.T) {
		b := setupBackend(t)
		b.update(func(b *backend) {
			b.refreshCode = http.StatusServiceUnavailable
			b.refreshError = "temporarily_unavailable"
		})
		e := b.exchanger(t, true)

		_, err := e.RefreshAccess(context.Background(), "refresh-1")
		require.ErrorIs(t, err, apperrors.ErrRenewalFailed)
		require.False(t, errors.Is(err, apperrors.ErrRenewalRejected))
	})

	t.Run("Without a refresh endpoint", func(t *testing.T) {
		b := setupBackend(t)
		e := b.exchanger(t, false)
		require.False(t, e.SupportsRenewal())

		_, err := e.RefreshAccess(context.Background(), "refresh-1")
		require.ErrorIs(t, err, apperrors.ErrRenewalUnsupported)
	})
}

func TestPassThrough(t *testing.T) {
	result, err := exchange.PassThrough{}.OnAuthSuccess(context.Background(), "id", "access")
	require.NoError(t, err)
	require.Equal(t, "access", result.AccessToken)
	require.Empty(t, result.RefreshToken)

	_, err = exchange.PassThrough{}.OnAuthSuccess(context.Background(), "id", "")
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestDefaultErrorMapper(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		title string
	}{
		{"Provider error", &idp.ProviderError{Code: "access_denied", Description: "denied"}, "Sign-in failed"},
		{"Cancelled", context.Canceled, "Sign-in cancelled"},
		{"State mismatch", apperrors.ErrStateMismatch, "Sign-in failed"},
		{"Configuration", apperrors.ErrConfiguration, "Configuration error"},
		{"Other", errors.New("boom"), "Sign-in failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := exchange.DefaultErrorMapper.OnAuthError(tt.err)
			require.NotNil(t, d)
			require.Equal(t, tt.title, d.Title)
			require.NotEmpty(t, d.Message)
		})
	}

	require.Nil(t, exchange.DefaultErrorMapper.OnAuthError(nil))
}
