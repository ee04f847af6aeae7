package idp

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	apperrors "github.com/jrsteele09/go-session-keeper/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// OIDCConfig identifies the application to the identity provider
type OIDCConfig struct {
	Issuer       string // authority, e.g. https://login.example.com/tenant
	ClientID     string
	ClientSecret string // empty for public clients
	RedirectURL  string
}

// AuthorizationResponse is what the provider sent back to the redirect URI
type AuthorizationResponse struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// Interactor drives the user agent through an authorization request and
// returns the parameters delivered to the redirect URI.
type Interactor interface {
	Authorize(ctx context.Context, authURL string, mode InteractionMode) (AuthorizationResponse, error)
}

// InteractorFunc adapts a function to the Interactor interface
type InteractorFunc func(ctx context.Context, authURL string, mode InteractionMode) (AuthorizationResponse, error)

func (f InteractorFunc) Authorize(ctx context.Context, authURL string, mode InteractionMode) (AuthorizationResponse, error) {
	return f(ctx, authURL, mode)
}

// OIDCProvider implements Provider against an OpenID Connect issuer using the
// authorization code flow with PKCE. The provider session (its refresh token)
// is held in memory and used for silent acquisition.
type OIDCProvider struct {
	config     OIDCConfig
	provider   *oidc.Provider
	verifier   *oidc.IDTokenVerifier
	interactor Interactor
	revokeURL  string
	httpClient *http.Client
	logger     zerolog.Logger

	mu      sync.Mutex
	session *oauth2.Token
	idToken string
}

var _ Provider = (*OIDCProvider)(nil)

type OIDCOption func(*OIDCProvider)

// WithHTTPClient sets the client used for discovery, token and revocation requests
func WithHTTPClient(client *http.Client) OIDCOption {
	return func(p *OIDCProvider) {
		p.httpClient = client
	}
}

func WithLogger(logger zerolog.Logger) OIDCOption {
	return func(p *OIDCProvider) {
		p.logger = logger
	}
}

// NewOIDCProvider discovers the issuer configuration and returns a provider.
func NewOIDCProvider(ctx context.Context, config OIDCConfig, interactor Interactor, options ...OIDCOption) (*OIDCProvider, error) {
	if config.Issuer == "" || config.ClientID == "" {
		return nil, fmt.Errorf("[NewOIDCProvider] issuer and client id are required: %w", apperrors.ErrConfiguration)
	}
	if interactor == nil {
		return nil, fmt.Errorf("[NewOIDCProvider] interactor is required: %w", apperrors.ErrConfiguration)
	}

	p := &OIDCProvider{
		config:     config,
		interactor: interactor,
		httpClient: http.DefaultClient,
		logger:     log.Logger.With().Str("component", "oidc-provider").Logger(),
	}
	for _, opt := range options {
		opt(p)
	}

	provider, err := oidc.NewProvider(p.clientContext(ctx), config.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	p.provider = provider
	p.verifier = provider.Verifier(&oidc.Config{ClientID: config.ClientID})

	var metadata struct {
		RevocationEndpoint string `json:"revocation_endpoint"`
	}
	if err := provider.Claims(&metadata); err == nil {
		p.revokeURL = metadata.RevocationEndpoint
	}
	return p, nil
}

func (p *OIDCProvider) LoginInteractive(ctx context.Context, scopes []string, mode InteractionMode) (Tokens, error) {
	state := randomString(32)
	nonce := randomString(32)
	verifier := oauth2.GenerateVerifier()

	conf := p.oauthConfig(scopes)
	opts := []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(verifier), oidc.Nonce(nonce)}
	if mode == Popup {
		opts = append(opts, oauth2.SetAuthURLParam("display", "popup"))
	}

	resp, err := p.interactor.Authorize(ctx, conf.AuthCodeURL(state, opts...), mode)
	if err != nil {
		return Tokens{}, fmt.Errorf("authorization request: %w", err)
	}
	if resp.Error != "" {
		return Tokens{}, &ProviderError{Code: resp.Error, Description: resp.ErrorDescription}
	}
	if resp.Code == "" {
		return Tokens{}, fmt.Errorf("authorization response carried no code: %w", apperrors.ErrInvalidToken)
	}
	if resp.State != state {
		return Tokens{}, apperrors.ErrStateMismatch
	}

	tok, err := conf.Exchange(p.clientContext(ctx), resp.Code, oauth2.VerifierOption(verifier))
	if err != nil {
		return Tokens{}, providerError(err)
	}

	tokens, err := p.verify(ctx, tok, nonce)
	if err != nil {
		return Tokens{}, err
	}

	p.mu.Lock()
	p.session = tok
	p.idToken = tokens.IDToken
	p.mu.Unlock()
	return tokens, nil
}

func (p *OIDCProvider) AcquireSilently(ctx context.Context, scopes []string) (Tokens, error) {
	p.mu.Lock()
	session, idToken := p.session, p.idToken
	p.mu.Unlock()

	if session == nil || session.RefreshToken == "" {
		return Tokens{}, &ProviderError{Code: LoginRequired, Description: "no provider session"}
	}

	tok, err := p.oauthConfig(scopes).TokenSource(p.clientContext(ctx), session).Token()
	if err != nil {
		return Tokens{}, providerError(err)
	}

	if _, ok := tok.Extra("id_token").(string); !ok {
		return Tokens{IDToken: idToken, AccessToken: tok.AccessToken, Expiry: tok.Expiry}, nil
	}
	tokens, err := p.verify(ctx, tok, "")
	if err != nil {
		return Tokens{}, err
	}

	p.mu.Lock()
	p.session = tok
	p.idToken = tokens.IDToken
	p.mu.Unlock()
	return tokens, nil
}

// Logout drops the provider session and revokes its refresh token when the
// issuer advertises a revocation endpoint. Revocation failures are logged only.
func (p *OIDCProvider) Logout(ctx context.Context) error {
	p.mu.Lock()
	session := p.session
	p.session = nil
	p.idToken = ""
	p.mu.Unlock()

	if session == nil || session.RefreshToken == "" || p.revokeURL == "" {
		return nil
	}

	form := url.Values{}
	form.Set("token", session.RefreshToken)
	form.Set("token_type_hint", "refresh_token")
	form.Set("client_id", p.config.ClientID)
	if p.config.ClientSecret != "" {
		form.Set("client_secret", p.config.ClientSecret)
	}

	resp, err := p.httpClient.PostForm(p.revokeURL, form)
	if err != nil {
		p.logger.Err(err).Str("token_type", "refresh_token").Msg("Failed to revoke token")
		return nil
	}
	resp.Body.Close()
	return nil
}

func (p *OIDCProvider) verify(ctx context.Context, tok *oauth2.Token, nonce string) (Tokens, error) {
	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok {
		return Tokens{}, fmt.Errorf("no id token in response: %w", apperrors.ErrInvalidToken)
	}

	idToken, err := p.verifier.Verify(p.clientContext(ctx), rawIDToken)
	if err != nil {
		return Tokens{}, fmt.Errorf("ID token verification failed: %w", err)
	}
	if nonce != "" && idToken.Nonce != nonce {
		return Tokens{}, apperrors.ErrNonceMismatch
	}

	return Tokens{IDToken: rawIDToken, AccessToken: tok.AccessToken, Expiry: tok.Expiry}, nil
}

func (p *OIDCProvider) oauthConfig(scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.config.ClientID,
		ClientSecret: p.config.ClientSecret,
		Endpoint:     p.provider.Endpoint(),
		RedirectURL:  p.config.RedirectURL,
		Scopes:       withOpenID(scopes),
	}
}

func (p *OIDCProvider) clientContext(ctx context.Context) context.Context {
	return oidc.ClientContext(ctx, p.httpClient)
}

// providerError converts an OAuth2 error response into a ProviderError. An
// invalid_grant on the provider's own refresh token means its session is gone.
func providerError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) || re.ErrorCode == "" {
		return fmt.Errorf("token request: %w", err)
	}
	code := re.ErrorCode
	if code == "invalid_grant" {
		code = LoginRequired
	}
	return &ProviderError{Code: code, Description: re.ErrorDescription}
}

func withOpenID(scopes []string) []string {
	out := []string{oidc.ScopeOpenID}
	for _, s := range scopes {
		if s != oidc.ScopeOpenID && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// randomString creates a random base64url string
func randomString(length int) string {
	b := make([]byte, length)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
