package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/jrsteele09/go-session-keeper/internal/errors"
	"github.com/jrsteele09/go-session-keeper/internal/utils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// HTTPConfig locates the application backend
type HTTPConfig struct {
	ExchangeURL string // receives the provider tokens after sign-in
	RefreshURL  string // OAuth2 token endpoint accepting refresh_token grants
	ClientID    string
}

// HTTPExchanger talks to the application backend over HTTP. Sign-in results
// are exchanged with a JSON POST; refreshes use a standard refresh_token grant.
type HTTPExchanger struct {
	config     HTTPConfig
	refresh    *oauth2.Config
	httpClient *http.Client
	logger     zerolog.Logger
}

var (
	_ Exchanger = (*HTTPExchanger)(nil)
	_ Refresher = (*HTTPExchanger)(nil)
)

type HTTPOption func(*HTTPExchanger)

func WithHTTPClient(client *http.Client) HTTPOption {
	return func(e *HTTPExchanger) {
		e.httpClient = client
	}
}

func WithLogger(logger zerolog.Logger) HTTPOption {
	return func(e *HTTPExchanger) {
		e.logger = logger
	}
}

func NewHTTPExchanger(config HTTPConfig, options ...HTTPOption) (*HTTPExchanger, error) {
	if config.ExchangeURL == "" {
		return nil, fmt.Errorf("[NewHTTPExchanger] exchange url is required: %w", apperrors.ErrConfiguration)
	}

	e := &HTTPExchanger{
		config:     config,
		httpClient: http.DefaultClient,
		logger:     log.Logger.With().Str("component", "exchange").Logger(),
	}
	for _, opt := range options {
		opt(e)
	}

	if config.RefreshURL != "" {
		e.refresh = &oauth2.Config{
			ClientID: config.ClientID,
			Endpoint: oauth2.Endpoint{
				TokenURL:  config.RefreshURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		}
	}
	return e, nil
}

// SupportsRenewal reports whether a refresh endpoint was configured
func (e *HTTPExchanger) SupportsRenewal() bool {
	return e.refresh != nil
}

type exchangeRequest struct {
	IDToken     string `json:"id_token"`
	AccessToken string `json:"access_token"`
}

type exchangeResponse struct {
	AccessToken  *string        `json:"access_token,omitempty"`
	RefreshToken *string        `json:"refresh_token,omitempty"`
	Extras       map[string]any `json:"extras,omitempty"`
	Error        *string        `json:"error,omitempty"`
}

func (e *HTTPExchanger) OnAuthSuccess(ctx context.Context, idToken, accessToken string) (Result, error) {
	body, err := json.Marshal(exchangeRequest{IDToken: idToken, AccessToken: accessToken})
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.ExchangeURL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("building exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("exchange request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("reading exchange response: %w", err)
	}

	var out exchangeResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil && resp.StatusCode == http.StatusOK {
			return Result{}, fmt.Errorf("decoding exchange response: %w", err)
		}
	}

	if resp.StatusCode != http.StatusOK {
		msg := utils.Value(out.Error)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		e.logger.Warn().Int("status", resp.StatusCode).Str("error", msg).Msg("Token exchange rejected")
		return Result{}, fmt.Errorf("token exchange failed (%d): %s", resp.StatusCode, msg)
	}

	access := utils.Value(out.AccessToken)
	if access == "" {
		return Result{}, fmt.Errorf("exchange response carried no access token: %w", apperrors.ErrInvalidToken)
	}
	return Result{
		AccessToken:  access,
		RefreshToken: utils.Value(out.RefreshToken),
		Extras:       out.Extras,
	}, nil
}

func (e *HTTPExchanger) RefreshAccess(ctx context.Context, refreshToken string) (string, error) {
	if e.refresh == nil {
		return "", apperrors.ErrRenewalUnsupported
	}
	if refreshToken == "" {
		return "", fmt.Errorf("no refresh token: %w", apperrors.ErrRenewalRejected)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
	tok, err := e.refresh.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return "", classifyRefreshError(err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("refresh response carried no access token: %w", apperrors.ErrRenewalFailed)
	}
	return tok.AccessToken, nil
}

// classifyRefreshError separates a refresh token the server no longer accepts
// from failures that may succeed on a later attempt.
func classifyRefreshError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorCode == "invalid_grant" || re.ErrorCode == "invalid_client" ||
			(re.Response != nil && (re.Response.StatusCode == http.StatusBadRequest || re.Response.StatusCode == http.StatusUnauthorized)) {
			return fmt.Errorf("%w: %v", apperrors.ErrRenewalRejected, err)
		}
	}
	return fmt.Errorf("%w: %v", apperrors.ErrRenewalFailed, err)
}
