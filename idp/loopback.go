package idp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/jrsteele09/go-session-keeper/internal/errors"
	"github.com/rs/zerolog/log"
)

const defaultLoopbackTimeout = 5 * time.Minute

// LoopbackInteractor completes an authorization request for a host without an
// embedded browser. It listens on the redirect URI, hands the authorization
// URL to Open and waits for the provider to redirect back.
type LoopbackInteractor struct {
	RedirectURL string
	Open        func(authURL string) error
	Timeout     time.Duration
}

var _ Interactor = (*LoopbackInteractor)(nil)

func (l *LoopbackInteractor) Authorize(ctx context.Context, authURL string, mode InteractionMode) (AuthorizationResponse, error) {
	redirect, err := url.Parse(l.RedirectURL)
	if err != nil || redirect.Host == "" {
		return AuthorizationResponse{}, fmt.Errorf("[LoopbackInteractor Authorize] invalid redirect url %q: %w", l.RedirectURL, apperrors.ErrConfiguration)
	}
	if l.Open == nil {
		return AuthorizationResponse{}, fmt.Errorf("[LoopbackInteractor Authorize] opener is required: %w", apperrors.ErrConfiguration)
	}

	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return AuthorizationResponse{}, fmt.Errorf("listening on %s: %w", redirect.Host, err)
	}

	results := make(chan AuthorizationResponse, 1)
	path := redirect.Path
	if path == "" {
		path = "/"
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		resp := AuthorizationResponse{
			Code:             r.FormValue("code"),
			State:            r.FormValue("state"),
			Error:            r.FormValue("error"),
			ErrorDescription: r.FormValue("error_description"),
		}
		select {
		case results <- resp:
		default:
		}
		if resp.Error != "" {
			http.Error(w, fmt.Sprintf("Authorization failed: %s - %s", resp.Error, resp.ErrorDescription), http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "Signed in. You can close this window.")
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Str("addr", redirect.Host).Msg("Loopback listener stopped")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Debug().Str("mode", mode.String()).Str("redirect", l.RedirectURL).Msg("Waiting for authorization response")
	if err := l.Open(authURL); err != nil {
		return AuthorizationResponse{}, fmt.Errorf("opening authorization url: %w", err)
	}

	timeout := l.Timeout
	if timeout <= 0 {
		timeout = defaultLoopbackTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-results:
		return resp, nil
	case <-timer.C:
		return AuthorizationResponse{}, fmt.Errorf("no authorization response after %s", timeout)
	case <-ctx.Done():
		return AuthorizationResponse{}, ctx.Err()
	}
}
