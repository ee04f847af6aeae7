package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-session-keeper/internal/errors"
)

type Config interface {
	EnvConfig
	SessionConfig
	IdentityConfig
	StorageConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type SessionConfig interface {
	GetScopes() []string
	GetCheckInterval() time.Duration
	GetWarningThreshold() time.Duration
	GetCountdownTick() time.Duration
	GetInteractionMode() string
}

type IdentityConfig interface {
	GetClientID() string
	GetClientSecret() string
	GetAuthority() string
	GetRedirectURI() string
	GetExchangeURL() string
	GetRefreshURL() string
}

type StorageConfig interface {
	GetStore() string
	GetDataFolder() string
	GetStoreKey() ([]byte, error)
}

type mainConfig struct {
	EnvVars
	Session
	Identity
	Storage
}

// New reads configuration from the environment only
func New() Config {
	return newConfig(nil)
}

func newConfig(file fileValues) mainConfig {
	return mainConfig{
		EnvVars:  EnvVars{file: file},
		Session:  Session{file: file},
		Identity: Identity{file: file},
		Storage:  Storage{file: file},
	}
}

// Validate reports every setting that would stop the keeper from signing in
func Validate(c Config) error {
	var errs []error
	if c.GetAuthority() == "" {
		errs = append(errs, fmt.Errorf("%s is required", authorityVar))
	}
	if c.GetClientID() == "" {
		errs = append(errs, fmt.Errorf("%s is required", clientIDVar))
	}
	if u, err := url.Parse(c.GetRedirectURI()); err != nil || u.Host == "" {
		errs = append(errs, fmt.Errorf("%s must be an absolute URL, got %q", redirectURIVar, c.GetRedirectURI()))
	}
	if c.GetRefreshURL() != "" && c.GetExchangeURL() == "" {
		errs = append(errs, fmt.Errorf("%s needs %s", refreshURLVar, exchangeURLVar))
	}
	switch strings.ToLower(c.GetInteractionMode()) {
	case "popup", "redirect":
	default:
		errs = append(errs, fmt.Errorf("%s must be popup or redirect, got %q", interactionModeVar, c.GetInteractionMode()))
	}
	switch c.GetStore() {
	case StoreMemory, StoreBolt:
	default:
		errs = append(errs, fmt.Errorf("%s must be %s or %s, got %q", storeVar, StoreMemory, StoreBolt, c.GetStore()))
	}
	if _, err := c.GetStoreKey(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrConfiguration, err)
	}
	return nil
}
