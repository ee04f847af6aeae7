package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	appNameVar         = "APP_NAME"
	environmentVar     = "ENV"
	logLevelVar        = "LOG_LEVEL"
	scopesVar          = "SCOPES"
	checkIntervalVar   = "CHECK_INTERVAL_MINUTES"
	interactionModeVar = "INTERACTION_MODE"
	clientIDVar        = "CLIENT_ID"
	clientSecretVar    = "CLIENT_SECRET"
	authorityVar       = "AUTHORITY"
	redirectURIVar     = "REDIRECT_URI"
	exchangeURLVar     = "EXCHANGE_URL"
	refreshURLVar      = "REFRESH_URL"
	storeVar           = "STORE"
	folderEnvVar       = "FOLDER"
	storeKeyVar        = "STORE_KEY"
)

const (
	StoreMemory = "memory"
	StoreBolt   = "bolt"

	defaultCheckIntervalMinutes = 2.5
	storeKeyLength              = 32
)

type EnvVars struct {
	file fileValues
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.file.get(appNameVar, "Session Keeper")
}

func (e EnvVars) GetEnv() string {
	return e.file.get(environmentVar, "DEV")
}

func (e EnvVars) GetLogLevel() string {
	return e.file.get(logLevelVar, "info")
}

type Session struct {
	file fileValues
}

var _ SessionConfig = Session{}

// GetScopes splits SCOPES on whitespace
func (s Session) GetScopes() []string {
	return strings.Fields(s.file.get(scopesVar, ""))
}

// GetCheckInterval is the period of the coarse session check. Values that are
// not a positive number of minutes fall back to the default.
func (s Session) GetCheckInterval() time.Duration {
	minutes, err := strconv.ParseFloat(s.file.get(checkIntervalVar, ""), 64)
	if err != nil || minutes <= 0 {
		minutes = defaultCheckIntervalMinutes
	}
	return time.Duration(minutes * float64(time.Minute))
}

func (Session) GetWarningThreshold() time.Duration {
	return 5 * time.Minute
}

func (Session) GetCountdownTick() time.Duration {
	return time.Second
}

func (s Session) GetInteractionMode() string {
	return s.file.get(interactionModeVar, "redirect")
}

type Identity struct {
	file fileValues
}

var _ IdentityConfig = Identity{}

func (i Identity) GetClientID() string {
	return i.file.get(clientIDVar, "")
}

func (i Identity) GetClientSecret() string {
	return i.file.get(clientSecretVar, "")
}

// GetAuthority is the issuer URL used for OIDC discovery
func (i Identity) GetAuthority() string {
	return i.file.get(authorityVar, "")
}

func (i Identity) GetRedirectURI() string {
	return i.file.get(redirectURIVar, "http://127.0.0.1:8976/callback")
}

// GetExchangeURL is the application backend's sign-in endpoint. Empty means
// the provider's access token is used as is.
func (i Identity) GetExchangeURL() string {
	return i.file.get(exchangeURLVar, "")
}

func (i Identity) GetRefreshURL() string {
	return i.file.get(refreshURLVar, "")
}

type Storage struct {
	file fileValues
}

var _ StorageConfig = Storage{}

func (s Storage) GetStore() string {
	return strings.ToLower(s.file.get(storeVar, StoreMemory))
}

func (s Storage) GetDataFolder() string {
	return s.file.get(folderEnvVar, "./data")
}

// GetStoreKey decodes the hex sealing key for persisted tokens. No key
// configured returns nil.
func (s Storage) GetStoreKey() ([]byte, error) {
	raw := s.file.get(storeKeyVar, "")
	if raw == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%s is not hex: %w", storeKeyVar, err)
	}
	if len(key) != storeKeyLength {
		return nil, fmt.Errorf("%s must be %d bytes, got %d", storeKeyVar, storeKeyLength, len(key))
	}
	return key, nil
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
