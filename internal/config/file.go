package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	apperrors "github.com/jrsteele09/go-session-keeper/internal/errors"
)

// fileConfig is the layout of the optional TOML config file
type fileConfig struct {
	AppName  string `toml:"app_name"`
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`

	Session struct {
		Scopes               []string `toml:"scopes"`
		CheckIntervalMinutes float64  `toml:"check_interval_minutes"`
		InteractionMode      string   `toml:"interaction_mode"`
	} `toml:"session"`

	Identity struct {
		ClientID     string `toml:"client_id"`
		ClientSecret string `toml:"client_secret"`
		Authority    string `toml:"authority"`
		RedirectURI  string `toml:"redirect_uri"`
		ExchangeURL  string `toml:"exchange_url"`
		RefreshURL   string `toml:"refresh_url"`
	} `toml:"identity"`

	Storage struct {
		Store  string `toml:"store"`
		Folder string `toml:"folder"`
		Key    string `toml:"key"`
	} `toml:"storage"`
}

// fileValues holds file settings keyed by their environment variable name
type fileValues map[string]string

// get prefers an explicitly set environment variable, then the file, then
// the default
func (f fileValues) get(name, defaultValue string) string {
	if v := GetEnv(name, ""); v != "" {
		return v
	}
	if v, ok := f[name]; ok {
		return v
	}
	return defaultValue
}

// Load reads the TOML file at path on top of the built-in defaults.
// Environment variables still override anything in the file. An empty path
// behaves like New.
func Load(path string) (Config, error) {
	if path == "" {
		return New(), nil
	}

	var fc fileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys in %s: %s: %w", path, strings.Join(keys, ", "), apperrors.ErrConfiguration)
	}
	return newConfig(fc.values()), nil
}

func (fc fileConfig) values() fileValues {
	v := fileValues{}
	set := func(name, value string) {
		if value != "" {
			v[name] = value
		}
	}

	set(appNameVar, fc.AppName)
	set(environmentVar, fc.Env)
	set(logLevelVar, fc.LogLevel)

	set(scopesVar, strings.Join(fc.Session.Scopes, " "))
	if fc.Session.CheckIntervalMinutes != 0 {
		set(checkIntervalVar, strconv.FormatFloat(fc.Session.CheckIntervalMinutes, 'f', -1, 64))
	}
	set(interactionModeVar, fc.Session.InteractionMode)

	set(clientIDVar, fc.Identity.ClientID)
	set(clientSecretVar, fc.Identity.ClientSecret)
	set(authorityVar, fc.Identity.Authority)
	set(redirectURIVar, fc.Identity.RedirectURI)
	set(exchangeURLVar, fc.Identity.ExchangeURL)
	set(refreshURLVar, fc.Identity.RefreshURL)

	set(storeVar, fc.Storage.Store)
	set(folderEnvVar, fc.Storage.Folder)
	set(storeKeyVar, fc.Storage.Key)
	return v
}
