package session

import (
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/go-session-keeper/internal/errors"
)

const (
	// DefaultCheckInterval is the period between coarse expiry checks
	DefaultCheckInterval = 150 * time.Second
	// DefaultWarningThreshold is how long before refresh expiry the warning opens
	DefaultWarningThreshold = 5 * time.Minute
	// DefaultCountdownTick is the update period of the warning countdown
	DefaultCountdownTick = time.Second
)

// Settings are fixed for the lifetime of a monitor
type Settings struct {
	CheckInterval    time.Duration
	WarningThreshold time.Duration
	CountdownTick    time.Duration
}

// DefaultSettings returns the settings used when none are configured
func DefaultSettings() Settings {
	return Settings{
		CheckInterval:    DefaultCheckInterval,
		WarningThreshold: DefaultWarningThreshold,
		CountdownTick:    DefaultCountdownTick,
	}
}

func (s Settings) validate() error {
	if s.CheckInterval <= 0 || s.WarningThreshold <= 0 || s.CountdownTick <= 0 {
		return fmt.Errorf("session settings must be positive (check=%s threshold=%s tick=%s): %w",
			s.CheckInterval, s.WarningThreshold, s.CountdownTick, apperrors.ErrConfiguration)
	}
	return nil
}
