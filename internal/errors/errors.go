package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session keeper
var (
	// Token errors
	ErrTokenNotFound = errors.New("token not found")
	ErrInvalidToken  = errors.New("invalid token")

	// Renewal errors
	ErrRenewalRejected    = errors.New("refresh token rejected")
	ErrRenewalFailed      = errors.New("token renewal failed")
	ErrRenewalUnsupported = errors.New("token renewal not supported")

	// Identity provider errors
	ErrInteractionRequired = errors.New("interaction required")
	ErrStateMismatch       = errors.New("state mismatch")
	ErrNonceMismatch       = errors.New("nonce mismatch")

	// Session errors
	ErrSessionInactive  = errors.New("session is not active")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrMonitorRunning   = errors.New("session monitor already running")

	// Setup errors
	ErrConfiguration = errors.New("configuration error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
