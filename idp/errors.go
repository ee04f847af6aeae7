package idp

import (
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/jrsteele09/go-session-keeper/internal/errors"
)

// Provider error codes that mean silent acquisition cannot succeed without the user.
const (
	ConsentRequired     = "consent_required"
	InteractionRequired = "interaction_required"
	LoginRequired       = "login_required"
)

var interactionCodes = []string{ConsentRequired, InteractionRequired, LoginRequired}

// ProviderError is an error reported by the identity provider
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("identity provider: %s", e.Code)
	}
	return fmt.Sprintf("identity provider: %s: %s", e.Code, e.Description)
}

// Is lets errors.Is(err, ErrInteractionRequired) match interaction-family codes
func (e *ProviderError) Is(target error) bool {
	return target == apperrors.ErrInteractionRequired && codeRequiresInteraction(e.Code)
}

// RequiresInteraction reports whether err tells the caller to fall back to an
// interactive sign-in. Besides typed provider errors it recognises the code
// family embedded in plain error messages.
func RequiresInteraction(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return codeRequiresInteraction(pe.Code)
	}
	if errors.Is(err, apperrors.ErrInteractionRequired) {
		return true
	}
	return codeRequiresInteraction(err.Error())
}

func codeRequiresInteraction(message string) bool {
	for _, code := range interactionCodes {
		if strings.Contains(message, code) {
			return true
		}
	}
	return false
}
