package session

import "fmt"

const (
	refreshWarningTitle = "Timeout warning"
	accessWarningTitle  = "Your session will expire soon"
	expiredTitle        = "Your session has expired"
	expiredBody         = "Please log in again to continue."
	extendedMessage     = "Your session has been extended"
	extendFailedTitle   = "Could not extend your session"
)

func warningTitle(mode Mode) string {
	if mode == RefreshMode {
		return refreshWarningTitle
	}
	return accessWarningTitle
}

// WarningBody is the countdown text of a warning dialog
func WarningBody(mode Mode, minutes, seconds int) string {
	if mode == RefreshMode {
		return fmt.Sprintf("You will be logged out in %d minutes and %d seconds. Press OK to extend your session.", minutes, seconds)
	}
	return fmt.Sprintf("You will be logged out in %d minutes and %d seconds.", minutes, seconds)
}
