// Package notify presents session notices to the user and carries their
// responses back as callbacks.
package notify

// Handle identifies an open warning dialog
type Handle string

// Gateway shows session dialogs. Callbacks may fire on any goroutine, at any
// time after the dialog is shown; callers must not assume a synchronous answer.
type Gateway interface {
	// ShowWarning opens a dialog. onExtend is nil when the session cannot be
	// extended, in which case the dialog only offers acknowledgement.
	ShowWarning(title, body string, onExtend, onDismiss func()) Handle

	// UpdateWarning replaces the body text of an open dialog
	UpdateWarning(h Handle, body string)

	// CloseWarning closes a dialog without firing its callbacks
	CloseWarning(h Handle)

	// ShowTerminal tells the user the session is over
	ShowTerminal(title, body string)

	ShowSuccess(message string)
	ShowError(title, body string)
}
