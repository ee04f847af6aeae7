package session

// Phase is where a session sits in its lifecycle
type Phase int

const (
	Unauthenticated Phase = iota
	Active
	Warning
	Expired
)

func (p Phase) String() string {
	switch p {
	case Unauthenticated:
		return "unauthenticated"
	case Active:
		return "active"
	case Warning:
		return "warning"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// Mode selects which token the monitor tracks. It is chosen once per session.
type Mode int

const (
	// AccessOnly tracks the access token; nothing can renew it.
	AccessOnly Mode = iota

	// RefreshMode renews the access token silently and warns before the
	// refresh token runs out.
	RefreshMode
)

func (m Mode) String() string {
	if m == RefreshMode {
		return "refresh"
	}
	return "access-only"
}

// State is a point-in-time view of a monitor
type State struct {
	Phase                Phase
	Mode                 Mode
	Running              bool   // a monitoring loop is active
	Authenticated        bool   // the monitored session has not been expired or stopped
	WarningVisible       bool   // the expiry warning dialog is open
	TimeoutNoticeVisible bool   // the terminal session-expired notice is shown
	Countdowns           int    // live countdown timers, never more than one
	Checks               uint64 // coarse evaluations since Start
}
