package token

// Kind identifies one of the two credential slots held for a session.
type Kind string

const (
	// Access is the short-lived credential sent to downstream resources.
	Access Kind = "access"

	// Refresh is the longer-lived credential exchanged for new access tokens.
	Refresh Kind = "refresh"
)

// Kinds lists every slot, in the order they are cleared and reported.
var Kinds = []Kind{Access, Refresh}

func (k Kind) String() string {
	return string(k)
}

// Valid reports whether k names a known slot.
func (k Kind) Valid() bool {
	switch k {
	case Access, Refresh:
		return true
	}
	return false
}
