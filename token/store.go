package token

// Store persists the raw credential strings for a session.
// Implementations must make ClearAll atomic with respect to Get: a reader
// sees either every slot or none of them.
type Store interface {
	// Get returns the raw token held in the slot, or errors.ErrTokenNotFound
	Get(kind Kind) (string, error)

	// Set overwrites the slot with a raw token. An empty raw value empties
	// the slot.
	Set(kind Kind, raw string) error

	// ClearAll removes every slot at once
	ClearAll() error
}
