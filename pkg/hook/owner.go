package hook

import (
	"github.com/google/uuid"
)

// Owner identifies a subscriber. The name is what other registrations
// reference in their precede and follow sets; the token is a capability
// that only the creator holds and that must be presented to modify or
// remove the owner's registrations.
type Owner struct {
	name  string
	token uuid.UUID
}

// NewOwner creates an owner identity with a fresh capability token.
func NewOwner(name string) Owner {
	return Owner{name: name, token: uuid.New()}
}

// Name returns the owner name.
func (o Owner) Name() string { return o.name }

// Valid reports whether the owner has a name and a token.
func (o Owner) Valid() bool { return o.name != "" && o.token != uuid.Nil }

// Is reports whether o and other are the same capability.
func (o Owner) Is(other Owner) bool {
	return o.Valid() && o.token == other.token && o.name == other.name
}

func (o Owner) String() string { return o.name }
