package eventstore

import "github.com/google/uuid"

// IDGenerator produces globally unique identifiers for events, commits and snapshots.
// Identifiers carry no ordering guarantee.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator generates random (version 4) UUID strings.
type UUIDGenerator struct{}

// NewID returns a new random UUID string.
func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}

// NewID is a shortcut for UUIDGenerator{}.NewID().
func NewID() string {
	return UUIDGenerator{}.NewID()
}
