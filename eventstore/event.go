package eventstore

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// Events is an alias type for a slice of Event.
type Events = []Event

// Event is one committed change within a stream.
//
// ID is derived from CommitID and CommitSequence (see EventID) and is the only addressing key,
// StreamID and StreamRevision define the replay order within a stream.
type Event struct {
	ID             string
	StreamID       string
	StreamRevision int
	CommitID       string
	CommitSequence int
	CommitStamp    time.Time
	Payload        json.RawMessage
	Dispatched     bool
}

// EventIdentifier is anything that can address a stored event, either a full Event or an EventRef.
type EventIdentifier interface {
	EventID() string
}

// EventRef is a minimal reference to a stored event carrying only its ID.
type EventRef struct {
	ID string
}

// EventID returns the referenced ID.
func (r EventRef) EventID() string {
	return r.ID
}

// EventID derives the unique event ID from a commit ID and the sequence inside that commit.
func EventID(commitID string, commitSequence int) string {
	return commitID + strconv.Itoa(commitSequence)
}

// EventID returns the stored ID, or derives it when the event was not persisted yet.
func (e Event) EventID() string {
	if e.ID != "" {
		return e.ID
	}

	return EventID(e.CommitID, e.CommitSequence)
}

// Ref returns a minimal reference to the event.
func (e Event) Ref() EventRef {
	return EventRef{ID: e.EventID()}
}

// Validate checks the event before it is handed to the persistence collaborator.
func (e Event) Validate() error {
	switch {
	case e.StreamID == "":
		return errors.Join(ErrInvalidEvent, errors.New("empty stream id"))
	case e.CommitID == "":
		return errors.Join(ErrInvalidEvent, errors.New("empty commit id"))
	case e.StreamRevision < 0:
		return errors.Join(ErrInvalidEvent, errors.New("negative stream revision"))
	case e.CommitSequence < 0:
		return errors.Join(ErrInvalidEvent, errors.New("negative commit sequence"))
	case len(e.Payload) > 0 && !jsoniter.ConfigFastest.Valid(e.Payload):
		return errors.Join(ErrInvalidEvent, errors.New("payload json is not valid"))
	}

	return nil
}
