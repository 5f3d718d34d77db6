package eventstore

import (
	"encoding/json"
	"errors"

	jsoniter "github.com/json-iterator/go"
)

// Snapshot is a point-in-time materialization of a stream's state.
// Revision is the highest event revision folded into Data.
type Snapshot struct {
	SnapshotID string
	StreamID   string
	Revision   int
	Data       json.RawMessage
}

// Validate ensures the snapshot has valid data for storage operations.
func (s Snapshot) Validate() error {
	if s.SnapshotID == "" {
		return errors.Join(ErrInvalidSnapshot, errors.New("empty snapshot id"))
	}

	if s.StreamID == "" {
		return errors.Join(ErrInvalidSnapshot, errors.New("empty stream id"))
	}

	if s.Revision < 0 {
		return errors.Join(ErrInvalidSnapshot, errors.New("negative revision"))
	}

	if len(s.Data) > 0 && !jsoniter.ConfigFastest.Valid(s.Data) {
		return errors.Join(ErrInvalidSnapshot, errors.New("snapshot json is not valid"))
	}

	return nil
}

// BuildSnapshot creates a new Snapshot with validation.
func BuildSnapshot(snapshotID string, streamID string, revision int, data json.RawMessage) (Snapshot, error) {
	snapshot := Snapshot{
		SnapshotID: snapshotID,
		StreamID:   streamID,
		Revision:   revision,
		Data:       data,
	}

	if err := snapshot.Validate(); err != nil {
		return Snapshot{}, err
	}

	return snapshot, nil
}
