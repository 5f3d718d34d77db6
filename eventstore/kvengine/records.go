package kvengine

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/kv-eventstore-go/eventstore"
	"github.com/AntonStoeckl/kv-eventstore-go/eventstore/kvstore"
)

const keySeparator = "_"

var (
	recordJSON = jsoniter.ConfigCompatibleWithStandardLibrary
	jsonNull   = json.RawMessage("null")
)

type eventRecord struct {
	Kind           string          `json:"kind"`
	ID             string          `json:"id"`
	StreamID       string          `json:"streamId"`
	StreamRevision int             `json:"streamRevision"`
	CommitID       string          `json:"commitId"`
	CommitSequence int             `json:"commitSequence"`
	CommitStamp    time.Time       `json:"commitStamp"`
	Payload        json.RawMessage `json:"payload"`
	Dispatched     bool            `json:"dispatched"`
}

type snapshotRecord struct {
	Kind     string          `json:"kind"`
	ID       string          `json:"id"`
	StreamID string          `json:"streamId"`
	Revision int             `json:"revision"`
	Data     json.RawMessage `json:"data"`
}

// recordKey namespaces an id with its collection, e.g. "events_c10".
func recordKey(kind string, id string) string {
	return kind + keySeparator + id
}

func encodeEvent(kind string, event eventstore.Event) (kvstore.Record, error) {
	value, err := recordJSON.Marshal(eventRecord{
		Kind:           kind,
		ID:             event.EventID(),
		StreamID:       event.StreamID,
		StreamRevision: event.StreamRevision,
		CommitID:       event.CommitID,
		CommitSequence: event.CommitSequence,
		CommitStamp:    event.CommitStamp.UTC(),
		Payload:        nullIfEmpty(event.Payload),
		Dispatched:     event.Dispatched,
	})
	if err != nil {
		return kvstore.Record{}, err
	}

	return kvstore.Record{Kind: kind, Value: value}, nil
}

func decodeEvent(record kvstore.Record) (eventstore.Event, error) {
	var r eventRecord
	if err := recordJSON.Unmarshal(record.Value, &r); err != nil {
		return eventstore.Event{}, errors.Join(eventstore.ErrDecodingRecordFailed, err)
	}

	if r.ID == "" {
		return eventstore.Event{}, fmt.Errorf("%w: event record without id", eventstore.ErrDecodingRecordFailed)
	}

	return eventstore.Event{
		ID:             r.ID,
		StreamID:       r.StreamID,
		StreamRevision: r.StreamRevision,
		CommitID:       r.CommitID,
		CommitSequence: r.CommitSequence,
		CommitStamp:    r.CommitStamp,
		Payload:        emptyIfNull(r.Payload),
		Dispatched:     r.Dispatched,
	}, nil
}

func encodeSnapshot(kind string, snapshot eventstore.Snapshot) (kvstore.Record, error) {
	value, err := recordJSON.Marshal(snapshotRecord{
		Kind:     kind,
		ID:       snapshot.SnapshotID,
		StreamID: snapshot.StreamID,
		Revision: snapshot.Revision,
		Data:     nullIfEmpty(snapshot.Data),
	})
	if err != nil {
		return kvstore.Record{}, err
	}

	return kvstore.Record{Kind: kind, Value: value}, nil
}

func decodeSnapshot(record kvstore.Record) (eventstore.Snapshot, error) {
	var r snapshotRecord
	if err := recordJSON.Unmarshal(record.Value, &r); err != nil {
		return eventstore.Snapshot{}, errors.Join(eventstore.ErrDecodingRecordFailed, err)
	}

	if r.ID == "" {
		return eventstore.Snapshot{}, fmt.Errorf("%w: snapshot record without id", eventstore.ErrDecodingRecordFailed)
	}

	return eventstore.Snapshot{
		SnapshotID: r.ID,
		StreamID:   r.StreamID,
		Revision:   r.Revision,
		Data:       emptyIfNull(r.Data),
	}, nil
}

func nullIfEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return jsonNull
	}

	return raw
}

// emptyIfNull maps a stored null back to an absent payload.
func emptyIfNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == string(jsonNull) {
		return nil
	}

	return raw
}
