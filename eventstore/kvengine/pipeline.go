package kvengine

import (
	"cmp"
	"slices"
	"strings"

	"github.com/AntonStoeckl/kv-eventstore-go/eventstore"
)

// The functions in this file form the second stage of every query: the first stage fetches and decodes
// all records of a collection, these filter and order them. None of them touches the store,
// and none of them modifies its input slice.

// filterStreamWindow keeps the events of streamID inside the half-open revision window [minRev, maxRev).
// maxRev == eventstore.UnboundedRevision removes the upper bound.
func filterStreamWindow(events eventstore.Events, streamID string, minRev int, maxRev int) eventstore.Events {
	filtered := make(eventstore.Events, 0)

	for _, event := range events {
		if event.StreamID != streamID || event.StreamRevision < minRev {
			continue
		}

		if maxRev != eventstore.UnboundedRevision && event.StreamRevision >= maxRev {
			continue
		}

		filtered = append(filtered, event)
	}

	return filtered
}

func sortByStreamRevision(events eventstore.Events) {
	slices.SortStableFunc(events, func(a, b eventstore.Event) int {
		return cmp.Compare(a.StreamRevision, b.StreamRevision)
	})
}

// compareCommitOrder orders by commit stamp, then stream and revision, so equal stamps still have a fixed order.
func compareCommitOrder(a, b eventstore.Event) int {
	if c := a.CommitStamp.Compare(b.CommitStamp); c != 0 {
		return c
	}

	if c := strings.Compare(a.StreamID, b.StreamID); c != 0 {
		return c
	}

	return cmp.Compare(a.StreamRevision, b.StreamRevision)
}

// findAnchor returns the earliest event in commit order whose payload satisfies match.
func findAnchor(events eventstore.Events, match eventstore.Match) (eventstore.Event, bool) {
	var anchor eventstore.Event
	found := false

	for _, event := range events {
		if !match.Matches(event.Payload) {
			continue
		}

		if !found || compareCommitOrder(event, anchor) < 0 {
			anchor = event
			found = true
		}
	}

	return anchor, found
}

// filterAfterAnchor keeps the events committed at or after the anchor, excluding the anchor's own commit.
func filterAfterAnchor(events eventstore.Events, anchor eventstore.Event) eventstore.Events {
	filtered := make(eventstore.Events, 0)

	for _, event := range events {
		if event.CommitStamp.Before(anchor.CommitStamp) {
			continue
		}

		if event.StreamID == anchor.StreamID && event.CommitID == anchor.CommitID {
			continue
		}

		filtered = append(filtered, event)
	}

	return filtered
}

func sortByCommitOrder(events eventstore.Events) {
	slices.SortStableFunc(events, compareCommitOrder)
}

// takeFirst truncates to at most amount events.
func takeFirst(events eventstore.Events, amount int) eventstore.Events {
	if amount < len(events) {
		return events[:amount]
	}

	return events
}

func filterUndispatched(events eventstore.Events) eventstore.Events {
	filtered := make(eventstore.Events, 0)

	for _, event := range events {
		if !event.Dispatched {
			filtered = append(filtered, event)
		}
	}

	return filtered
}

func sortByStreamAndRevision(events eventstore.Events) {
	slices.SortStableFunc(events, func(a, b eventstore.Event) int {
		if c := strings.Compare(a.StreamID, b.StreamID); c != 0 {
			return c
		}

		return cmp.Compare(a.StreamRevision, b.StreamRevision)
	})
}

// selectSnapshot picks the snapshot of streamID with the highest revision, bounded by maxRev when maxRev > -1.
// On equal revisions the first one in scan order wins.
func selectSnapshot(snapshots []eventstore.Snapshot, streamID string, maxRev int) (eventstore.Snapshot, bool) {
	var selected eventstore.Snapshot
	found := false

	for _, snapshot := range snapshots {
		if snapshot.StreamID != streamID {
			continue
		}

		if maxRev > eventstore.UnboundedRevision && snapshot.Revision > maxRev {
			continue
		}

		if !found || snapshot.Revision > selected.Revision {
			selected = snapshot
			found = true
		}
	}

	return selected, found
}
