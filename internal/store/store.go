package store

import (
	"time"

	"github.com/jpalmerr/skywatch/opensky"
)

// Snapshot is the most recent view of the tracked region.
//
// Snapshot is the storage representation served by the REST API and SSE.
// Aircraft is replaced wholesale by every successful fetch; a failed fetch
// only sets Error and leaves the previous aircraft in place.
type Snapshot struct {
	// Region is the region the aircraft were fetched for.
	Region opensky.Region `json:"region"`

	// Time is the server timestamp of the states, in Unix seconds.
	Time int64 `json:"time"`

	// FetchID identifies the fetch that produced the aircraft.
	FetchID string `json:"fetch_id"`

	// Aircraft holds the decoded state vectors, in response order.
	Aircraft []opensky.StateVector `json:"aircraft"`

	// UpdatedAt is when the snapshot last changed.
	UpdatedAt time.Time `json:"updated_at"`

	// Error is the message of the latest failed fetch, or nil once a fetch
	// succeeds again.
	Error *string `json:"error"`
}

// Store defines the interface for storing and subscribing to snapshots.
//
// Store implementations must be safe for concurrent access. The pub/sub
// mechanism allows real-time updates to be pushed to connected clients
// (e.g., via Server-Sent Events).
type Store interface {
	// Update replaces the stored snapshot and notifies all subscribers.
	Update(snapshot Snapshot)

	// RecordFailure keeps the stored aircraft, sets the error message and
	// notifies all subscribers.
	RecordFailure(message string, at time.Time)

	// Latest returns the stored snapshot, or false if nothing was stored yet.
	// The aircraft slice is a copy.
	Latest() (Snapshot, bool)

	// Subscribe returns a channel that receives every stored snapshot.
	// The returned channel has a buffer; slow consumers may miss updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan Snapshot

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Snapshot)
}
