package store

import (
	"sync"
	"time"

	"github.com/jpalmerr/skywatch/opensky"
)

const subscriberBuffer = 16

// MemoryStore is an in-memory implementation of [Store].
//
// MemoryStore keeps a single snapshot. Updates are sent to subscribers
// non-blocking; if a subscriber's buffer is full, the snapshot is dropped
// for that subscriber. Every snapshot is complete, so a dropped one is
// superseded by the next.
type MemoryStore struct {
	mu       sync.RWMutex
	snapshot Snapshot
	has      bool

	subMu       sync.RWMutex
	subscribers map[chan Snapshot]struct{}
}

// NewMemoryStore creates a new in-memory [Store] implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subscribers: make(map[chan Snapshot]struct{}),
	}
}

// Update replaces the stored snapshot and notifies all subscribers.
func (m *MemoryStore) Update(snapshot Snapshot) {
	snapshot.Aircraft = copyAircraft(snapshot.Aircraft)

	m.mu.Lock()
	m.snapshot = snapshot
	m.has = true
	m.mu.Unlock()

	m.notifySubscribers(snapshot)
}

// RecordFailure marks the stored snapshot with a fetch error. The aircraft
// from the last successful fetch are kept.
func (m *MemoryStore) RecordFailure(message string, at time.Time) {
	m.mu.Lock()
	m.snapshot.Error = &message
	m.snapshot.UpdatedAt = at
	m.has = true
	snapshot := m.snapshot
	m.mu.Unlock()

	m.notifySubscribers(snapshot)
}

// Latest returns a copy of the stored snapshot.
func (m *MemoryStore) Latest() (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := m.snapshot
	snapshot.Aircraft = copyAircraft(snapshot.Aircraft)
	return snapshot, m.has
}

// Subscribe creates a new subscription and returns a channel for receiving updates.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
//
// Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan Snapshot) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends the snapshot to all active subscribers without
// blocking.
func (m *MemoryStore) notifySubscribers(snapshot Snapshot) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- snapshot:
		default:
			// subscriber is slow, drop the message
		}
	}
}

func copyAircraft(in []opensky.StateVector) []opensky.StateVector {
	if in == nil {
		return nil
	}
	out := make([]opensky.StateVector, len(in))
	copy(out, in)
	return out
}
