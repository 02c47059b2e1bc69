// Package store holds the latest aircraft snapshot and fans it out to
// subscribers.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [Snapshot]: Storage representation of the tracked region's aircraft
//
// Subscribers receive updates via channels with non-blocking sends (slow
// subscribers will miss updates rather than block the fetch path).
package store
