// Package poller fetches OpenSky flight states and decides when to fetch.
//
// This package is internal to skywatch. The main components are:
//
//   - [Client]: HTTP client for the states endpoint with timeouts, basic
//     auth and client-side rate limiting
//   - [Scheduler]: debounces region changes and refreshes the committed
//     region on a fixed interval
//   - [Result]: outcome of one fetch, delivered to the scheduler callback
//   - [Clock]: time source, replaceable in tests
//
// Users of the skywatch library should not need to interact with this
// package directly. Configuration is done through the main skywatch package.
package poller
