// Package server provides the HTTP API for skywatch.
//
// This package is internal to skywatch and handles all HTTP concerns:
//
//   - REST API: the latest aircraft snapshot at "/api/aircraft", region
//     control at "/api/region" and scheduler counters at "/api/stats"
//   - Server-Sent Events: snapshot updates at "/api/sse"
//   - Liveness: "/healthz"
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
//
// Users of the skywatch library should not need to interact with this
// package directly. The server is started by [skywatch.Tracker.Start].
package server
