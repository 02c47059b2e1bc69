// Package skywatch tracks the aircraft inside a moving region of interest
// using the OpenSky Network live states API.
//
// A client reports every movement of its region (a map viewport, a GPS fix)
// and skywatch decides when to fetch: a region is only fetched once it has
// stopped changing for a stability window, and the confirmed region is then
// re-fetched on a fixed interval. Results are decoded into typed
// [opensky.StateVector] values.
//
// # Quick Start
//
//	tr, _ := skywatch.New(
//	    skywatch.WithInitialRegion(opensky.RegionAround(52.5, 13.4)),
//	    skywatch.WithResultCallback(func(u skywatch.Update) {
//	        fmt.Println(len(u.States.Aircraft), "aircraft")
//	    }),
//	)
//
//	// Set up graceful shutdown on SIGINT/SIGTERM
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	tr.Start(ctx) // blocks until context is cancelled
//
// # Configuration
//
// skywatch uses the functional options pattern for configuration:
//
//	tr, err := skywatch.New(
//	    skywatch.WithCredentials(os.Getenv("OPENSKY_USERNAME"), os.Getenv("OPENSKY_PASSWORD")),
//	    skywatch.WithRefreshInterval(10 * time.Second),
//	    skywatch.WithStabilityWindow(2 * time.Second),
//	    skywatch.WithRateLimit(0.2, 1),
//	    skywatch.WithPort(9090),
//	)
//
// # Architecture
//
// skywatch consists of several packages:
//
//   - opensky: state vector model, tolerant decoder and regions
//   - internal/poller: OpenSky client and the debouncing scheduler
//   - internal/store: latest snapshot with pub/sub for real-time updates
//   - internal/server: HTTP server with REST API and Server-Sent Events
//   - config: YAML configuration for the skywatch binary
//
// The internal packages are not part of the public API and may change
// without notice.
package skywatch
