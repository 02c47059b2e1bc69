package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/skywatch"
	"github.com/jpalmerr/skywatch/opensky"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// start mock OpenSky (see mock_server.go)
	baseURL, stopMock, err := startMockOpenSky(logger)
	if err != nil {
		logger.Error("failed to start mock server", "error", err)
		os.Exit(1)
	}
	defer stopMock()

	// Berlin, a 5 degree span, 2.5 degrees on each side of the center
	berlin, err := opensky.NewRegion(52.52, 13.40, 5, 5)
	if err != nil {
		logger.Error("invalid region", "error", err)
		os.Exit(1)
	}

	tr, err := skywatch.New(
		skywatch.WithBaseURL(baseURL),
		skywatch.WithInitialRegion(berlin),
		skywatch.WithRefreshInterval(5*time.Second),
		skywatch.WithStabilityWindow(time.Second),
		skywatch.WithOverlapPolicy(skywatch.OverlapCoalesce),
		skywatch.WithPort(8080),
		skywatch.WithLogger(logger),
		skywatch.WithResultCallback(func(u skywatch.Update) {
			if u.Err != nil {
				fmt.Printf("  [%s] fetch %s failed: %v\n", u.Trigger, u.FetchID[:8], u.Err)
				return
			}
			fmt.Printf("  [%s] %d aircraft in %s (%s)\n",
				u.Trigger, len(u.States.Aircraft), u.Region, u.Latency.Round(time.Millisecond))
		}),
	)
	if err != nil {
		logger.Error("failed to create tracker", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  skywatch demo")
	fmt.Println()
	fmt.Println("  Tracking mock traffic around Berlin, refreshed every 5s.")
	fmt.Println("  GET  http://localhost:8080/api/aircraft")
	fmt.Println("  PUT  http://localhost:8080/api/region   {\"latitude\":48.85,\"longitude\":2.35}")
	fmt.Println("  GET  http://localhost:8080/api/sse")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tr.Start(ctx); err != nil {
		logger.Error("skywatch error", "error", err)
		os.Exit(1)
	}
}
