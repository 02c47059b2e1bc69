// Standalone mock OpenSky server for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/skywatch serve -c example/config.yaml
//	go run ./cmd/skywatch fetch --lat 52.5 --lon 13.4 --base-url http://localhost:9999/api
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jpalmerr/skywatch/example/mocksky"
)

func main() {
	addr := flag.String("addr", ":9999", "listen address")
	count := flag.Int("aircraft", 25, "aircraft per response")
	latency := flag.Duration("latency", 200*time.Millisecond, "maximum simulated latency")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	fmt.Printf("Mock OpenSky server starting on %s\n", *addr)
	fmt.Printf("States endpoint: %s\n", mocksky.StatesPath)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mocksky.New(*count, *latency, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
