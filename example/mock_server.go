package main

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jpalmerr/skywatch/example/mocksky"
)

// startMockOpenSky serves synthetic traffic on a random local port and
// returns the API root to hand to skywatch.WithBaseURL.
func startMockOpenSky(logger *slog.Logger) (string, func(), error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, err
	}

	srv := &http.Server{
		Handler:           mocksky.New(25, 200*time.Millisecond, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error("mock server error", "error", err)
		}
	}()

	return "http://" + ln.Addr().String() + "/api", func() { _ = srv.Close() }, nil
}
