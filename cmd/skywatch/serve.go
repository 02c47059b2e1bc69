package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/skywatch"
	"github.com/jpalmerr/skywatch/config"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd starts tracking and the API server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Track a region and serve the API",
	Long: `Start skywatch.

The server will:
  - Load configuration from the specified YAML file
  - Fetch the configured region, if any, once the stability window elapses
  - Serve the aircraft API on the configured port

Move the region with PUT /api/region. The server runs until interrupted
(Ctrl+C) or receives SIGTERM.

Example:
  skywatch serve -c config.yaml
  skywatch serve --config /etc/skywatch/config.yaml --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("config loaded",
		"port", cfg.Port,
		"authenticated", cfg.API.Username != "",
		"refresh_interval", cfg.Schedule.RefreshInterval.Duration().String(),
		"stability_window", cfg.Schedule.StabilityWindow.Duration().String(),
	)

	opts, err := config.BuildOptions(cfg)
	if err != nil {
		return fmt.Errorf("failed to build options: %w", err)
	}
	opts = append(opts, skywatch.WithLogger(logger))

	tr, err := skywatch.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create tracker: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- tr.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
