// Package main is the entry point for the skywatch CLI.
//
// skywatch can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	skywatch serve -c config.yaml           # Track a region and serve the API
//	skywatch validate -c config.yaml        # Validate configuration
//	skywatch fetch --lat 52.5 --lon 13.4    # One-shot fetch of a region
//	skywatch version                        # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "skywatch",
	Short: "Live aircraft tracking for a region of interest",
	Long: `skywatch tracks the aircraft inside a region using the OpenSky Network API.

Region changes are debounced: a region is fetched once it has stopped
changing for the stability window, then re-fetched on a fixed interval.

Quick start:
  1. Create a config file (skywatch.yaml)
  2. Run: skywatch serve -c skywatch.yaml
  3. GET http://localhost:8080/api/aircraft

Example config:
  port: 8080
  api:
    username: ${OPENSKY_USERNAME:-}
    password: ${OPENSKY_PASSWORD:-}
  region:
    latitude: 52.5
    longitude: 13.4`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this skywatch binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "skywatch %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn or error")
	rootCmd.AddCommand(versionCmd)
}

// newLogger creates a JSON logger on stderr at the level given by --log-level.
func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	raw, _ := cmd.Flags().GetString("log-level")

	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(raw))); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", raw)
	}

	return slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	})), nil
}
