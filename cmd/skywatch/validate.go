package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/skywatch/config"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a skywatch configuration file without starting the server.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  skywatch validate -c config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	baseURL := cfg.API.BaseURL
	if baseURL == "" {
		baseURL = "default"
	}
	auth := "anonymous"
	if cfg.API.Username != "" {
		auth = "basic (" + cfg.API.Username + ")"
	}
	rate := "unlimited"
	if cfg.API.RateLimit > 0 {
		rate = fmt.Sprintf("%g req/s, burst %d", cfg.API.RateLimit, cfg.API.Burst)
	}
	overlap := cfg.Schedule.Overlap
	if overlap == "" {
		overlap = "allow"
	}
	region := "none (waiting for PUT /api/region)"
	if cfg.Region != nil {
		region = cfg.Region.Region().String()
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:             %d\n", cfg.Port)
	fmt.Fprintf(out, "  API:              %s\n", baseURL)
	fmt.Fprintf(out, "  Auth:             %s\n", auth)
	fmt.Fprintf(out, "  Timeout:          %s\n", cfg.API.Timeout.Duration())
	fmt.Fprintf(out, "  Rate limit:       %s\n", rate)
	fmt.Fprintf(out, "  Refresh interval: %s\n", cfg.Schedule.RefreshInterval.Duration())
	fmt.Fprintf(out, "  Stability window: %s\n", cfg.Schedule.StabilityWindow.Duration())
	fmt.Fprintf(out, "  Overlap:          %s\n", overlap)
	fmt.Fprintf(out, "  Initial region:   %s\n", region)

	return nil
}
