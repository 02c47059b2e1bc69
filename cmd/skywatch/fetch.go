package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/skywatch/config"
	"github.com/jpalmerr/skywatch/internal/poller"
	"github.com/jpalmerr/skywatch/opensky"
)

// fetchCmd performs a single states request and prints the result.
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch the aircraft in a region once",
	Long: `Fetch the current state vectors for one region and print them.

API settings come from --config when given, including its rate limit.
Credentials are taken from the config's api.username and api.password; when
the config sets none, or no config is given, OPENSKY_USERNAME and
OPENSKY_PASSWORD are used if both are set. --base-url overrides either.

Example:
  skywatch fetch --lat 52.5 --lon 13.4
  skywatch fetch --lat 48.9 --lon 2.35 --span 2 --positioned --json`,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().Float64("lat", 0, "center latitude (required)")
	fetchCmd.Flags().Float64("lon", 0, "center longitude (required)")
	fetchCmd.Flags().Float64("span", opensky.DefaultSpan, "latitude and longitude span in degrees")
	fetchCmd.Flags().StringP("config", "c", "", "path to config file for API settings")
	fetchCmd.Flags().String("base-url", "", "API root, overrides the config")
	fetchCmd.Flags().Bool("positioned", false, "only print aircraft with a position")
	fetchCmd.Flags().Bool("json", false, "print the decoded states as JSON")
	_ = fetchCmd.MarkFlagRequired("lat")
	_ = fetchCmd.MarkFlagRequired("lon")
}

func runFetch(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	lat, _ := flags.GetFloat64("lat")
	lon, _ := flags.GetFloat64("lon")
	span, _ := flags.GetFloat64("span")

	region, err := opensky.NewRegion(lat, lon, span, span)
	if err != nil {
		return err
	}

	clientCfg, err := fetchClientConfig(cmd)
	if err != nil {
		return err
	}

	client := poller.NewClient(clientCfg)
	defer client.Close()

	states, err := client.FetchStates(cmd.Context(), region)
	if err != nil {
		return err
	}

	if positioned, _ := flags.GetBool("positioned"); positioned {
		states.Aircraft = opensky.Positioned(states.Aircraft)
	}

	if asJSON, _ := flags.GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(states)
	}
	return printStates(cmd.OutOrStdout(), region, states)
}

// fetchClientConfig resolves API settings from the environment, --config and
// --base-url, in increasing precedence.
func fetchClientConfig(cmd *cobra.Command) (poller.ClientConfig, error) {
	var clientCfg poller.ClientConfig
	if user, pass := os.Getenv("OPENSKY_USERNAME"), os.Getenv("OPENSKY_PASSWORD"); user != "" && pass != "" {
		clientCfg.Username, clientCfg.Password = user, pass
	}
	flags := cmd.Flags()
	if configFile, _ := flags.GetString("config"); configFile != "" {
		cfg, err := config.Load(configFile)
		if err != nil {
			return poller.ClientConfig{}, fmt.Errorf("failed to load config: %w", err)
		}
		clientCfg.BaseURL = cfg.API.BaseURL
		clientCfg.Timeout = cfg.API.Timeout.Duration()
		clientCfg.RateLimit = cfg.API.RateLimit
		clientCfg.Burst = cfg.API.Burst
		if cfg.API.Username != "" {
			clientCfg.Username = cfg.API.Username
			clientCfg.Password = cfg.API.Password
		}
	}
	if baseURL, _ := flags.GetString("base-url"); baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	return clientCfg, nil
}

// printStates writes one aligned row per aircraft.
func printStates(out io.Writer, region opensky.Region, states opensky.States) error {
	fmt.Fprintf(out, "%d aircraft in %s at %s\n\n",
		len(states.Aircraft), region, states.Timestamp().UTC().Format("2006-01-02 15:04:05Z"))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ICAO24\tCALLSIGN\tCOUNTRY\tLAT\tLON\tALT(m)\tSPEED(m/s)\tSOURCE")
	for _, sv := range states.Aircraft {
		source := "-"
		if s, ok := sv.Source(); ok {
			source = s.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			str(sv.ICAO24), sv.Label(), str(sv.OriginCountry),
			num(sv.Latitude, 4), num(sv.Longitude, 4),
			num(sv.BaroAltitude, 0), num(sv.Velocity, 1), source)
	}
	return w.Flush()
}

func str(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func num(f *float64, prec int) string {
	if f == nil {
		return "-"
	}
	return fmt.Sprintf("%.*f", prec, *f)
}
