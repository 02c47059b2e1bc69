// Package config provides YAML configuration parsing for skywatch.
//
// This package enables running skywatch as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	port: 8080
//
//	api:
//	  base_url: https://opensky-network.org/api
//	  username: ${OPENSKY_USERNAME:-}
//	  password: ${OPENSKY_PASSWORD:-}
//	  timeout: 10s
//	  rate_limit: 0.2
//
//	schedule:
//	  refresh_interval: 5s
//	  stability_window: 1s
//	  overlap: allow
//
//	region:
//	  latitude: 52.5
//	  longitude: 13.4
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/skywatch"
	"github.com/jpalmerr/skywatch/opensky"
)

const (
	// minRefreshInterval keeps a misconfigured binary from hammering the API.
	minRefreshInterval = 1 * time.Second

	defaultPort            = 8080
	defaultRefreshInterval = 5 * time.Second
	defaultStabilityWindow = 1 * time.Second
	defaultTimeout         = 10 * time.Second
)

// Config is the root configuration structure for skywatch.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	API      APIConfig      `yaml:"api"`
	Schedule ScheduleConfig `yaml:"schedule"`

	// Region is the region fetched on startup. Omit to wait for the first
	// PUT /api/region.
	Region *RegionConfig `yaml:"region"`
}

// APIConfig configures access to the OpenSky API.
type APIConfig struct {
	// BaseURL is the API root. Defaults to the public OpenSky API.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	BaseURL string `yaml:"base_url"`

	// Username and Password enable basic auth. Both support environment
	// variable substitution and must be set together.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Timeout bounds each fetch. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`

	// RateLimit is the maximum requests per second; 0 means unlimited.
	RateLimit float64 `yaml:"rate_limit"`

	// Burst is the number of requests allowed at once. Defaults to 1.
	Burst int `yaml:"burst"`
}

// ScheduleConfig configures fetch timing.
type ScheduleConfig struct {
	// RefreshInterval is how often the confirmed region is re-fetched.
	// Defaults to 5s; must be at least 1s.
	RefreshInterval Duration `yaml:"refresh_interval"`

	// StabilityWindow is how long a region must stay unchanged before it
	// is fetched. Defaults to 1s.
	StabilityWindow Duration `yaml:"stability_window"`

	// Overlap is "allow" (default) or "coalesce".
	Overlap string `yaml:"overlap"`
}

// RegionConfig is a region center with optional spans in degrees. Spans
// default to 5 degrees.
type RegionConfig struct {
	Latitude       float64 `yaml:"latitude"`
	Longitude      float64 `yaml:"longitude"`
	LatitudeDelta  float64 `yaml:"latitude_delta"`
	LongitudeDelta float64 `yaml:"longitude_delta"`
}

// Region converts the configuration into an [opensky.Region].
func (r RegionConfig) Region() opensky.Region {
	region := opensky.RegionAround(r.Latitude, r.Longitude)
	if r.LatitudeDelta != 0 {
		region.LatitudeDelta = r.LatitudeDelta
	}
	if r.LongitudeDelta != 0 {
		region.LongitudeDelta = r.LongitudeDelta
	}
	return region
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		varName := submatches[1]
		hasDefault := submatches[2] != ""
		defaultVal := submatches[3]

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in api.base_url, api.username and
// api.password. Defaults are applied before validation.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = Duration(defaultTimeout)
	}
	if c.API.Burst == 0 {
		c.API.Burst = 1
	}
	if c.Schedule.RefreshInterval == 0 {
		c.Schedule.RefreshInterval = Duration(defaultRefreshInterval)
	}
	if c.Schedule.StabilityWindow == 0 {
		c.Schedule.StabilityWindow = Duration(defaultStabilityWindow)
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	for _, f := range []struct {
		name  string
		value *string
	}{
		{"api.base_url", &c.API.BaseURL},
		{"api.username", &c.API.Username},
		{"api.password", &c.API.Password},
	} {
		expanded, err := expandEnvVars(*f.value)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.value = expanded
	}

	if c.API.BaseURL != "" {
		parsedURL, err := url.Parse(c.API.BaseURL)
		if err != nil {
			return fmt.Errorf("api.base_url: invalid url: %w", err)
		}
		if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			return fmt.Errorf("api.base_url: scheme must be http or https, got %q", parsedURL.Scheme)
		}
		if parsedURL.Host == "" {
			return fmt.Errorf("api.base_url: host is required")
		}
	}
	if (c.API.Username == "") != (c.API.Password == "") {
		return fmt.Errorf("api: username and password must be set together")
	}
	if c.API.Timeout.Duration() < 0 {
		return fmt.Errorf("api.timeout cannot be negative, got %s", c.API.Timeout.Duration())
	}
	if c.API.RateLimit < 0 {
		return fmt.Errorf("api.rate_limit cannot be negative, got %g", c.API.RateLimit)
	}
	if c.API.Burst < 1 {
		return fmt.Errorf("api.burst must be at least 1, got %d", c.API.Burst)
	}

	if c.Schedule.RefreshInterval.Duration() < minRefreshInterval {
		return fmt.Errorf("schedule.refresh_interval must be at least %s, got %s",
			minRefreshInterval, c.Schedule.RefreshInterval.Duration())
	}
	if c.Schedule.StabilityWindow.Duration() <= 0 {
		return fmt.Errorf("schedule.stability_window must be positive, got %s", c.Schedule.StabilityWindow.Duration())
	}
	if _, err := skywatch.ParseOverlapPolicy(c.Schedule.Overlap); err != nil {
		return fmt.Errorf("schedule.overlap: %w", err)
	}

	if c.Region != nil {
		if err := c.Region.Region().Validate(); err != nil {
			return fmt.Errorf("region: %w", err)
		}
	}

	return nil
}
