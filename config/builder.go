package config

import (
	"github.com/jpalmerr/skywatch"
)

// BuildOptions converts parsed configuration into SDK options.
//
// The returned options do not include a logger; callers append
// [skywatch.WithLogger] themselves.
func BuildOptions(cfg *Config) ([]skywatch.Option, error) {
	overlap, err := skywatch.ParseOverlapPolicy(cfg.Schedule.Overlap)
	if err != nil {
		return nil, err
	}

	opts := []skywatch.Option{
		skywatch.WithPort(cfg.Port),
		skywatch.WithTimeout(cfg.API.Timeout.Duration()),
		skywatch.WithRateLimit(cfg.API.RateLimit, cfg.API.Burst),
		skywatch.WithRefreshInterval(cfg.Schedule.RefreshInterval.Duration()),
		skywatch.WithStabilityWindow(cfg.Schedule.StabilityWindow.Duration()),
		skywatch.WithOverlapPolicy(overlap),
	}

	if cfg.API.BaseURL != "" {
		opts = append(opts, skywatch.WithBaseURL(cfg.API.BaseURL))
	}
	if cfg.API.Username != "" {
		opts = append(opts, skywatch.WithCredentials(cfg.API.Username, cfg.API.Password))
	}
	if cfg.Region != nil {
		opts = append(opts, skywatch.WithInitialRegion(cfg.Region.Region()))
	}

	return opts, nil
}
