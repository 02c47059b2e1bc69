package skywatch

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/jpalmerr/skywatch/opensky"
)

// trackerConfig holds mutable state during Tracker construction.
type trackerConfig struct {
	baseURL         string
	username        string
	password        string
	timeout         time.Duration
	rateLimit       float64
	burst           int
	userAgent       string
	refreshInterval time.Duration
	stabilityWindow time.Duration
	overlap         OverlapPolicy
	initialRegion   *opensky.Region
	port            int
	serve           bool
	logger          *slog.Logger
	callbacks       []func(Update)
}

// Option is a function that configures a [Tracker] instance during construction.
//
// Options return an error if validation fails.
type Option func(*trackerConfig) error

// WithBaseURL sets the OpenSky API root, e.g. "https://opensky-network.org/api".
//
// Returns an error if the URL is not absolute http(s).
func WithBaseURL(raw string) Option {
	return func(cfg *trackerConfig) error {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("base url must be an absolute http(s) url, got %q", raw)
		}
		cfg.baseURL = raw
		return nil
	}
}

// WithCredentials enables HTTP basic auth against the API.
//
// Anonymous access works with lower rate limits. Credentials should come
// from the environment or a secret store, never from source.
func WithCredentials(username, password string) Option {
	return func(cfg *trackerConfig) error {
		if (username == "") != (password == "") {
			return errors.New("username and password must be set together")
		}
		cfg.username = username
		cfg.password = password
		return nil
	}
}

// WithTimeout bounds each fetch. Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithTimeout(d time.Duration) Option {
	return func(cfg *trackerConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithRateLimit caps outbound requests to rps per second with the given burst.
//
// Region changes and refresh ticks that exceed the limit wait for a token,
// up to the fetch timeout. A rate of 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(cfg *trackerConfig) error {
		if rps < 0 {
			return errors.New("rate limit cannot be negative")
		}
		if burst < 1 {
			return errors.New("burst must be at least 1")
		}
		cfg.rateLimit = rps
		cfg.burst = burst
		return nil
	}
}

// WithUserAgent overrides the User-Agent header sent to the API.
func WithUserAgent(ua string) Option {
	return func(cfg *trackerConfig) error {
		cfg.userAgent = ua
		return nil
	}
}

// WithRefreshInterval sets how often the confirmed region is re-fetched.
// Defaults to 5 seconds.
//
// Returns an error if the duration is zero or negative.
func WithRefreshInterval(d time.Duration) Option {
	return func(cfg *trackerConfig) error {
		if d <= 0 {
			return errors.New("refresh interval must be positive")
		}
		cfg.refreshInterval = d
		return nil
	}
}

// WithStabilityWindow sets how long a region must stay unchanged before it
// is fetched. Defaults to 1 second.
//
// Returns an error if the duration is zero or negative.
func WithStabilityWindow(d time.Duration) Option {
	return func(cfg *trackerConfig) error {
		if d <= 0 {
			return errors.New("stability window must be positive")
		}
		cfg.stabilityWindow = d
		return nil
	}
}

// WithOverlapPolicy decides whether refresh ticks may overlap a fetch that
// is still outstanding. Defaults to [OverlapAllow].
func WithOverlapPolicy(p OverlapPolicy) Option {
	return func(cfg *trackerConfig) error {
		if p != OverlapAllow && p != OverlapCoalesce {
			return fmt.Errorf("unknown overlap policy %d", p)
		}
		cfg.overlap = p
		return nil
	}
}

// WithInitialRegion reports region as soon as the tracker starts, so the
// first fetch happens one stability window after [Tracker.Start].
//
// Returns an error if the region is invalid.
func WithInitialRegion(region opensky.Region) Option {
	return func(cfg *trackerConfig) error {
		if err := region.Validate(); err != nil {
			return err
		}
		cfg.initialRegion = &region
		return nil
	}
}

// WithPort sets the HTTP port for the API server. Defaults to 8080.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *trackerConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		cfg.serve = true
		return nil
	}
}

// WithoutServer disables the HTTP API. The tracker still fetches and invokes
// result callbacks.
func WithoutServer() Option {
	return func(cfg *trackerConfig) error {
		cfg.serve = false
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the Tracker instance.
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *trackerConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithResultCallback registers a function to be called on every fetch
// completion, successful or not.
//
// Multiple callbacks may be registered; they execute in registration order,
// after the snapshot served by the API has been updated.
//
// IMPORTANT: Callbacks must be non-blocking. They run on the scheduler's
// goroutine; a slow callback delays every later result. Calling
// [Tracker.SetRegion] from a callback is allowed. Panics within callbacks
// are recovered and logged.
//
// Example:
//
//	tr, err := skywatch.New(
//	    skywatch.WithResultCallback(func(u skywatch.Update) {
//	        if u.Err != nil {
//	            return
//	        }
//	        for _, sv := range u.States.Aircraft {
//	            fmt.Println(sv.Label())
//	        }
//	    }),
//	)
//
// Nil callbacks are silently ignored.
func WithResultCallback(cb func(Update)) Option {
	return func(cfg *trackerConfig) error {
		if cb == nil {
			return nil
		}
		cfg.callbacks = append(cfg.callbacks, cb)
		return nil
	}
}
