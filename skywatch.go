package skywatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/skywatch/internal/poller"
	"github.com/jpalmerr/skywatch/internal/server"
	"github.com/jpalmerr/skywatch/internal/store"
	"github.com/jpalmerr/skywatch/opensky"
)

const defaultPort = 8080

// ErrNotRunning is returned by [Tracker.SetRegion] outside [Tracker.Start].
var ErrNotRunning = errors.New("tracker is not running")

// OverlapPolicy decides whether a refresh tick may fetch a region that
// already has a fetch outstanding.
type OverlapPolicy = poller.OverlapPolicy

const (
	// OverlapAllow issues every refresh; slow responses can overlap.
	OverlapAllow = poller.OverlapAllow
	// OverlapCoalesce skips a refresh while a fetch for the region is outstanding.
	OverlapCoalesce = poller.OverlapCoalesce
)

// ParseOverlapPolicy parses "allow" or "coalesce". Empty means allow.
func ParseOverlapPolicy(s string) (OverlapPolicy, error) {
	return poller.ParseOverlapPolicy(s)
}

// Stats is a point-in-time snapshot of the tracker's fetch counters.
type Stats = poller.Stats

// Update is the outcome of one fetch, passed to result callbacks.
type Update struct {
	// FetchID uniquely identifies the fetch in logs.
	FetchID string

	// Region is the region that was fetched.
	Region opensky.Region

	// Trigger is "settled" for the first fetch after a region change and
	// "refresh" for periodic re-fetches.
	Trigger string

	// States is the decoded snapshot. Zero when Err is set.
	States opensky.States

	// Err is an *opensky.TransportError or *opensky.DecodeError on failure.
	Err error

	Latency     time.Duration
	CompletedAt time.Time
}

// Snapshot is the latest aircraft set, as served by the API.
type Snapshot struct {
	Region    opensky.Region
	Time      int64
	FetchID   string
	Aircraft  []opensky.StateVector
	UpdatedAt time.Time

	// Err is the message of the latest failed fetch, empty once a fetch
	// succeeds again.
	Err string
}

// Tracker polls OpenSky for the aircraft in a moving region of interest.
//
// Tracker wires the debouncing scheduler, the OpenSky client, the snapshot
// store and the HTTP API together. It is created using [New] with
// functional options and started with [Tracker.Start].
//
// The typical lifecycle is:
//
//	tr, err := skywatch.New(skywatch.WithInitialRegion(opensky.RegionAround(52.5, 13.4)))
//	if err != nil {
//	    slog.Error("failed to create tracker", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	tr.Start(ctx) // blocks until context cancelled
//
// While running, report every observed movement with [Tracker.SetRegion].
type Tracker struct {
	client    *poller.Client
	scheduler *poller.Scheduler
	store     *store.MemoryStore

	initialRegion *opensky.Region
	port          int
	serve         bool
	logger        *slog.Logger
	callbacks     []func(Update)

	running atomic.Bool
}

// New creates a new [Tracker] with the given options.
//
// Defaults:
//   - API: https://opensky-network.org/api, anonymous, 10 second timeout
//   - Refresh interval: 5 seconds
//   - Stability window: 1 second
//   - Overlap policy: allow
//   - Port: 8080
func New(opts ...Option) (*Tracker, error) {
	cfg := &trackerConfig{
		port:  defaultPort,
		serve: true,
		burst: 1,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	t := &Tracker{
		store:         store.NewMemoryStore(),
		initialRegion: cfg.initialRegion,
		port:          cfg.port,
		serve:         cfg.serve,
		logger:        logger,
		callbacks:     cfg.callbacks,
	}

	t.client = poller.NewClient(poller.ClientConfig{
		BaseURL:   cfg.baseURL,
		Username:  cfg.username,
		Password:  cfg.password,
		Timeout:   cfg.timeout,
		RateLimit: cfg.rateLimit,
		Burst:     cfg.burst,
		UserAgent: cfg.userAgent,
	})
	t.scheduler = poller.NewScheduler(t.client, poller.SchedulerConfig{
		RefreshInterval: cfg.refreshInterval,
		StabilityWindow: cfg.stabilityWindow,
		Overlap:         cfg.overlap,
	}, t.handleResult, logger)

	return t, nil
}

// Start begins tracking and serving the API.
//
// Start is a blocking call that runs until the provided context is cancelled.
// If an initial region was configured it is reported immediately. Cancelling
// the context stops the scheduler: pending stability windows are dropped,
// in-flight fetches are abandoned and no callback runs after Start returns.
//
// Returns nil on graceful shutdown. Returns an error if the tracker is
// already running or the HTTP server fails to start.
func (t *Tracker) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}
	if !t.running.CompareAndSwap(false, true) {
		return errors.New("tracker is already running")
	}
	defer t.running.Store(false)

	t.logger.Info("skywatch starting", "serve", t.serve, "port", t.port)

	t.scheduler.Start(ctx)
	defer func() {
		t.scheduler.Stop()
		t.client.Close()
	}()

	if t.serve {
		httpServer := server.NewServer(t.store, t.scheduler, t.port, t.logger)
		if err := httpServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	if t.initialRegion != nil {
		t.scheduler.RegionChanged(*t.initialRegion)
	}

	<-ctx.Done()
	t.logger.Info("skywatch stopped")
	return nil
}

// SetRegion reports a new region of interest. Call it on every observed
// movement; fetching waits until the region has been stable for the
// stability window. SetRegion does not wait for the scheduler and may be
// called from a result callback.
//
// Returns an error if the region is invalid or the tracker is not running.
func (t *Tracker) SetRegion(region opensky.Region) error {
	if err := region.Validate(); err != nil {
		return err
	}
	if !t.scheduler.RegionChanged(region) {
		return ErrNotRunning
	}
	return nil
}

// Region returns the most recently committed region.
func (t *Tracker) Region() (opensky.Region, bool) {
	return t.scheduler.LastRegion()
}

// State returns the debounce state: "idle", "settling" or "stable".
func (t *Tracker) State() string {
	return t.scheduler.State().String()
}

// Latest returns the current aircraft snapshot, or false before the first
// fetch completed. The returned slice is a copy.
func (t *Tracker) Latest() (Snapshot, bool) {
	s, ok := t.store.Latest()
	if !ok {
		return Snapshot{}, false
	}
	snap := Snapshot{
		Region:    s.Region,
		Time:      s.Time,
		FetchID:   s.FetchID,
		Aircraft:  s.Aircraft,
		UpdatedAt: s.UpdatedAt,
	}
	if s.Error != nil {
		snap.Err = *s.Error
	}
	return snap, true
}

// Stats returns the fetch counters.
func (t *Tracker) Stats() Stats {
	return t.scheduler.Stats()
}

// Port returns the configured HTTP port.
func (t *Tracker) Port() int {
	return t.port
}

// handleResult runs on the scheduler goroutine for every completed fetch.
func (t *Tracker) handleResult(res poller.Result) {
	// store update first (callbacks fire after data is stored)
	if res.Err != nil {
		t.store.RecordFailure(res.Err.Error(), res.CompletedAt)
	} else {
		t.store.Update(store.Snapshot{
			Region:    res.Region,
			Time:      res.States.Time,
			FetchID:   res.FetchID,
			Aircraft:  res.States.Aircraft,
			UpdatedAt: res.CompletedAt,
		})
	}

	if len(t.callbacks) == 0 {
		return
	}
	update := Update{
		FetchID:     res.FetchID,
		Region:      res.Region,
		Trigger:     string(res.Trigger),
		States:      res.States,
		Err:         res.Err,
		Latency:     res.Latency,
		CompletedAt: res.CompletedAt,
	}
	for _, cb := range t.callbacks {
		invokeCallbackSafe(cb, update, t.logger)
	}
}

// invokeCallbackSafe calls a result callback with panic recovery.
// Panics are logged with a correlation ID but do not propagate.
func invokeCallbackSafe(cb func(Update), update Update, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("result callback panicked",
				"correlation_id", uuid.NewString(),
				"panic", fmt.Sprintf("%v", r),
				"fetch_id", update.FetchID,
			)
		}
	}()
	cb(update)
}
