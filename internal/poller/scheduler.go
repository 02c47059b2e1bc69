package poller

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/skywatch/opensky"
)

const (
	// DefaultRefreshInterval is how often the confirmed region is re-fetched.
	DefaultRefreshInterval = 5 * time.Second

	// DefaultStabilityWindow is how long a region must stay unchanged before
	// it is committed and fetched.
	DefaultStabilityWindow = 1 * time.Second
)

// State is the scheduler's debounce state.
type State int

const (
	// StateIdle means no region has been committed yet.
	StateIdle State = iota
	// StateSettling means the region changed and the stability window is running.
	StateSettling
	// StateStable means a region is committed and refresh ticks fetch it.
	StateStable
)

func (s State) String() string {
	switch s {
	case StateSettling:
		return "settling"
	case StateStable:
		return "stable"
	default:
		return "idle"
	}
}

// OverlapPolicy decides whether a refresh tick may fetch a region that
// already has a fetch outstanding.
type OverlapPolicy int

const (
	// OverlapAllow issues the fetch anyway; slow responses can overlap.
	OverlapAllow OverlapPolicy = iota
	// OverlapCoalesce skips the tick while a fetch for the same region is outstanding.
	OverlapCoalesce
)

func (p OverlapPolicy) String() string {
	if p == OverlapCoalesce {
		return "coalesce"
	}
	return "allow"
}

// ParseOverlapPolicy parses "allow" or "coalesce". Empty means allow.
func ParseOverlapPolicy(s string) (OverlapPolicy, error) {
	switch s {
	case "", "allow":
		return OverlapAllow, nil
	case "coalesce":
		return OverlapCoalesce, nil
	default:
		return OverlapAllow, fmt.Errorf("overlap policy must be allow or coalesce, got %q", s)
	}
}

// Trigger records why a fetch was issued.
type Trigger string

const (
	TriggerSettled Trigger = "settled"
	TriggerRefresh Trigger = "refresh"
)

// Fetcher retrieves the states for a region. [Client] is the production
// implementation.
type Fetcher interface {
	FetchStates(ctx context.Context, region opensky.Region) (opensky.States, error)
}

// Result is the outcome of one fetch, delivered to the scheduler's callback.
type Result struct {
	// FetchID uniquely identifies the fetch in logs.
	FetchID string

	// Region is the region that was fetched.
	Region opensky.Region

	Trigger Trigger

	// States is the decoded snapshot. Zero when Err is set.
	States opensky.States

	// Err is an *opensky.TransportError or *opensky.DecodeError on failure.
	Err error

	// Latency is the time from issue to completion.
	Latency time.Duration

	CompletedAt time.Time
}

// SchedulerConfig holds the timing settings of a [Scheduler]. Zero values
// fall back to the package defaults.
type SchedulerConfig struct {
	RefreshInterval time.Duration
	StabilityWindow time.Duration
	Overlap         OverlapPolicy

	// Clock defaults to RealClock.
	Clock Clock
}

// Stats is a point-in-time snapshot of scheduler counters.
type Stats struct {
	RegionChanges   int64 `json:"region_changes"`
	RegionsSettled  int64 `json:"regions_settled"`
	FetchesIssued   int64 `json:"fetches_issued"`
	FetchesOK       int64 `json:"fetches_ok"`
	FetchesFailed   int64 `json:"fetches_failed"`
	TicksSkipped    int64 `json:"ticks_skipped"`
	TicksCoalesced  int64 `json:"ticks_coalesced"`
	CallbackPanics  int64 `json:"callback_panics"`
	FetchesInFlight int64 `json:"fetches_in_flight"`
}

type counters struct {
	regionChanges  atomic.Int64
	regionsSettled atomic.Int64
	fetchesIssued  atomic.Int64
	fetchesOK      atomic.Int64
	fetchesFailed  atomic.Int64
	ticksSkipped   atomic.Int64
	ticksCoalesced atomic.Int64
	callbackPanics atomic.Int64
	inFlight       atomic.Int64
}

// Scheduler decides when to fetch and for which region.
//
// Region changes restart a stability window; once the window elapses
// without another change, the region is committed and fetched immediately.
// Independently, a refresh ticker re-fetches the committed region, skipping
// ticks while the region is still moving.
//
// Each running scheduler has one loop goroutine that receives timer
// expiries, refresh ticks and fetch completions as events. Region changes
// are applied by the caller under a short per-run lock and never wait for
// the loop, so the result callback may call RegionChanged. The callback is
// invoked from the loop goroutine, in fetch completion order, so it must
// not block and must not call Stop.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Scheduler struct {
	fetcher  Fetcher
	onResult func(Result)
	logger   *slog.Logger

	refreshInterval time.Duration
	stabilityWindow time.Duration
	overlap         OverlapPolicy
	clock           Clock

	// lifecycle serialises Start and Stop including their waits
	lifecycle sync.Mutex

	mu  sync.Mutex
	run *run

	// written only by the loop goroutine, read by introspection methods
	stateMu    sync.RWMutex
	state      State
	lastRegion opensky.Region
	hasRegion  bool

	stats counters
}

// run is one Start..Stop lifetime of a scheduler.
type run struct {
	ctx    context.Context
	cancel context.CancelFunc

	settled   chan uint64
	completed chan Result
	loopDone  chan struct{}
	fetches   sync.WaitGroup

	// debounce state, shared by RegionChanged and the loop
	debounceMu sync.Mutex
	pending    opensky.Region
	seq        uint64
	timer      Timer
	closed     bool

	// owned by the loop goroutine
	inflight map[opensky.Region]int
}

// NewScheduler creates a new [Scheduler].
//
// Parameters:
//   - fetcher: performs the network fetch for a region
//   - cfg: timing settings; zero fields use the defaults
//   - onResult: receives every fetch outcome; may be nil
//   - logger: logger for scheduler events
//
// The scheduler does nothing until [Scheduler.Start] is called.
func NewScheduler(fetcher Fetcher, cfg SchedulerConfig, onResult func(Result), logger *slog.Logger) *Scheduler {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.StabilityWindow <= 0 {
		cfg.StabilityWindow = DefaultStabilityWindow
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		fetcher:         fetcher,
		onResult:        onResult,
		logger:          logger,
		refreshInterval: cfg.RefreshInterval,
		stabilityWindow: cfg.StabilityWindow,
		overlap:         cfg.Overlap,
		clock:           cfg.Clock,
	}
}

// Start begins periodic refresh in a background goroutine.
//
// Start is non-blocking. If the scheduler is already running, the previous
// run is stopped first (its timers cancelled and in-flight fetches
// abandoned) and a fresh run is armed. The committed region survives a
// restart; a region that was still settling does not.
//
// Cancelling ctx has the same effect as [Scheduler.Stop], except that the
// caller does not wait. If ctx is nil, context.Background() is used.
func (s *Scheduler) Start(ctx context.Context) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.stopLocked()

	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		ctx:       runCtx,
		cancel:    cancel,
		settled:   make(chan uint64),
		completed: make(chan Result),
		loopDone:  make(chan struct{}),
		inflight:  make(map[opensky.Region]int),
	}

	s.stateMu.Lock()
	if s.hasRegion {
		s.state = StateStable
	} else {
		s.state = StateIdle
	}
	s.stateMu.Unlock()

	ticker := s.clock.NewTicker(s.refreshInterval)

	s.mu.Lock()
	s.run = r
	s.mu.Unlock()

	go s.loop(r, ticker)

	s.logger.Info("scheduler started",
		"refresh_interval", s.refreshInterval.String(),
		"stability_window", s.stabilityWindow.String(),
		"overlap", s.overlap.String(),
	)
}

// Stop cancels all timers and in-flight fetches and waits for the loop to
// exit. Once Stop returns, no fetch is issued and the callback is not
// invoked again until the next [Scheduler.Start].
//
// Stop is idempotent and safe to call before Start.
func (s *Scheduler) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.stopLocked() {
		s.logger.Info("scheduler stopped")
	}
}

// stopLocked tears down the current run. Caller holds s.lifecycle.
func (s *Scheduler) stopLocked() bool {
	s.mu.Lock()
	r := s.run
	s.run = nil
	s.mu.Unlock()

	if r == nil {
		return false
	}

	r.cancel()
	<-r.loopDone
	r.fetches.Wait()

	s.stateMu.Lock()
	if s.state == StateSettling {
		if s.hasRegion {
			s.state = StateStable
		} else {
			s.state = StateIdle
		}
	}
	s.stateMu.Unlock()
	return true
}

// RegionChanged reports a new region of interest. Call it on every observed
// movement; the scheduler debounces.
//
// RegionChanged never waits for the loop and may be called from the result
// callback. The change is applied, and State reports settling, by the time
// it returns. It returns false, and the change is ignored, when the region
// is invalid or the scheduler is not running.
func (s *Scheduler) RegionChanged(region opensky.Region) bool {
	if err := region.Validate(); err != nil {
		s.logger.Warn("region change ignored, invalid region", "error", err.Error())
		return false
	}

	s.mu.Lock()
	r := s.run
	s.mu.Unlock()

	if r == nil {
		s.logger.Debug("region change ignored, scheduler not running", "region", region.String())
		return false
	}

	r.debounceMu.Lock()
	defer r.debounceMu.Unlock()

	if r.closed || r.ctx.Err() != nil {
		return false
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	r.seq++
	armed := r.seq
	r.pending = region
	r.timer = s.clock.AfterFunc(s.stabilityWindow, func() {
		select {
		case r.settled <- armed:
		case <-r.ctx.Done():
		}
	})
	s.setState(StateSettling)
	s.stats.regionChanges.Add(1)
	return true
}

// settle commits the pending region if n is the latest armed window.
func (s *Scheduler) settle(r *run, n uint64) (opensky.Region, bool) {
	r.debounceMu.Lock()
	defer r.debounceMu.Unlock()
	if n != r.seq || r.closed {
		return opensky.Region{}, false
	}
	r.timer = nil
	s.commit(r.pending)
	return r.pending, true
}

// close stops the armed stability timer and rejects later region changes.
func (r *run) close() {
	r.debounceMu.Lock()
	defer r.debounceMu.Unlock()
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// State returns the current debounce state.
func (s *Scheduler) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// LastRegion returns the most recently committed region.
func (s *Scheduler) LastRegion() (opensky.Region, bool) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.lastRegion, s.hasRegion
}

// Running reports whether the scheduler has an active run.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run != nil && s.run.ctx.Err() == nil
}

// Stats returns a snapshot of the scheduler's counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		RegionChanges:   s.stats.regionChanges.Load(),
		RegionsSettled:  s.stats.regionsSettled.Load(),
		FetchesIssued:   s.stats.fetchesIssued.Load(),
		FetchesOK:       s.stats.fetchesOK.Load(),
		FetchesFailed:   s.stats.fetchesFailed.Load(),
		TicksSkipped:    s.stats.ticksSkipped.Load(),
		TicksCoalesced:  s.stats.ticksCoalesced.Load(),
		CallbackPanics:  s.stats.callbackPanics.Load(),
		FetchesInFlight: s.stats.inFlight.Load(),
	}
}

// loop is the single owner of the debounce state for one run.
func (s *Scheduler) loop(r *run, ticker Ticker) {
	defer close(r.loopDone)
	defer ticker.Stop()
	defer r.close()

	for {
		select {
		case <-r.ctx.Done():
			return

		case n := <-r.settled:
			if r.ctx.Err() != nil {
				return
			}
			pending, ok := s.settle(r, n)
			if !ok {
				// superseded by a newer region change
				continue
			}
			s.stats.regionsSettled.Add(1)
			s.logger.Debug("region settled", "region", pending.String())
			s.issue(r, pending, TriggerSettled)

		case <-ticker.C():
			if r.ctx.Err() != nil {
				return
			}
			s.refresh(r)

		case res := <-r.completed:
			if r.ctx.Err() != nil {
				return
			}
			if r.inflight[res.Region]--; r.inflight[res.Region] <= 0 {
				delete(r.inflight, res.Region)
			}
			s.deliver(res)
		}
	}
}

// refresh handles one refresh tick.
func (s *Scheduler) refresh(r *run) {
	s.stateMu.RLock()
	state, region := s.state, s.lastRegion
	s.stateMu.RUnlock()

	switch state {
	case StateSettling:
		s.stats.ticksSkipped.Add(1)
		s.logger.Debug("refresh skipped, region moving")
		return
	case StateIdle:
		return
	}

	if s.overlap == OverlapCoalesce && r.inflight[region] > 0 {
		s.stats.ticksCoalesced.Add(1)
		s.logger.Debug("refresh coalesced, fetch outstanding", "region", region.String())
		return
	}

	s.issue(r, region, TriggerRefresh)
}

func (s *Scheduler) setState(state State) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
}

func (s *Scheduler) commit(region opensky.Region) {
	s.stateMu.Lock()
	s.state = StateStable
	s.lastRegion = region
	s.hasRegion = true
	s.stateMu.Unlock()
}

// issue starts a fetch in its own goroutine; the completion is posted back
// to the loop.
func (s *Scheduler) issue(r *run, region opensky.Region, trigger Trigger) {
	id := uuid.NewString()
	r.inflight[region]++
	r.fetches.Add(1)
	s.stats.fetchesIssued.Add(1)
	s.stats.inFlight.Add(1)

	s.logger.Debug("fetch issued", "fetch_id", id, "region", region.String(), "trigger", string(trigger))

	go func() {
		defer r.fetches.Done()
		defer s.stats.inFlight.Add(-1)

		start := s.clock.Now()
		states, err := s.fetcher.FetchStates(r.ctx, region)
		completed := s.clock.Now()

		res := Result{
			FetchID:     id,
			Region:      region,
			Trigger:     trigger,
			States:      states,
			Err:         err,
			Latency:     completed.Sub(start),
			CompletedAt: completed,
		}
		if err != nil {
			res.States = opensky.States{}
		}

		select {
		case r.completed <- res:
		case <-r.ctx.Done():
		}
	}()
}

// deliver records and forwards one completed fetch.
func (s *Scheduler) deliver(res Result) {
	attrs := []any{
		"fetch_id", res.FetchID,
		"region", res.Region.String(),
		"trigger", string(res.Trigger),
		"latency_ms", res.Latency.Milliseconds(),
	}
	if res.Err != nil {
		s.stats.fetchesFailed.Add(1)
		s.logger.Warn("fetch failed", append(attrs, "error", res.Err.Error())...)
	} else {
		s.stats.fetchesOK.Add(1)
		s.logger.Debug("fetch completed", append(attrs, "aircraft", len(res.States.Aircraft))...)
	}

	if s.onResult != nil {
		s.invokeSafe(res)
	}
}

// invokeSafe calls the result callback with panic recovery. A panic is
// logged with a correlation ID and does not stop the scheduler.
func (s *Scheduler) invokeSafe(res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			s.stats.callbackPanics.Add(1)
			s.logger.Error("result callback panic",
				"correlation_id", uuid.NewString(),
				"fetch_id", res.FetchID,
				"panic", fmt.Sprintf("%v", rec),
				"stack", string(debug.Stack()),
			)
		}
	}()
	s.onResult(res)
}
