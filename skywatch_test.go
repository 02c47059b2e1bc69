package skywatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpalmerr/skywatch/opensky"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// openSkyStub serves /states/all with one aircraft at the center of the
// requested box and records every query.
type openSkyStub struct {
	*httptest.Server
	mu      sync.Mutex
	queries []string
	status  atomic.Int32
}

func newOpenSkyStub(t *testing.T) *openSkyStub {
	t.Helper()
	stub := &openSkyStub{}
	stub.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.mu.Lock()
		stub.queries = append(stub.queries, r.URL.RawQuery)
		stub.mu.Unlock()

		if code := stub.status.Load(); code != 0 {
			w.WriteHeader(int(code))
			return
		}
		q := r.URL.Query()
		lat := (atof(q.Get("lamin")) + atof(q.Get("lamax"))) / 2
		lon := (atof(q.Get("lomin")) + atof(q.Get("lomax"))) / 2
		_, _ = fmt.Fprintf(w, `{"time":1700000000,"states":[["abc123","TEST1   ","Testland",null,1700000000,%g,%g,1000,false,200,90,0,null,1100,null,false,0]]}`, lon, lat)
	}))
	t.Cleanup(stub.Close)
	return stub
}

func (s *openSkyStub) queryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}

func atof(s string) float64 {
	var f float64
	_, _ = fmt.Sscanf(s, "%g", &f)
	return f
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

// runTracker starts tr in the background and returns a function that stops
// it and waits for Start to return.
func runTracker(t *testing.T, tr *Tracker) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !tr.scheduler.Running() {
		if time.Now().After(deadline) {
			t.Fatal("tracker did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}

	return func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Start() error = %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("Start() did not return after context cancellation")
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func TestTracker_InitialRegionFetched(t *testing.T) {
	stub := newOpenSkyStub(t)

	updates := make(chan Update, 10)
	region := opensky.RegionAround(52.5, 13.4)
	tr, err := New(
		WithBaseURL(stub.URL),
		WithInitialRegion(region),
		WithStabilityWindow(20*time.Millisecond),
		WithRefreshInterval(time.Hour),
		WithoutServer(),
		WithLogger(testLogger()),
		WithResultCallback(func(u Update) { updates <- u }),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	stop := runTracker(t, tr)
	defer stop()

	var u Update
	select {
	case u = <-updates:
	case <-time.After(3 * time.Second):
		t.Fatal("no update for the initial region")
	}

	if u.Err != nil {
		t.Fatalf("update error = %v", u.Err)
	}
	if u.Trigger != "settled" || u.Region != region || u.FetchID == "" {
		t.Errorf("update = %+v", u)
	}
	if len(u.States.Aircraft) != 1 || u.States.Aircraft[0].Label() != "TEST1" {
		t.Fatalf("aircraft = %+v", u.States.Aircraft)
	}

	snap, ok := tr.Latest()
	if !ok || snap.FetchID != u.FetchID || len(snap.Aircraft) != 1 {
		t.Errorf("Latest() = %+v, %v", snap, ok)
	}
	if got, ok := tr.Region(); !ok || got != region {
		t.Errorf("Region() = %v, %v", got, ok)
	}
	if tr.State() != "stable" {
		t.Errorf("State() = %q, want stable", tr.State())
	}
}

func TestTracker_SetRegionDebounces(t *testing.T) {
	stub := newOpenSkyStub(t)

	var count atomic.Int32
	var last atomic.Value
	tr, err := New(
		WithBaseURL(stub.URL),
		WithStabilityWindow(100*time.Millisecond),
		WithRefreshInterval(time.Hour),
		WithoutServer(),
		WithLogger(testLogger()),
		WithResultCallback(func(u Update) {
			count.Add(1)
			last.Store(u.Region)
		}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	stop := runTracker(t, tr)
	defer stop()

	var final opensky.Region
	for i := 0; i < 10; i++ {
		final = opensky.RegionAround(40+float64(i), 10)
		if err := tr.SetRegion(final); err != nil {
			t.Fatalf("SetRegion() error = %v", err)
		}
	}

	waitFor(t, "settled fetch", func() bool { return count.Load() == 1 })
	time.Sleep(200 * time.Millisecond)

	if n := count.Load(); n != 1 {
		t.Errorf("updates = %d, want 1", n)
	}
	if got := last.Load().(opensky.Region); got != final {
		t.Errorf("fetched region = %v, want %v", got, final)
	}
	if n := stub.queryCount(); n != 1 {
		t.Errorf("api queries = %d, want 1", n)
	}
}

func TestTracker_SetRegionFromCallback(t *testing.T) {
	stub := newOpenSkyStub(t)
	berlin := opensky.RegionAround(52.5, 13.4)
	paris := opensky.RegionAround(48.9, 2.35)

	var tr *Tracker
	recentred := make(chan error, 10)
	var fetched sync.Map
	tr, err := New(
		WithBaseURL(stub.URL),
		WithInitialRegion(berlin),
		WithStabilityWindow(50*time.Millisecond),
		WithRefreshInterval(time.Hour),
		WithoutServer(),
		WithLogger(testLogger()),
		WithResultCallback(func(u Update) {
			fetched.Store(u.Region, true)
			if u.Region == berlin {
				recentred <- tr.SetRegion(paris)
			}
		}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	stop := runTracker(t, tr)
	defer stop()

	select {
	case err := <-recentred:
		if err != nil {
			t.Fatalf("SetRegion() from callback error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("SetRegion() from callback blocked, State() = %q", tr.State())
	}

	waitFor(t, "paris fetched", func() bool {
		_, ok := fetched.Load(paris)
		return ok
	})
	if got, ok := tr.Region(); !ok || got != paris {
		t.Errorf("Region() = %v, %v; want %v", got, ok, paris)
	}
}

func TestTracker_SetRegion_Errors(t *testing.T) {
	tr, err := New(WithoutServer(), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := tr.SetRegion(opensky.RegionAround(10, 10)); !errors.Is(err, ErrNotRunning) {
		t.Errorf("SetRegion() before Start error = %v, want ErrNotRunning", err)
	}
	if err := tr.SetRegion(opensky.Region{Latitude: 10}); err == nil {
		t.Error("SetRegion() with zero spans expected error")
	}
}

func TestTracker_FailureKeepsPreviousAircraft(t *testing.T) {
	stub := newOpenSkyStub(t)

	updates := make(chan Update, 10)
	tr, err := New(
		WithBaseURL(stub.URL),
		WithInitialRegion(opensky.RegionAround(1, 1)),
		WithStabilityWindow(10*time.Millisecond),
		WithRefreshInterval(100*time.Millisecond),
		WithoutServer(),
		WithLogger(testLogger()),
		WithResultCallback(func(u Update) { updates <- u }),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	stop := runTracker(t, tr)
	defer stop()

	first := <-updates
	if first.Err != nil {
		t.Fatalf("first update error = %v", first.Err)
	}

	stub.status.Store(http.StatusServiceUnavailable)
	var failed Update
	select {
	case failed = <-updates:
	case <-time.After(3 * time.Second):
		t.Fatal("no refresh update")
	}

	var te *opensky.TransportError
	if !errors.As(failed.Err, &te) || te.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("refresh error = %v, want 503 transport error", failed.Err)
	}
	if failed.Trigger != "refresh" || len(failed.States.Aircraft) != 0 {
		t.Errorf("failed update = %+v", failed)
	}

	snap, _ := tr.Latest()
	if len(snap.Aircraft) != 1 || !strings.Contains(snap.Err, "503") {
		t.Errorf("Latest() after failure = %+v", snap)
	}
	if tr.Stats().FetchesFailed < 1 {
		t.Errorf("Stats() = %+v, want a failed fetch", tr.Stats())
	}
}

func TestTracker_CallbackPanicRecovery(t *testing.T) {
	stub := newOpenSkyStub(t)

	var normalCalled atomic.Bool
	var logBuf bytes.Buffer
	var logMu sync.Mutex
	logger := slog.New(slog.NewTextHandler(&lockedWriter{w: &logBuf, mu: &logMu}, nil))

	tr, err := New(
		WithBaseURL(stub.URL),
		WithInitialRegion(opensky.RegionAround(1, 1)),
		WithStabilityWindow(10*time.Millisecond),
		WithRefreshInterval(time.Hour),
		WithoutServer(),
		WithLogger(logger),
		WithResultCallback(func(Update) { panic("intentional test panic") }),
		WithResultCallback(func(Update) { normalCalled.Store(true) }),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	stop := runTracker(t, tr)

	waitFor(t, "second callback", normalCalled.Load)
	stop()

	logMu.Lock()
	defer logMu.Unlock()
	if !strings.Contains(logBuf.String(), "result callback panicked") {
		t.Errorf("panic should have been logged, got: %s", logBuf.String())
	}
	if !strings.Contains(logBuf.String(), "correlation_id=") {
		t.Error("panic log should carry a correlation id")
	}
}

type lockedWriter struct {
	w  io.Writer
	mu *sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func TestTracker_ServesAPI(t *testing.T) {
	stub := newOpenSkyStub(t)
	port := freePort(t)

	tr, err := New(
		WithBaseURL(stub.URL),
		WithStabilityWindow(10*time.Millisecond),
		WithRefreshInterval(time.Hour),
		WithPort(port),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	stop := runTracker(t, tr)
	defer stop()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	waitFor(t, "api server", func() bool {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	})

	req, _ := http.NewRequest(http.MethodPut, base+"/api/region", strings.NewReader(`{"latitude":48.9,"longitude":2.35}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT /api/region: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("PUT /api/region status = %d", resp.StatusCode)
	}

	waitFor(t, "snapshot", func() bool {
		_, ok := tr.Latest()
		return ok
	})

	resp, err = http.Get(base + "/api/aircraft?positioned=true")
	if err != nil {
		t.Fatalf("GET /api/aircraft: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body struct {
		Count    int                   `json:"count"`
		Aircraft []opensky.StateVector `json:"aircraft"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 1 || *body.Aircraft[0].ICAO24 != "abc123" {
		t.Errorf("aircraft response = %+v", body)
	}
}

func TestTracker_StartTwice(t *testing.T) {
	tr, err := New(WithoutServer(), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	stop := runTracker(t, tr)
	defer stop()

	if err := tr.Start(context.Background()); err == nil {
		t.Error("second Start() expected error")
	}
}

func TestTracker_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = ln.Close() }()

	tr, err := New(WithPort(ln.Addr().(*net.TCPAddr).Port), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := tr.Start(context.Background()); err == nil {
		t.Fatal("Start() on occupied port should return error")
	}
	if tr.scheduler.Running() {
		t.Error("scheduler still running after failed Start")
	}
}

func TestTracker_StartWithCancelledContext(t *testing.T) {
	tr, err := New(WithoutServer(), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- tr.Start(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return with already-cancelled context")
	}
}

func TestTracker_NoCallbackAfterStop(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		_, _ = w.Write([]byte(`{"time":1,"states":[]}`))
	}))
	defer slow.Close()
	defer close(release)

	var calls atomic.Int32
	tr, err := New(
		WithBaseURL(slow.URL),
		WithInitialRegion(opensky.RegionAround(1, 1)),
		WithStabilityWindow(10*time.Millisecond),
		WithRefreshInterval(time.Hour),
		WithoutServer(),
		WithLogger(testLogger()),
		WithResultCallback(func(Update) { calls.Add(1) }),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	stop := runTracker(t, tr)

	// let the fetch reach the slow server, then stop with it in flight
	waitFor(t, "fetch in flight", func() bool { return tr.Stats().FetchesInFlight == 1 })
	stop()

	time.Sleep(50 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Errorf("callback invoked %d times after stop, want 0", n)
	}
}
