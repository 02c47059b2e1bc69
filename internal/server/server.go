package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/jpalmerr/skywatch/internal/poller"
	"github.com/jpalmerr/skywatch/internal/store"
	"github.com/jpalmerr/skywatch/opensky"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// This prevents goroutine leaks when clients are slow or disconnected.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	// maxRegionBody bounds PUT /api/region payloads.
	maxRegionBody = 4 << 10
)

// Controller is the scheduler surface the API drives. *poller.Scheduler
// implements it.
type Controller interface {
	RegionChanged(region opensky.Region) bool
	LastRegion() (opensky.Region, bool)
	State() poller.State
	Stats() poller.Stats
}

// Server handles HTTP requests for the skywatch API.
//
// Server provides these endpoints:
//   - GET /api/aircraft: the latest snapshot as JSON, optionally filtered
//   - GET /api/region: the committed region and debounce state
//   - PUT /api/region: report a region change
//   - GET /api/stats: scheduler counters
//   - GET /api/sse: Server-Sent Events stream of snapshots
//   - GET /healthz: liveness probe
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	store   store.Store
	control Controller
	port    int
	logger  *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
	addr       net.Addr
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - st: Store holding the latest snapshot
//   - control: scheduler receiving region changes
//   - port: TCP port to listen on; 0 picks a free port
//   - logger: Logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, control Controller, port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:   st,
		control: control,
		port:    port,
		logger:  logger,
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/aircraft", s.handleAircraft)
	mux.HandleFunc("/api/region", s.handleRegion)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/sse", s.handleSSE)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// enabling graceful shutdown of long-running handlers like SSE.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	s.mu.Lock()
	s.httpServer = httpServer
	s.addr = ln.Addr()
	s.mu.Unlock()

	go func() {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	// shutdown on context cancellation
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	s.logger.Info("api server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// aircraftResponse is the body of GET /api/aircraft.
type aircraftResponse struct {
	Region    *opensky.Region       `json:"region"`
	Time      int64                 `json:"time"`
	FetchID   string                `json:"fetch_id,omitempty"`
	UpdatedAt *time.Time            `json:"updated_at"`
	Count     int                   `json:"count"`
	Aircraft  []opensky.StateVector `json:"aircraft"`
	Error     *string               `json:"error"`
}

// handleAircraft returns the latest snapshot.
//
// Query parameters:
//   - positioned=true: drop aircraft without both coordinates
//   - bbox=minLon,minLat,maxLon,maxLat: keep only aircraft inside the box
func (s *Server) handleAircraft(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	var bound *orb.Bound
	if raw := q.Get("bbox"); raw != "" {
		b, err := parseBBox(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		bound = &b
	}

	resp := aircraftResponse{Aircraft: []opensky.StateVector{}}
	if snapshot, ok := s.store.Latest(); ok {
		aircraft := snapshot.Aircraft
		switch {
		case bound != nil:
			aircraft = opensky.Within(aircraft, *bound)
		case q.Get("positioned") == "true":
			aircraft = opensky.Positioned(aircraft)
		}
		if aircraft == nil {
			aircraft = []opensky.StateVector{}
		}

		if !snapshot.Region.IsZero() {
			resp.Region = &snapshot.Region
		}
		resp.Time = snapshot.Time
		resp.FetchID = snapshot.FetchID
		resp.UpdatedAt = &snapshot.UpdatedAt
		resp.Aircraft = aircraft
		resp.Error = snapshot.Error
	}
	resp.Count = len(resp.Aircraft)

	s.writeJSON(w, http.StatusOK, resp)
}

// parseBBox parses "minLon,minLat,maxLon,maxLat".
func parseBBox(raw string) (orb.Bound, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bbox must be minLon,minLat,maxLon,maxLat")
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("bbox: invalid number %q", p)
		}
		v[i] = f
	}
	if v[0] > v[2] || v[1] > v[3] {
		return orb.Bound{}, fmt.Errorf("bbox: min corner must be south-west of max corner")
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

// regionResponse is the body of GET /api/region.
type regionResponse struct {
	Region *opensky.Region `json:"region"`
	State  string          `json:"state"`
}

// handleRegion reports the committed region (GET) or feeds a region change
// to the scheduler (PUT).
func (s *Server) handleRegion(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		resp := regionResponse{State: s.control.State().String()}
		if region, ok := s.control.LastRegion(); ok {
			resp.Region = &region
		}
		s.writeJSON(w, http.StatusOK, resp)

	case http.MethodPut:
		var region opensky.Region
		dec := json.NewDecoder(io.LimitReader(r.Body, maxRegionBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&region); err != nil {
			http.Error(w, "invalid region: "+err.Error(), http.StatusBadRequest)
			return
		}
		if region.LatitudeDelta == 0 && region.LongitudeDelta == 0 {
			region.LatitudeDelta, region.LongitudeDelta = opensky.DefaultSpan, opensky.DefaultSpan
		}
		if err := region.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !s.control.RegionChanged(region) {
			http.Error(w, "tracker not running", http.StatusServiceUnavailable)
			return
		}
		s.writeJSON(w, http.StatusAccepted, regionResponse{Region: &region, State: s.control.State().String()})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleStats returns the scheduler counters.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.control.Stats())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// handleSSE streams snapshots via Server-Sent Events.
//
// The handler uses write deadlines to prevent goroutine leaks when clients are
// slow or disconnected. Without deadlines, a blocked Fprintf call would prevent
// the handler from detecting context cancellation or channel closure.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some ResponseWriter impls)
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Debug("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	// send the current snapshot first
	if snapshot, ok := s.store.Latest(); ok {
		data, err := json.Marshal(snapshot)
		if err == nil {
			if err := writeAndFlush(data); err != nil {
				return
			}
		}
	}

	for {
		select {
		case snapshot, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(snapshot)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// request context is derived from server context via BaseContext,
			// so this fires on both client disconnect AND server shutdown
			return
		}
	}
}
