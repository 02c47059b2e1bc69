// Package mocksky serves a synthetic OpenSky states endpoint for demos.
//
// Every request gets a handful of aircraft spread over the requested box.
// Each aircraft drifts across the box over time, so successive refreshes
// show movement. Some records carry nulls the way the real API does.
package mocksky

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// StatesPath is the path the handler answers on, relative to the server root.
const StatesPath = "/api/states/all"

var countries = []string{"Germany", "France", "United Kingdom", "Switzerland", "Netherlands", "Spain"}

var airlines = []string{"DLH", "AFR", "BAW", "SWR", "KLM", "IBE"}

// Server generates traffic. The zero value is not usable; call New.
type Server struct {
	aircraft int
	latency  time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// New returns a Server producing count aircraft per request, with up to
// latency of simulated response delay.
func New(count int, latency time.Duration, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{aircraft: count, latency: latency, now: time.Now, logger: logger}
}

// Handler returns the HTTP handler serving StatesPath.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(StatesPath, s.handleStates)
	return mux
}

func (s *Server) handleStates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	var bounds [4]float64
	for i, key := range []string{"lamin", "lomin", "lamax", "lomax"} {
		v, err := strconv.ParseFloat(q.Get(key), 64)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid %s", key), http.StatusBadRequest)
			return
		}
		bounds[i] = v
	}

	if s.latency > 0 {
		time.Sleep(time.Duration(rand.Int63n(int64(s.latency))))
	}

	now := s.now()
	resp := map[string]any{
		"time":   now.Unix(),
		"states": s.states(bounds, now),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}

// states builds the positional records for one box. The same box at the
// same instant always yields the same records.
func (s *Server) states(b [4]float64, now time.Time) [][]any {
	laMin, loMin, laMax, loMax := b[0], b[1], b[2], b[3]
	if s.aircraft <= 0 {
		return nil
	}

	h := fnv.New32a()
	fmt.Fprintf(h, "%.2f,%.2f", laMin, loMin)
	seed := h.Sum32()

	records := make([][]any, 0, s.aircraft)
	for i := 0; i < s.aircraft; i++ {
		id := seed + uint32(i)*2654435761
		icao := fmt.Sprintf("%06x", id&0xffffff)

		// each aircraft crosses the box in 2 to 10 minutes
		period := float64(120 + id%480)
		phase := math.Mod(float64(now.Unix())/period+float64(i)/float64(s.aircraft), 1)
		lat := laMin + (laMax-laMin)*(0.1+0.8*float64(id%97)/97)
		lon := loMin + (loMax-loMin)*phase
		altitude := float64(3000 + (id%90)*100)

		var callsign any = fmt.Sprintf("%s%-5d", airlines[id%uint32(len(airlines))], id%9000+100)
		if i%7 == 6 {
			callsign = nil
		}
		var latV, lonV, timePos any = lat, lon, now.Unix() - 1
		if i%11 == 10 {
			latV, lonV, timePos = nil, nil, nil
		}

		records = append(records, []any{
			icao,
			callsign,
			countries[id%uint32(len(countries))],
			timePos,
			now.Unix(),
			lonV,
			latV,
			altitude,
			false,
			float64(180 + id%80),
			90.0,
			0.0,
			nil,
			altitude + 150,
			fmt.Sprintf("%04o", id%4096),
			false,
			int(id % 3),
		})
	}
	return records
}
