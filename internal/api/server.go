// Package api provides the HTTP API for observing a run. GET endpoints are
// read-only and serve committed state only; /ws streams round reports as
// they commit. Nothing here can steer the simulation.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jintrone/abm-mp-example/internal/agents"
	"github.com/jintrone/abm-mp-example/internal/engine"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// Server serves run state over HTTP. Handlers read through the scheduler's
// synchronized surfaces (Phase, LastReport) and the immutable parts of the
// population, so they are safe while rounds are in flight.
type Server struct {
	Sched *engine.Scheduler
	Env   *engine.Environment
	Addr  string
	RunID string
	Seed  int64

	// Initial holds the committed values from before the first round, for
	// handlers that run ahead of any report.
	Initial []float64

	clientsMu sync.Mutex
	clients   map[*client]struct{}
}

// client is one websocket subscriber. Writes are serialized per connection.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// Handler builds the route table. Split from Start so tests can drive it
// through httptest.
func (s *Server) Handler() http.Handler {
	popLimiter := newRateLimiter(60, time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/population", withRateLimit(popLimiter, s.handlePopulation))
	mux.HandleFunc("/api/v1/report", s.handleReport)
	mux.HandleFunc("/ws", s.handleWS)

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	slog.Info("HTTP API starting", "addr", s.Addr)
	go func() {
		if err := http.ListenAndServe(s.Addr, s.Handler()); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// corsMiddleware adds CORS headers for allowed frontend origins. Set
// ABMSIM_CORS_ORIGINS to a comma-separated list of additional origins;
// localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("ABMSIM_CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	phase := s.Sched.Phase()

	status := map[string]any{
		"run_id":     s.RunID,
		"seed":       s.Seed,
		"phase":      phase.String(),
		"running":    phase != engine.PhaseIdle,
		"population": s.Env.Size(),
		"round":      0,
	}
	if rep, ok := s.Sched.LastReport(); ok {
		status["round"] = rep.Round
		status["last_round"] = map[string]any{
			"mean":        rep.Mean,
			"std_dev":     rep.StdDev,
			"duration_ms": rep.Duration.Milliseconds(),
		}
	}
	writeJSON(w, status)
}

// committedValues returns the most recently committed values: the last
// report's if a round has run, the initial draw otherwise.
func (s *Server) committedValues() []float64 {
	if rep, ok := s.Sched.LastReport(); ok {
		return rep.Values
	}
	return s.Initial
}

func (s *Server) handlePopulation(w http.ResponseWriter, r *http.Request) {
	type agentSummary struct {
		ID        agents.AgentID   `json:"id"`
		Value     float64          `json:"value"`
		Neighbors []agents.AgentID `json:"neighbors"`
		DelayMS   int64            `json:"delay_ms"`
	}

	values := s.committedValues()

	// Neighbor lists and delays are fixed at setup; only values move, and
	// those come from committed reports.
	pop := s.Env.Agents()
	result := make([]agentSummary, 0, len(pop))
	for i, a := range pop {
		v := 0.0
		if i < len(values) {
			v = values[i]
		}
		result = append(result, agentSummary{
			ID:        a.ID,
			Value:     v,
			Neighbors: a.Neighbors,
			DelayMS:   a.Delay.Milliseconds(),
		})
	}
	writeJSON(w, result)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.Sched.LastReport()
	if !ok {
		http.Error(w, "no round committed yet", http.StatusNotFound)
		return
	}
	writeJSON(w, rep)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn}

	s.clientsMu.Lock()
	if s.clients == nil {
		s.clients = make(map[*client]struct{})
	}
	s.clients[c] = struct{}{}
	count := len(s.clients)
	s.clientsMu.Unlock()
	slog.Info("websocket client connected", "clients", count)

	hello := map[string]any{
		"type":       "hello",
		"run_id":     s.RunID,
		"population": s.Env.Size(),
	}
	_ = c.send(hello)
	if rep, ok := s.Sched.LastReport(); ok {
		_ = c.send(map[string]any{"type": "round", "report": rep})
	}

	// The stream is one-way. Reads only detect disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.clientsMu.Lock()
	delete(s.clients, c)
	s.clientsMu.Unlock()
	conn.Close()
	slog.Info("websocket client disconnected")
}

// BroadcastReport pushes a committed round report to every websocket
// client. Clients whose send fails are dropped.
func (s *Server) BroadcastReport(rep engine.RoundReport) {
	s.clientsMu.Lock()
	list := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		list = append(list, c)
	}
	s.clientsMu.Unlock()

	for _, c := range list {
		if err := c.send(map[string]any{"type": "round", "report": rep}); err != nil {
			slog.Debug("dropping websocket client", "error", err)
			s.clientsMu.Lock()
			delete(s.clients, c)
			s.clientsMu.Unlock()
			c.conn.Close()
		}
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
