// Package web serves the molding monitor HTTP API, the status page,
// the live event stream and Prometheus metrics.
package web

import (
	"context"
	"log"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/molding-monitor/internal/engine"
	"github.com/sweeney/molding-monitor/internal/status"
	"github.com/sweeney/molding-monitor/internal/store"
)

// Engine is the subset of *engine.Engine the API needs.
type Engine interface {
	SubmitSnapshot(ctx context.Context, pinData, timestamp string) ([]string, error)
	Classify(ctx context.Context, req engine.ClassifyRequest) (store.StoppageEntry, error)
	AssignProduction(ctx context.Context, req engine.AssignRequest) ([]engine.AssignedHour, error)
	SetDefects(ctx context.Context, machineID, date string, hour, count int) error
	Timeline(ctx context.Context, machineID string, days int) (engine.Timeline, error)
	Stats(ctx context.Context, machineID, period string) (engine.Stats, error)
}

// Options wires the server's collaborators. Stream and Metrics are
// optional; Metrics defaults to the global Prometheus registry.
type Options struct {
	Engine  Engine
	Tracker *status.Tracker
	Stream  http.Handler
	Metrics http.Handler
	Logger  *log.Logger
}

// Server serves the API and status page over HTTP.
type Server struct {
	httpServer *http.Server
	engine     Engine
	tracker    *status.Tracker
	logger     *log.Logger
}

// New creates a Server listening on addr.
func New(addr string, opts Options) *Server {
	s := &Server{
		engine:  opts.Engine,
		tracker: opts.Tracker,
		logger:  opts.Logger,
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.routes(opts),
	}
	return s
}

func (s *Server) routes(opts Options) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("GET /index.json", s.handleJSON)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("POST /api/signals/pin-data", s.handlePinData)
	mux.HandleFunc("POST /api/stoppages/classify", s.handleClassify)
	mux.HandleFunc("POST /api/production/assign", s.handleAssign)
	mux.HandleFunc("POST /api/production/defects", s.handleDefects)
	mux.HandleFunc("GET /api/machines/{id}/timeline", s.handleTimeline)
	mux.HandleFunc("GET /api/machines/{id}/timeline.xlsx", s.handleTimelineXLSX)
	mux.HandleFunc("GET /api/machines/{id}/stats", s.handleStats)

	if opts.Stream != nil {
		mux.Handle("/api/events", opts.Stream)
	}
	m := opts.Metrics
	if m == nil {
		m = promhttp.Handler()
	}
	mux.Handle("GET /metrics", m)
	return mux
}

// Handler returns the server's root handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}
