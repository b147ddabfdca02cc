// Package web provides an HTTP status server for the treadmill-sensor daemon.
package web

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/treadmill-sensor/internal/logic"
	"github.com/sweeney/treadmill-sensor/internal/status"
)

// recentOnPage is how many events the HTML page lists.
const recentOnPage = 10

// EventSource provides the recent event history. store.Store satisfies it.
type EventSource interface {
	Recent(ctx context.Context, limit int) ([]logic.Event, error)
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	events     EventSource
	log        *zap.SugaredLogger
}

// New creates a Server that reads state from the given tracker. events may
// be nil when no event log is configured.
func New(addr string, tracker *status.Tracker, events EventSource, log *zap.SugaredLogger) *Server {
	s := &Server{tracker: tracker, events: events, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/events.json", s.handleEvents)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the request router. Useful for tests.
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

func (s *Server) recent(ctx context.Context, limit int) ([]logic.Event, error) {
	if s.events == nil {
		return nil, nil
	}
	return s.events.Recent(ctx, limit)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	events, err := s.recent(r.Context(), recentOnPage)
	if err != nil {
		s.log.Warnf("http: recent events: %v", err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap, events); err != nil {
		s.log.Warnf("http: render index: %v", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := s.recent(r.Context(), limit)
	if err != nil {
		s.log.Warnf("http: recent events: %v", err)
		http.Error(w, "event log unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(formatEvents(events))
}
