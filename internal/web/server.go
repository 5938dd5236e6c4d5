// Package web provides the HTTP surface of the press-logger daemon: the
// status page, the live websocket feed and the reset control.
package web

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/press-logger/internal/broadcast"
	"github.com/sweeney/press-logger/internal/metrics"
	"github.com/sweeney/press-logger/internal/status"
)

// requestTimeout bounds how long a handler waits for the main loop.
const requestTimeout = 10 * time.Second

// Control is the main loop as seen by HTTP handlers.
type Control interface {
	// Attach replays the stored history to obs and registers it for live events.
	Attach(ctx context.Context, obs broadcast.Observer) error
	// Detach unregisters obs.
	Detach(obs broadcast.Observer)
	// Reset clears the log and zeroes the counter.
	Reset(ctx context.Context) error
}

// Server serves the status page, websocket feed and control endpoints.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	control    Control
	maxPending int
	upgrader   websocket.Upgrader
}

// New creates a Server that reads state from tracker and forwards websocket
// and reset requests to control.
func New(addr string, tracker *status.Tracker, control Control, maxPending int) *Server {
	s := &Server{
		tracker:    tracker,
		control:    control,
		maxPending: maxPending,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard may be served from a different host name than the
			// one the device answers on.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	metrics.Init()

	r := chi.NewRouter()
	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/index.json", s.handleJSON)
	r.Get("/ws", s.handleWS)
	r.Post("/reset", s.handleReset)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// Handler returns the router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server. Hijacked websocket connections
// are not tracked by net/http; the caller closes them through the hub.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response.
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	c := broadcast.NewClient(conn, s.maxPending)
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	err = s.control.Attach(ctx, c)
	cancel()
	if err != nil {
		log.Printf("ws: attach %s failed: %v", c.ID(), err)
		c.Close()
		conn.Close()
		return
	}

	log.Printf("ws: observer %s connected from %s", c.ID(), r.RemoteAddr)
	c.Run(func() {
		s.control.Detach(c)
		log.Printf("ws: observer %s disconnected", c.ID())
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := s.control.Reset(ctx); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			code = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), code)
		return
	}
	log.Printf("reset requested by %s", r.RemoteAddr)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}
