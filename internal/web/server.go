// Package web provides the local HTTP surface for the irrigation-relay daemon:
// a status page and an authenticated firmware upload endpoint.
package web

import (
	"context"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sweeney/irrigation-relay/internal/status"
)

// UpdateConfig controls the firmware upload endpoint.
type UpdateConfig struct {
	// Secret is the HS256 key for upload tokens. Empty disables uploads.
	Secret string

	// Dir receives the staged image.
	Dir string

	// MaxBytes caps the image size.
	MaxBytes int64
}

// Server serves the status page and firmware uploads over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	update     UpdateConfig
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker, update UpdateConfig) *Server {
	s := &Server{tracker: tracker, update: update}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/index.json", s.handleJSON)
	r.With(requireToken(update.Secret)).Post("/update", s.handleUpdate)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
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
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}
