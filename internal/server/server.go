// Package server exposes a read-only HTTP view of the member table.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// TableReader is the interface our server needs to read the member table.
// By depending on an interface, we can easily mock the table in our tests.
type TableReader interface {
	Get(key string) (string, bool, error)
	Size() (int, error)
	Serialize() (string, error)
}

// Stats is the body of GET /stats.
type Stats struct {
	Size int `json:"size"`
}

// Server is the HTTP status server.
type Server struct {
	table  TableReader
	router *http.ServeMux
}

// New creates a new Server instance.
func New(table TableReader) *Server {
	s := &Server{
		table:  table,
		router: http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// ServeHTTP makes our Server a standard http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.router.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealth)
	s.router.HandleFunc("/stats", s.handleStats)
	s.router.HandleFunc("/members", s.handleMembers)
	s.router.HandleFunc("/members/", s.handleMember)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok\n"))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	n, err := s.table.Size()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Stats{Size: n})
}

// handleMembers returns the table exactly as it would be written to disk.
func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	contents, err := s.table.Serialize()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(contents))
}

func (s *Server) handleMember(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/members/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "Member id is missing", http.StatusBadRequest)
		return
	}
	value, ok, err := s.table.Get(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		http.Error(w, "Member not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(value + "\n"))
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("status request failed", "path", r.URL.Path, "err", err)
	http.Error(w, "Table unavailable", http.StatusServiceUnavailable)
}

// ListenAndServe serves s on addr until ctx is done, then shuts down gracefully.
func ListenAndServe(ctx context.Context, addr string, s *Server) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
