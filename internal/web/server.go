// Package web provides an HTTP status server for the temp-logger daemon.
package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/sweeney/temp-logger/internal/status"
)

// Store lists and dumps the files kept on the storage medium.
type Store interface {
	Files() ([]string, error)
	Dump(w io.Writer, name string) error
}

// Server serves the status page, stored files and metrics over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	store      Store
}

// New creates a Server that reads state from the given tracker. store and
// metrics are optional; their routes are only registered when non-nil.
func New(addr string, tracker *status.Tracker, store Store, metrics http.Handler) *Server {
	s := &Server{tracker: tracker, store: store}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	if store != nil {
		mux.HandleFunc("/files", s.handleFiles)
		mux.HandleFunc("/files/", s.handleFile)
	}
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the request router.
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

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.Files()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	for _, n := range names {
		fmt.Fprintln(w, n)
	}
}

// handleFile writes one file in the same framing as the console dump, so
// the recovery tooling accepts either source.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/files/")
	if name == "" || strings.ContainsAny(name, `/\`) {
		http.NotFound(w, r)
		return
	}

	names, err := s.store.Files()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if !contains(names, name) {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := s.store.Dump(w, name); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("web: %s disappeared during dump", name)
			return
		}
		log.Printf("web: dump %s: %v", name, err)
	}
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
