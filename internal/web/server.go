// Package web serves the read-only snapshot of the current day's record.
package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"github.com/goodtune/hubwatch/internal/record"
	"github.com/rs/zerolog"
)

// Snapshotter supplies the current day's record.
type Snapshotter interface {
	Snapshot(ctx context.Context) (*record.DayRecord, error)
}

// Server serves the day record over HTTP.
type Server struct {
	server   *http.Server
	snap     Snapshotter
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a snapshot server.
func NewServer(addr string, snap Snapshotter, logger zerolog.Logger) *Server {
	s := &Server{
		snap:   snap,
		logger: logger.With().Str("component", "web").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRecord)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	s.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// SetListener sets a pre-created listener for systemd socket activation.
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the server.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting snapshot server")
	go func() {
		var err error
		if s.listener != nil {
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Snapshot server error")
		}
	}()
	return nil
}

// Stop stops the server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping snapshot server")
	return s.server.Close()
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	rec, err := s.snap.Snapshot(r.Context())
	if err != nil {
		// Observability only; nothing internal goes to the caller.
		s.logger.Error().Err(err).Msg("Snapshot failed")
		http.Error(w, "snapshot unavailable", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(rec); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode record")
	}
}
