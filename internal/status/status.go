// Package status serves the engine's HTTP operational surface: a JSON
// snapshot of the ladder and trade statistics at /status, and a liveness
// probe at /healthz, adapted from the teacher's internal/dashboard down to
// the surface SPEC_FULL.md actually calls for (no WebSocket push, no HTML
// template rendering — just the two JSON endpoints an operator or
// orchestration layer would poll).
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"stepback/internal/journal"
)

// Snapshot is the JSON body served at /status.
type Snapshot struct {
	Ladder *journal.LadderSnapshot `json:"ladder"`
	Stats  journal.Stats           `json:"stats"`
}

// Engine is the subset of core.Engine the status surface depends on.
type Engine interface {
	LadderSnapshot() *journal.LadderSnapshot
	Stats() journal.Stats
	HasOpenPosition() bool
}

// Server serves /status and /healthz over gorilla/mux, mirroring the
// teacher's RiskDashboard server lifecycle (explicit Start/Stop, bounded
// read/write timeouts).
type Server struct {
	engine Engine
	server *http.Server
	logger zerolog.Logger
}

// New builds a status server listening on port.
func New(engine Engine, port int, logger zerolog.Logger) *Server {
	s := &Server{engine: engine, logger: logger}

	r := mux.NewRouter()
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start begins serving in the background. It returns immediately; serve
// errors other than a clean shutdown are logged.
func (s *Server) Start() {
	go func() {
		s.logger.Info().Str("addr", s.server.Addr).Msg("status server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("status server failed")
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snapshot := Snapshot{
		Ladder: s.engine.LadderSnapshot(),
		Stats:  s.engine.Stats(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		s.logger.Error().Err(err).Msg("status: encode failed")
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
