// Package api serves an HTTP interface onto a set of running emitters: listing them, sending commands and probing
// their latest events.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cepro/scriptedemitter/emitter"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const shutdownTimeout = 5 * time.Second

// StateSaver persists the state of an emitter after it has been changed by a command.
type StateSaver interface {
	SaveState(e emitter.DataEmitter) error
}

// StateSaverFunc adapts a function to a StateSaver.
type StateSaverFunc func(e emitter.DataEmitter) error

func (f StateSaverFunc) SaveState(e emitter.DataEmitter) error { return f(e) }

type emitterSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

type emitterDetails struct {
	emitterSummary
	MetaData any `json:"metaData"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server routes requests to the emitters it was created with.
type Server struct {
	router   *mux.Router
	emitters map[string]emitter.DataEmitter
	order    []string
	saver    StateSaver
	logger   *slog.Logger
}

// New returns a server for `emitters`. `saver` may be nil, in which case state is not persisted.
func New(emitters []emitter.DataEmitter, saver StateSaver) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		emitters: make(map[string]emitter.DataEmitter, len(emitters)),
		saver:    saver,
		logger:   slog.Default().With("component", "api"),
	}
	for _, e := range emitters {
		s.emitters[e.ID()] = e
		s.order = append(s.order, e.ID())
	}

	s.router.HandleFunc("/emitters", s.listEmitters).Methods(http.MethodGet)
	s.router.HandleFunc("/emitters/{id}", s.emitterDetails).Methods(http.MethodGet)
	s.router.HandleFunc("/emitters/{id}/commands", s.sendCommand).Methods(http.MethodPost)
	s.router.HandleFunc("/emitters/{id}/data", s.probeData).Methods(http.MethodGet)
	s.router.HandleFunc("/emitters/{id}/status", s.probeStatus).Methods(http.MethodGet)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run listens on `addr` until the context is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Serving API", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve api: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("shutdown api: %w", err)
	}
	return nil
}

func (s *Server) listEmitters(w http.ResponseWriter, _ *http.Request) {
	summaries := make([]emitterSummary, 0, len(s.order))
	for _, id := range s.order {
		summaries = append(summaries, summarise(s.emitters[id]))
	}
	s.writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) emitterDetails(w http.ResponseWriter, r *http.Request) {
	e := s.findEmitterOr404(w, r)
	if e == nil {
		return
	}
	s.writeJSON(w, http.StatusOK, emitterDetails{
		emitterSummary: summarise(e),
		MetaData:       e.MetaData(),
	})
}

func (s *Server) sendCommand(w http.ResponseWriter, r *http.Request) {
	e := s.findEmitterOr404(w, r)
	if e == nil {
		return
	}

	var cmd emitter.Command
	err := json.NewDecoder(r.Body).Decode(&cmd)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("decode command: %v", err)})
		return
	}
	if cmd.ActionID == "" {
		cmd.ActionID = uuid.NewString()
	}

	result := e.SendCommand(cmd)

	if result.Success && s.saver != nil {
		err = s.saver.SaveState(e)
		if err != nil {
			s.logger.Error("Failed to save emitter state", "emitter_id", e.ID(), "action_id", cmd.ActionID, "error", err)
		}
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) probeData(w http.ResponseWriter, r *http.Request) {
	e := s.findEmitterOr404(w, r)
	if e == nil {
		return
	}
	evt, err := e.ProbeCurrentData()
	if err != nil {
		s.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, evt)
}

func (s *Server) probeStatus(w http.ResponseWriter, r *http.Request) {
	e := s.findEmitterOr404(w, r)
	if e == nil {
		return
	}
	evt, err := e.ProbeStatus()
	if err != nil {
		s.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, evt)
}

func (s *Server) findEmitterOr404(w http.ResponseWriter, r *http.Request) emitter.DataEmitter {
	id := mux.Vars(r)["id"]
	e, ok := s.emitters[id]
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("unknown emitter '%s'", id)})
		return nil
	}
	return e
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}

func summarise(e emitter.DataEmitter) emitterSummary {
	return emitterSummary{
		ID:          e.ID(),
		Name:        e.Name(),
		Description: e.Description(),
		Type:        e.Type(),
	}
}
