// Package server implements the OpenClaw HQ HTTP server and REST API.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/camster91/openclaw-hq/activity"
	"github.com/camster91/openclaw-hq/agent"
	"github.com/camster91/openclaw-hq/config"
	"github.com/camster91/openclaw-hq/crm"
	"github.com/camster91/openclaw-hq/dispatch"
	"github.com/camster91/openclaw-hq/task"
)

// TaskDispatcher starts agent runs. Satisfied by *dispatch.Dispatcher.
type TaskDispatcher interface {
	Dispatch(ctx context.Context, taskID int64) (*dispatch.Result, error)
}

// Server is the HQ HTTP server.
type Server struct {
	cfg     config.Config
	mux     *http.ServeMux
	httpSrv *http.Server
	logger  *slog.Logger

	tasks      task.Store
	crm        *crm.SQLiteStore
	activities *activity.Recorder
	roster     *agent.Roster
	dispatcher TaskDispatcher
	stats      StatsSource

	startTime time.Time
	version   string
}

// Deps bundles the server's collaborators.
type Deps struct {
	Tasks      task.Store
	CRM        *crm.SQLiteStore
	Activities *activity.Recorder
	Roster     *agent.Roster
	Dispatcher TaskDispatcher
	Stats      StatsSource
}

// New creates a Server with the given config, dependencies, and logger.
func New(cfg config.Config, ver string, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		mux:        http.NewServeMux(),
		logger:     logger,
		tasks:      deps.Tasks,
		crm:        deps.CRM,
		activities: deps.Activities,
		roster:     deps.Roster,
		dispatcher: deps.Dispatcher,
		stats:      deps.Stats,
		startTime:  time.Now(),
		version:    ver,
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler, auth middleware included. Exposed for
// tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Start begins listening.
func (s *Server) Start() error {
	addr := s.cfg.Server.Addr
	if addr == "" {
		addr = ":8420"
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 15 * time.Second,
	}
	s.logger.Info("server listening", slog.String("addr", addr))
	return s.httpSrv.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	// Public routes.
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)

	// Protected API.
	api := http.NewServeMux()

	api.HandleFunc("GET /api/auth/me", s.handleMe)

	api.HandleFunc("GET /api/agents", s.listAgents)

	api.HandleFunc("GET /api/tasks", s.listTasks)
	api.HandleFunc("POST /api/tasks", s.createTask)
	api.HandleFunc("GET /api/tasks/{id}", s.getTask)
	api.HandleFunc("PATCH /api/tasks/{id}", s.updateTask)
	api.HandleFunc("DELETE /api/tasks/{id}", s.deleteTask)
	api.HandleFunc("POST /api/tasks/{id}/dispatch", s.dispatchTask)

	api.HandleFunc("GET /api/clients", s.listClients)
	api.HandleFunc("POST /api/clients", s.createClient)
	api.HandleFunc("GET /api/clients/{id}", s.getClient)
	api.HandleFunc("PATCH /api/clients/{id}", s.updateClient)
	api.HandleFunc("DELETE /api/clients/{id}", s.deleteClient)

	api.HandleFunc("GET /api/projects", s.listProjects)
	api.HandleFunc("POST /api/projects", s.createProject)
	api.HandleFunc("GET /api/projects/{id}", s.getProject)
	api.HandleFunc("PATCH /api/projects/{id}", s.updateProject)
	api.HandleFunc("DELETE /api/projects/{id}", s.deleteProject)

	api.HandleFunc("GET /api/comms", s.listComms)
	api.HandleFunc("POST /api/comms", s.createComm)

	api.HandleFunc("GET /api/activity", s.listActivity)
	api.HandleFunc("GET /api/stats", s.handleStats)

	s.mux.Handle("/api/", s.authMiddleware(api))
}

// handleStatus reports daemon health and version.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
	})
}

// listAgents returns the configured roster.
func (s *Server) listAgents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.roster.List())
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
