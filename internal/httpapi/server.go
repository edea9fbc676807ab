// Package httpapi exposes the alert/incident/environment/correlation query
// surface over HTTP, using the Go 1.22+ method-pattern ServeMux the way the
// teacher's internal/httpapi/server.go does.
package httpapi

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"pulsecorr/internal/alerts"
	"pulsecorr/internal/config"
	"pulsecorr/internal/correlation"
	"pulsecorr/internal/query"
	"pulsecorr/internal/vectorstore"
)

// Server wires the alert store, environment/incident query layer, and
// cross-source correlation engine to HTTP handlers.
type Server struct {
	mux    *http.ServeMux
	logger zerolog.Logger

	alertStore   *alerts.Store
	environments *query.Environments
	logs         func(os string) vectorstore.Store
	prototypes   func(os string) vectorstore.Store
	kv           correlation.KV

	cfg config.Config

	globalCache *correlation.TTLCache
	graphCache  *correlation.TTLCache
	envCache    *correlation.TTLCache
}

// Deps collects the Server's external dependencies.
type Deps struct {
	AlertStore   *alerts.Store
	Environments *query.Environments
	Logs         func(os string) vectorstore.Store
	Prototypes   func(os string) vectorstore.Store
	KV           correlation.KV
	Config       config.Config
	Logger       zerolog.Logger
}

// NewServer builds a Server and registers its routes.
func NewServer(d Deps) *Server {
	s := &Server{
		mux:          http.NewServeMux(),
		logger:       d.Logger,
		alertStore:   d.AlertStore,
		environments: d.Environments,
		logs:         d.Logs,
		prototypes:   d.Prototypes,
		kv:           d.KV,
		cfg:          d.Config,
		globalCache:  correlation.NewTTLCache(30*time.Second, nil),
		graphCache:   correlation.NewTTLCache(30*time.Second, nil),
		envCache:     correlation.NewTTLCache(30*time.Second, nil),
	}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)

	s.mux.HandleFunc("GET /alerts", s.handleListAlerts)
	s.mux.HandleFunc("POST /alerts/{id}/persist", s.handlePersistAlert)
	s.mux.HandleFunc("POST /alerts/{id}/feedback", s.handleAddFeedback)

	s.mux.HandleFunc("GET /incidents", s.handleListIncidents)

	s.mux.HandleFunc("GET /environments", s.handleListEnvironments)
	s.mux.HandleFunc("GET /environments/{id}", s.handleEnvironmentDetail)
	s.mux.HandleFunc("GET /environments/{id}/correlation", s.handleEnvironmentCorrelation)

	s.mux.HandleFunc("GET /correlation/global", s.handleGlobalCorrelation)
	s.mux.HandleFunc("GET /correlation/graph", s.handleCorrelationGraph)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
