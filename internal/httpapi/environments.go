package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"pulsecorr/internal/query"
)

func (s *Server) handleListEnvironments(w http.ResponseWriter, r *http.Request) {
	items := s.environments.ListEnvironmentSummaries(r.Context(), time.Now())
	respondJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleEnvironmentDetail(w http.ResponseWriter, r *http.Request) {
	envID := r.PathValue("id")
	ids := s.environments.DiscoverEnvironments(r.Context())
	if !containsString(ids, envID) {
		respondError(w, http.StatusNotFound, errors.New("env_id "+envID+" not found in ingested data"))
		return
	}

	var nodes, edges any
	if s.cfg.DisableGlobalClustering {
		nodes, edges = []any{}, []any{}
	} else {
		n, e := s.environments.BuildTopology(r.Context(), envID)
		nodes, edges = n, e
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"id":           envID,
		"name":         query.TitleCaseEnvID(envID),
		"region":       nil,
		"status":       "healthy",
		"topology":     map[string]any{"nodes": nodes, "edges": edges},
		"incidents":    []any{},
		"clusters":     []any{},
		"node_impacts": map[string]any{},
		"params":       map[string]any{"timestamp": time.Now().UTC().Format(time.RFC3339)},
	})
}

func (s *Server) handleEnvironmentCorrelation(w http.ResponseWriter, r *http.Request) {
	envID := r.PathValue("id")
	ids := s.environments.DiscoverEnvironments(r.Context())
	if !containsString(ids, envID) {
		respondError(w, http.StatusNotFound, errors.New("env_id "+envID+" not found in ingested data"))
		return
	}

	if cached, ok := s.envCache.Get(envID); ok {
		respondJSON(w, http.StatusOK, cached)
		return
	}

	var nodes, edges any
	var overlays, impacts, params any
	if s.cfg.DisableGlobalClustering {
		nodes, edges = []any{}, []any{}
		overlays, impacts, params = []any{}, map[string]any{}, map[string]any{"disabled": true}
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), correlationQueryTimeout)
		defer cancel()
		n, e := s.environments.BuildTopology(ctx, envID)
		nodes, edges = n, e
		overlays, impacts, params = query.BuildEnvironmentCorrelation(ctx, s.logs, s.cfg.DisableGlobalClustering, envID)
	}

	payload := map[string]any{
		"environment_id": envID,
		"topology":       map[string]any{"nodes": nodes, "edges": edges},
		"clusters":       overlays,
		"node_impacts":   impacts,
		"params":         params,
	}
	s.envCache.Set(envID, payload)
	respondJSON(w, http.StatusOK, payload)
}

func containsString(vals []string, v string) bool {
	for _, x := range vals {
		if x == v {
			return true
		}
	}
	return false
}
