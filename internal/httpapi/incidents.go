package httpapi

import (
	"net/http"
	"strconv"

	"pulsecorr/internal/query"
)

func (s *Server) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	includeLogs, _ := strconv.Atoi(q.Get("include_logs"))
	limitPerSource, _ := strconv.Atoi(q.Get("limit_per_source"))
	if q.Get("include_logs") == "" {
		includeLogs = 8
	}

	incidents := query.ListIncidents(r.Context(), s.logs, s.cfg.DisableGlobalClustering, query.IncidentsOptions{
		Limit:          limit,
		EnvID:          q.Get("env_id"),
		IncludeLogs:    includeLogs,
		LimitPerSource: limitPerSource,
	})
	respondJSON(w, http.StatusOK, incidents)
}
