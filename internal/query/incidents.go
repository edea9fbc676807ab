package query

import (
	"context"

	"pulsecorr/internal/correlation"
	"pulsecorr/internal/vectorstore"
)

// Incident is the projected shape returned by ListIncidents, grounded on
// incidents.py's per-cluster projection.
type Incident struct {
	ID       string                   `json:"id"`
	EnvIDs   []string                 `json:"env_ids"`
	EnvID    string                   `json:"env_id,omitempty"`
	Summary  string                   `json:"summary"`
	Severity string                   `json:"severity"`
	Size     int                      `json:"size"`
	Logs     []correlation.LogSample  `json:"logs"`
	Params   map[string]any           `json:"params"`
}

// IncidentsOptions mirrors list_incidents' query parameters.
type IncidentsOptions struct {
	Limit           int
	EnvID           string
	IncludeLogs     int
	LimitPerSource  int
}

// ListIncidents runs the single-pass clusterer (env-scoped when EnvID is
// set) and projects the resulting clusters into incidents. Returns an empty
// slice, never an error, on clustering failure — matching incidents.py's
// broad except that always degrades to [].
func ListIncidents(ctx context.Context, logs func(os string) vectorstore.Store, disabled bool, opts IncidentsOptions) []Incident {
	if disabled {
		return []Incident{}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	result, err := correlation.ComputeGlobalClusters(ctx, logs, correlation.SinglePassOptions{
		LimitPerSource:        firstPositive(opts.LimitPerSource, 50),
		MaxItemsPerOS:         600,
		IncludeLogsPerCluster: opts.IncludeLogs,
		EnvID:                 opts.EnvID,
	})
	if err != nil {
		return []Incident{}
	}

	clusters := result.Clusters
	if len(clusters) > limit {
		clusters = clusters[:limit]
	}

	out := make([]Incident, 0, len(clusters))
	for _, c := range clusters {
		envIDs := extractEnvIDs(c.SampleLogs)
		var envID string
		if len(envIDs) == 1 {
			envID = envIDs[0]
		}
		out = append(out, Incident{
			ID:       c.ID,
			EnvIDs:   envIDs,
			EnvID:    envID,
			Summary:  c.MedoidDocument,
			Severity: correlation.SeverityFromMedoid(c.MedoidDocument),
			Size:     c.Size,
			Logs:     c.SampleLogs,
			Params:   result.Params,
		})
	}
	return out
}

func extractEnvIDs(samples []correlation.LogSample) []string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range samples {
		if s.EnvID != "" && !seen[s.EnvID] {
			seen[s.EnvID] = true
			out = append(out, s.EnvID)
		}
	}
	return out
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
