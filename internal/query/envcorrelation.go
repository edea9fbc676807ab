package query

import (
	"context"
	"sort"

	"pulsecorr/internal/correlation"
	"pulsecorr/internal/normalize"
	"pulsecorr/internal/vectorstore"
)

// ClusterOverlay is one env-scoped cluster rendered for map/topology
// overlay, grounded on environments.py's _build_correlation.
type ClusterOverlay struct {
	ID              string                  `json:"id"`
	Size            int                     `json:"size"`
	Severity        string                  `json:"severity"`
	Medoid          string                  `json:"medoid"`
	HostBreakdown   map[string]int          `json:"host_breakdown"`
	OSBreakdown     map[string]int          `json:"os_breakdown"`
	SourceBreakdown map[string]int          `json:"source_breakdown"`
	SampleLogs      []correlation.LogSample `json:"sample_logs"`
}

// NodeImpact summarizes, per host, the worst severity and which clusters
// touched it.
type NodeImpact struct {
	Severity string              `json:"severity"`
	Clusters []NodeImpactCluster `json:"clusters"`
}

// NodeImpactCluster is one cluster's contribution to a node's impact list.
type NodeImpactCluster struct {
	ID     string `json:"id"`
	Weight int    `json:"weight"`
}

// BuildEnvironmentCorrelation computes per-environment cluster overlays and
// node impact severities from the single-pass clusterer, scoped to envID.
// Returns empty results (never an error) when clustering is disabled or
// fails, matching environments.py's _build_correlation degraded paths.
func BuildEnvironmentCorrelation(ctx context.Context, logs func(os string) vectorstore.Store, disabled bool, envID string) ([]ClusterOverlay, map[string]NodeImpact, map[string]any) {
	if disabled {
		return nil, map[string]NodeImpact{}, map[string]any{"disabled": true}
	}

	result, err := correlation.ComputeGlobalClusters(ctx, logs, correlation.SinglePassOptions{
		LimitPerSource:        80,
		IncludeLogsPerCluster: 12,
		MaxItemsPerOS:         400,
		EnvID:                 envID,
	})
	if err != nil {
		return nil, map[string]NodeImpact{}, map[string]any{"error": "clustering_failed"}
	}

	var overlays []ClusterOverlay
	impacts := make(map[string]NodeImpact)

	for _, c := range result.Clusters {
		hostCounts := make(map[string]int)
		for _, s := range c.SampleLogs {
			raw := s.Raw
			if raw == "" {
				raw = s.Document
			}
			for _, h := range normalize.ExtractHostIdentifiers(raw) {
				hostCounts[h]++
			}
		}
		if len(hostCounts) == 0 {
			continue
		}

		severity := correlation.SeverityFromMedoid(c.MedoidDocument)
		samples := c.SampleLogs
		if len(samples) > 10 {
			samples = samples[:10]
		}
		overlays = append(overlays, ClusterOverlay{
			ID:              c.ID,
			Size:            c.Size,
			Severity:        severity,
			Medoid:          c.MedoidDocument,
			HostBreakdown:   hostCounts,
			OSBreakdown:     c.OSBreakdown,
			SourceBreakdown: c.SourceBreakdown,
			SampleLogs:      samples,
		})

		for host, cnt := range hostCounts {
			ni := impacts[host]
			if ni.Severity == "" {
				ni.Severity = "healthy"
			}
			ni.Clusters = append(ni.Clusters, NodeImpactCluster{ID: c.ID, Weight: cnt})
			switch {
			case severity == "critical":
				ni.Severity = "critical"
			case severity == "warning" && ni.Severity != "critical":
				ni.Severity = "warning"
			}
			impacts[host] = ni
		}
	}

	sort.Slice(overlays, func(i, j int) bool { return overlays[i].Size > overlays[j].Size })
	return overlays, impacts, result.Params
}
