package correlation

import (
	"context"
	"fmt"

	"pulsecorr/internal/vectorstore"
)

var clusteredOSSet = []string{"linux", "macos", "windows", "network"}

// PrototypeSource resolves the per-OS prototype and log vector stores used
// by the prototype clustering pass.
type PrototypeSource struct {
	Prototypes func(os string) vectorstore.Store
	Logs       func(os string) vectorstore.Store
}

// ComputeGlobalPrototypeClusters concatenates every OS's prototype vectors
// and runs HDBSCAN over the combined set, then computes medoid, breakdown,
// and sample-log detail per dense cluster. Grounded on
// compute_global_prototype_clusters_hdbscan's call shape (correlation.py).
func ComputeGlobalPrototypeClusters(ctx context.Context, src PrototypeSource, opts HDBSCANOptions, includeLogsPerCluster int) (Result, error) {
	type proto struct {
		os   string
		id   string
		vec  []float32
		doc  string
		meta map[string]string
	}
	var all []proto

	for _, osName := range clusteredOSSet {
		store := src.Prototypes(osName)
		if store == nil {
			continue
		}
		points, err := store.GetWhere(ctx, nil, 5000)
		if err != nil {
			return Result{}, fmt.Errorf("correlation: list prototypes for os=%s: %w", osName, err)
		}
		for _, p := range points {
			all = append(all, proto{os: osName, id: p.ID, vec: p.Vector, doc: p.Document, meta: p.Metadata})
		}
	}

	if len(all) == 0 {
		return Result{Clusters: nil, Params: map[string]any{"algorithm": "hdbscan", "basis": "prototypes"}}, nil
	}

	vectors := make([][]float32, len(all))
	for i, p := range all {
		vectors[i] = p.vec
	}
	labels := runHDBSCAN(vectors, opts)

	byLabel := make(map[int][]int)
	for i, l := range labels {
		if l == -1 {
			continue
		}
		byLabel[l] = append(byLabel[l], i)
	}

	clusters := make([]Cluster, 0, len(byLabel))
	for label, idxs := range byLabel {
		sourceBreakdown := make(map[string]int)
		osBreakdown := make(map[string]int)
		samples := make([]LogSample, 0, includeLogsPerCluster)
		medoid := ""
		clusterID := fmt.Sprintf("gcluster_%d", label)

		for i, idx := range idxs {
			p := all[idx]
			osBreakdown[p.os]++
			if i == 0 {
				medoid = p.doc
			}
			if len(samples) < includeLogsPerCluster {
				evidence, _ := src.Logs(p.os).GetWhere(ctx, map[string]string{"cluster_id": p.id}, 1)
				raw := p.doc
				envID := ""
				if len(evidence) > 0 {
					raw = evidence[0].Document
					envID = evidence[0].Metadata["env_id"]
				}
				samples = append(samples, LogSample{
					ID:       p.id,
					Document: p.doc,
					Raw:      raw,
					OS:       p.os,
					EnvID:    envID,
				})
			}
		}

		clusters = append(clusters, Cluster{
			ID:              clusterID,
			Size:            len(idxs),
			MedoidDocument:  medoid,
			SourceBreakdown: sourceBreakdown,
			OSBreakdown:     osBreakdown,
			SampleLogs:      samples,
		})
	}

	return Result{
		Clusters: clusters,
		Params: map[string]any{
			"algorithm":        "hdbscan",
			"basis":            "prototypes",
			"min_cluster_size": opts.MinClusterSize,
			"min_samples":      opts.MinSamples,
		},
	}, nil
}
