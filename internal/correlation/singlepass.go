package correlation

import (
	"context"
	"fmt"

	"pulsecorr/internal/vectorstore"
)

// SinglePassOptions controls the streaming fallback clusterer.
type SinglePassOptions struct {
	LimitPerSource        int
	MaxItemsPerOS         int
	Threshold             float64
	MinSize               int
	IncludeLogsPerCluster int
	EnvID                 string // optional, restricts to one environment
}

type runningCentroid struct {
	vec   []float64
	count int
}

func (c *runningCentroid) update(v []float32) {
	if c.vec == nil {
		c.vec = make([]float64, len(v))
	}
	c.count++
	for i, x := range v {
		c.vec[i] += (float64(x) - c.vec[i]) / float64(c.count)
	}
}

func (c *runningCentroid) float32() []float32 {
	out := make([]float32, len(c.vec))
	for i, x := range c.vec {
		out[i] = float32(x)
	}
	return out
}

// ComputeGlobalClusters streams up to LimitPerSource (capped by
// MaxItemsPerOS) recent documents with embeddings per OS collection and
// assigns each to the first existing centroid within Threshold, else seeds
// a new centroid (running mean). Clusters with fewer than MinSize members
// are dropped. Grounded on spec.md §4.G's single-pass fallback description.
func ComputeGlobalClusters(ctx context.Context, logs func(os string) vectorstore.Store, opts SinglePassOptions) (Result, error) {
	if opts.Threshold <= 0 {
		opts.Threshold = 0.4
	}
	if opts.MinSize <= 0 {
		opts.MinSize = 5
	}
	limit := opts.LimitPerSource
	if opts.MaxItemsPerOS > 0 && limit > opts.MaxItemsPerOS {
		limit = opts.MaxItemsPerOS
	}
	if limit <= 0 {
		limit = 200
	}

	type member struct {
		os       string
		point    vectorstore.Point
	}
	var centroids []runningCentroid
	var clusterMembers [][]member

	for _, osName := range clusteredOSSet {
		store := logs(osName)
		if store == nil {
			continue
		}
		filter := map[string]string(nil)
		if opts.EnvID != "" {
			filter = map[string]string{"env_id": opts.EnvID}
		}
		points, err := store.GetWhere(ctx, filter, limit)
		if err != nil {
			return Result{}, fmt.Errorf("correlation: list logs for os=%s: %w", osName, err)
		}

		for _, p := range points {
			if len(p.Vector) == 0 {
				continue
			}
			best := -1
			bestDist := opts.Threshold
			for i := range centroids {
				d := euclidean(p.Vector, centroids[i].float32())
				if d <= bestDist {
					bestDist = d
					best = i
				}
			}
			if best == -1 {
				centroids = append(centroids, runningCentroid{})
				clusterMembers = append(clusterMembers, nil)
				best = len(centroids) - 1
			}
			centroids[best].update(p.Vector)
			clusterMembers[best] = append(clusterMembers[best], member{os: osName, point: p})
		}
	}

	var clusters []Cluster
	for i, members := range clusterMembers {
		if len(members) < opts.MinSize {
			continue
		}
		sourceBreakdown := make(map[string]int)
		osBreakdown := make(map[string]int)
		samples := make([]LogSample, 0, opts.IncludeLogsPerCluster)
		medoid := ""
		for j, m := range members {
			osBreakdown[m.os]++
			source := m.point.Metadata["source"]
			if source != "" {
				sourceBreakdown[source]++
			}
			if j == 0 {
				medoid = m.point.Document
			}
			if opts.IncludeLogsPerCluster > 0 && len(samples) < opts.IncludeLogsPerCluster {
				samples = append(samples, LogSample{
					ID:       m.point.ID,
					Document: m.point.Document,
					Raw:      m.point.Document,
					OS:       m.os,
					Source:   source,
					EnvID:    m.point.Metadata["env_id"],
				})
			}
		}
		clusters = append(clusters, Cluster{
			ID:              fmt.Sprintf("gcluster_%d", i),
			Size:            len(members),
			Centroid:        centroids[i].float32(),
			MedoidDocument:  medoid,
			SourceBreakdown: sourceBreakdown,
			OSBreakdown:     osBreakdown,
			SampleLogs:      samples,
		})
	}

	return Result{
		Clusters: clusters,
		Params: map[string]any{
			"algorithm":   "single_pass",
			"basis":       "logs",
			"threshold":   opts.Threshold,
			"min_size":    opts.MinSize,
			"env_id":      opts.EnvID,
		},
	}, nil
}
