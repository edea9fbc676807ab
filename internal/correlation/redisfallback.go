package correlation

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"pulsecorr/internal/store"
)

const logsStream = "logs"

var (
	redisFallbackNumRE = regexp.MustCompile(`\d+`)
	redisFallbackWSRE  = regexp.MustCompile(`\s+`)
)

// KV is the subset of store.Store the Redis-grouped fallback needs.
type KV interface {
	RevRange(ctx context.Context, stream string, count int64) ([]store.StreamEntry, error)
}

func normalizeGroupKey(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = redisFallbackNumRE.ReplaceAllString(s, "<n>")
	s = redisFallbackWSRE.ReplaceAllString(s, " ")
	if len(s) > 180 {
		s = s[:180]
	}
	return s
}

// redisGroupKey derives a grouping key from a raw log line, preferring a
// handful of well-known JSON fields before falling back to the normalized
// raw text. Grounded on correlation.py's _redis_key_from_line.
func redisGroupKey(line string) string {
	if line == "" {
		return "empty"
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(line), &obj); err == nil {
		var parts []string
		for _, k := range []string{"type", "ruleName", "testName", "summary", "Message", "Name"} {
			if v, ok := obj[k].(string); ok && strings.TrimSpace(v) != "" {
				parts = append(parts, strings.TrimSpace(v))
			}
		}
		if len(parts) > 0 {
			return normalizeGroupKey(strings.Join(parts, " | "))
		}
	}
	return normalizeGroupKey(line)
}

// ComputeRedisGroupedClusters groups the most recent log-stream entries by a
// cheap textual key, used when the vector store is degraded
// (CORRELATION_FALLBACK_REDIS). Grounded on correlation.py's
// _compute_redis_clusters.
func ComputeRedisGroupedClusters(ctx context.Context, kv KV, limit int64, minSize, includeLogsPerCluster int) (Result, error) {
	entries, err := kv.RevRange(ctx, logsStream, limit)
	if err != nil {
		return Result{}, fmt.Errorf("correlation: redis fallback range: %w", err)
	}

	type group struct {
		key     string
		entries []store.StreamEntry
	}
	order := make([]string, 0)
	groups := make(map[string]*group)
	for _, e := range entries {
		line := e.Fields["line"]
		key := redisGroupKey(line)
		g, ok := groups[key]
		if !ok {
			g = &group{key: key}
			groups[key] = g
			order = append(order, key)
		}
		g.entries = append(g.entries, e)
	}

	var clusters []Cluster
	for idx, key := range order {
		g := groups[key]
		if len(g.entries) < minSize {
			continue
		}
		sourceBreakdown := make(map[string]int)
		osBreakdown := make(map[string]int)
		samples := make([]LogSample, 0, includeLogsPerCluster)
		limitSamples := includeLogsPerCluster
		if limitSamples < 0 {
			limitSamples = 0
		}
		for i, e := range g.entries {
			src := e.Fields["source"]
			osHint := "unknown"
			if strings.Contains(src, ":") {
				osHint = src[strings.Index(src, ":")+1:]
			}
			sourceBreakdown[src]++
			osBreakdown[osHint]++
			if i < limitSamples {
				samples = append(samples, LogSample{
					ID:       e.ID,
					Document: e.Fields["line"],
					Raw:      e.Fields["line"],
					OS:       osHint,
					Source:   src,
				})
			}
		}
		clusters = append(clusters, Cluster{
			ID:              fmt.Sprintf("gcluster_%d", idx),
			Size:            len(g.entries),
			MedoidDocument:  key,
			SourceBreakdown: sourceBreakdown,
			OSBreakdown:     osBreakdown,
			SampleLogs:      samples,
		})
	}

	return Result{
		Clusters: clusters,
		Params: map[string]any{
			"algorithm":                "grouped",
			"basis":                    "redis",
			"limit":                    limit,
			"min_size":                 minSize,
			"include_logs_per_cluster": includeLogsPerCluster,
		},
	}, nil
}
