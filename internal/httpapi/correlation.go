package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"pulsecorr/internal/correlation"
)

const correlationQueryTimeout = 30 * time.Second

func parseGlobalCorrelationParams(r *http.Request) (algorithm, basis string, minClusterSize int, minSamples int, limitPerSource, includeLogsPerCluster int, threshold float64, minSize int) {
	q := r.URL.Query()
	algorithm = firstNonEmptyStr(q.Get("algorithm"), "hdbscan")
	basis = firstNonEmptyStr(q.Get("basis"), "prototypes")
	minClusterSize = atoiOr(q.Get("min_cluster_size"), 5)
	minSamples = atoiOr(q.Get("min_samples"), 0)
	limitPerSource = atoiOr(q.Get("limit_per_source"), 200)
	includeLogsPerCluster = atoiOr(q.Get("include_logs_per_cluster"), 20)
	threshold = atofOr(q.Get("threshold"), 0)
	minSize = atoiOr(q.Get("min_size"), 0)
	return
}

func firstNonEmptyStr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func atoiOr(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func atofOr(v string, def float64) float64 {
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// resolveGlobalCorrelation implements the mode dispatch shared by
// /correlation/global and /correlation/graph: DISABLE_GLOBAL_CLUSTERING
// short-circuits to empty, CORRELATION_FALLBACK_REDIS forces the grouped
// Redis fallback, HDBSCAN-over-prototypes is preferred and falls back to
// single-pass-over-logs when it yields zero clusters (the "demo-friendly
// fallback" from correlation.py), and any other mode goes straight to
// single-pass.
func (s *Server) resolveGlobalCorrelation(ctx context.Context, algorithm, basis string, minClusterSize, minSamples, limitPerSource, includeLogsPerCluster int, threshold float64, minSize int) correlation.Result {
	if s.cfg.DisableGlobalClustering {
		return correlation.Result{Clusters: nil, Params: map[string]any{"disabled": true}}
	}

	if s.cfg.DisableHDBSCAN {
		algorithm = "single_pass"
		basis = "logs"
	}

	if s.cfg.CorrelationFallbackRedis {
		result, err := correlation.ComputeRedisGroupedClusters(ctx, s.kv, 300, max(2, minClusterSize), includeLogsPerCluster)
		if err != nil {
			return correlation.Result{Clusters: nil, Params: map[string]any{"error": "clustering_failed"}}
		}
		return result
	}

	if basis == "prototypes" && algorithm == "hdbscan" {
		protoResult, err := correlation.ComputeGlobalPrototypeClusters(ctx, correlation.PrototypeSource{Prototypes: s.prototypes, Logs: s.logs}, correlation.HDBSCANOptions{
			MinClusterSize: minClusterSize,
			MinSamples:     minSamples,
		}, includeLogsPerCluster)
		if err != nil {
			return correlation.Result{Clusters: nil, Params: map[string]any{"error": "clustering_failed"}}
		}
		if len(protoResult.Clusters) > 0 {
			return protoResult
		}

		fallbackThreshold := threshold
		if fallbackThreshold <= 0 {
			fallbackThreshold = s.cfg.ClusterDistanceThreshold
		}
		fallbackMinSize := minSize
		if fallbackMinSize <= 0 {
			fallbackMinSize = max(2, s.cfg.ClusterMinSize/2)
		}
		logsResult, err := correlation.ComputeGlobalClusters(ctx, s.logs, correlation.SinglePassOptions{
			LimitPerSource:        limitPerSource,
			Threshold:             fallbackThreshold,
			MinSize:               fallbackMinSize,
			IncludeLogsPerCluster: includeLogsPerCluster,
		})
		if err != nil {
			return correlation.Result{Clusters: nil, Params: map[string]any{"error": "clustering_failed"}}
		}
		if logsResult.Params == nil {
			logsResult.Params = map[string]any{}
		}
		logsResult.Params["basis"] = "logs"
		logsResult.Params["algorithm"] = "single_pass"
		return logsResult
	}

	logsResult, err := correlation.ComputeGlobalClusters(ctx, s.logs, correlation.SinglePassOptions{
		LimitPerSource:        limitPerSource,
		Threshold:             threshold,
		MinSize:               minSize,
		MaxItemsPerOS:         200,
		IncludeLogsPerCluster: includeLogsPerCluster,
	})
	if err != nil {
		return correlation.Result{Clusters: nil, Params: map[string]any{"error": "clustering_failed"}}
	}
	return logsResult
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (s *Server) handleGlobalCorrelation(w http.ResponseWriter, r *http.Request) {
	algorithm, basis, minClusterSize, minSamples, limitPerSource, includeLogsPerCluster, threshold, minSize := parseGlobalCorrelationParams(r)
	cacheKey := r.URL.RawQuery
	if cached, ok := s.globalCache.Get(cacheKey); ok {
		respondJSON(w, http.StatusOK, cached)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), correlationQueryTimeout)
	defer cancel()
	result := s.resolveGlobalCorrelation(ctx, algorithm, basis, minClusterSize, minSamples, limitPerSource, includeLogsPerCluster, threshold, minSize)
	s.globalCache.Set(cacheKey, result)
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleCorrelationGraph(w http.ResponseWriter, r *http.Request) {
	algorithm, basis, minClusterSize, minSamples, limitPerSource, includeLogsPerCluster, threshold, minSize := parseGlobalCorrelationParams(r)
	cacheKey := r.URL.RawQuery
	if cached, ok := s.graphCache.Get(cacheKey); ok {
		respondJSON(w, http.StatusOK, cached)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), correlationQueryTimeout)
	defer cancel()
	result := s.resolveGlobalCorrelation(ctx, algorithm, basis, minClusterSize, minSamples, limitPerSource, includeLogsPerCluster, threshold, minSize)
	graph := correlation.BuildGraph(result)
	s.graphCache.Set(cacheKey, graph)
	respondJSON(w, http.StatusOK, graph)
}
