// Package metrics implements a best-effort, Redis-counter-based cluster
// metrics recorder, gated by ENABLE_CLUSTER_METRICS. No Prometheus/OTel
// dependency is wired: the pack's teacher repo has no metrics exporter, and
// the distilled spec treats this purely as optional counters for the
// aggregator/enricher to bump, not an observability surface of its own.
package metrics

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Incrementer is the subset of store.Store metrics needs.
type Incrementer interface {
	Incr(ctx context.Context, key string) (int64, error)
}

// Recorder increments cluster-lifecycle counters when enabled; every method
// is a no-op (and swallows its own errors) when disabled, so callers never
// need to branch on the toggle themselves.
type Recorder struct {
	kv      Incrementer
	enabled bool
	logger  zerolog.Logger
}

// New builds a Recorder. enabled should come from config.EnableClusterMetrics.
func New(kv Incrementer, enabled bool, logger zerolog.Logger) *Recorder {
	return &Recorder{kv: kv, enabled: enabled, logger: logger}
}

func (r *Recorder) bump(ctx context.Context, key string) {
	if !r.enabled {
		return
	}
	if _, err := r.kv.Incr(ctx, key); err != nil {
		r.logger.Info().Err(err).Str("key", key).Msg("metrics increment failed")
	}
}

// ClusterCreated records a new online cluster being minted.
func (r *Recorder) ClusterCreated(ctx context.Context, osName string) {
	r.bump(ctx, fmt.Sprintf("metrics:clusters_created:%s", osName))
}

// ClusterMatched records an incoming log joining an existing cluster.
func (r *Recorder) ClusterMatched(ctx context.Context, osName string) {
	r.bump(ctx, fmt.Sprintf("metrics:clusters_matched:%s", osName))
}

// CandidatePublished records a cluster candidate being published for
// enrichment.
func (r *Recorder) CandidatePublished(ctx context.Context, osName string) {
	r.bump(ctx, fmt.Sprintf("metrics:candidates_published:%s", osName))
}

// AlertPublished records an alert being published by the enricher.
func (r *Recorder) AlertPublished(ctx context.Context, osName, failureType string) {
	r.bump(ctx, fmt.Sprintf("metrics:alerts_published:%s:%s", osName, failureType))
}
