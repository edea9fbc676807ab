// Package enricher implements the cluster enricher: it consumes cluster
// candidates, gathers prototype/neighbor/evidence context, classifies the
// cluster via an LLM, and publishes an alert.
// Grounded on original_source/app/streams/cluster_enricher.py.
package enricher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pulsecorr/internal/llm"
	"pulsecorr/internal/metrics"
	"pulsecorr/internal/store"
	"pulsecorr/internal/vectorstore"
)

const (
	candidatesStream = "clusters:candidates"
	alertsStream     = "alerts"
	consumerGroup    = "clusters_enrichers"
	consumerName     = "cluster_enricher_1"
	batchSize        = 5
	blockDuration    = time.Second
	neighborCount    = 8
	evidenceLimit    = 30
)

// corruptedIndexSubstrings are the only ANN errors the enricher swallows;
// anything else propagates and is logged, matching the Python's narrow
// except clause for known ChromaDB HNSW corruption messages.
var corruptedIndexSubstrings = []string{"Nothing found on disk", "hnsw segment reader"}

// KV is the subset of store.Store the enricher needs.
type KV interface {
	EnsureGroup(ctx context.Context, stream, group, id string) error
	ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]store.StreamEntry, error)
	Ack(ctx context.Context, stream, group string, ids []string) error
	XAdd(ctx context.Context, stream string, fields map[string]any) (string, error)
	HSet(ctx context.Context, key string, fields map[string]any) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Config holds the tunables the worker reads from package config.
type Config struct {
	AlertsTTL               time.Duration
	EnableClusterHypothesis bool
}

// Worker is the cluster enricher's cooperative loop.
type Worker struct {
	kv         KV
	prototypes func(os string) vectorstore.Store
	templates  func(os string) vectorstore.Store
	logs       func(os string) vectorstore.Store
	classifier llm.Classifier
	cfg        Config
	logger     zerolog.Logger
	metrics    *metrics.Recorder
}

// New builds a Worker.
func New(kv KV, prototypes, templates, logs func(os string) vectorstore.Store, classifier llm.Classifier, cfg Config, logger zerolog.Logger, rec *metrics.Recorder) *Worker {
	return &Worker{kv: kv, prototypes: prototypes, templates: templates, logs: logs, classifier: classifier, cfg: cfg, logger: logger, metrics: rec}
}

// Run consumes the cluster-candidates stream until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.kv.EnsureGroup(ctx, candidatesStream, consumerGroup, "$"); err != nil {
		return err
	}
	w.logger.Info().Str("stream", candidatesStream).Str("group", consumerGroup).Msg("cluster enricher starting")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		entries, err := w.kv.ReadGroup(ctx, candidatesStream, consumerGroup, consumerName, batchSize, blockDuration)
		if err != nil {
			w.logger.Warn().Err(err).Msg("xreadgroup failed")
			time.Sleep(time.Second)
			continue
		}

		for _, e := range entries {
			w.processCandidate(ctx, e)
			// Ack regardless of processing errors: retrying a candidate would
			// re-publish a duplicate alert, which is worse than dropping one.
			if err := w.kv.Ack(ctx, candidatesStream, consumerGroup, []string{e.ID}); err != nil {
				w.logger.Warn().Err(err).Str("id", e.ID).Msg("xack failed")
			}
		}
	}
}

func (w *Worker) processCandidate(ctx context.Context, e store.StreamEntry) {
	osName := e.Fields["os"]
	if osName == "" {
		osName = "unknown"
	}
	clusterID := e.Fields["cluster_id"]

	protoStore := w.prototypes(osName)
	protoPoints, err := protoStore.Get(ctx, []string{clusterID})
	if err != nil {
		w.logger.Info().Err(err).Str("cluster_id", clusterID).Msg("prototype lookup failed")
	}
	var centroid []float32
	var medoidDoc string
	var protoMeta map[string]string
	if len(protoPoints) > 0 {
		centroid = protoPoints[0].Vector
		medoidDoc = protoPoints[0].Document
		protoMeta = protoPoints[0].Metadata
	}
	if protoMeta == nil {
		protoMeta = make(map[string]string)
	}

	var neighborDocs []string
	if len(centroid) > 0 {
		neighbors, err := w.templates(osName).Query(ctx, centroid, neighborCount, nil)
		if err != nil {
			if !isKnownCorruptedIndexError(err) {
				w.logger.Warn().Err(err).Str("cluster_id", clusterID).Msg("template neighbor query failed")
			} else {
				w.logger.Info().Str("cluster_id", clusterID).Str("os", osName).Msg("template collection index corrupted, skipping neighbor lookup")
			}
		} else {
			for _, n := range neighbors {
				neighborDocs = append(neighborDocs, n.Document)
			}
		}
	}

	evidence := w.retrieveEvidence(ctx, osName, clusterID, e.Fields["sample_logs"])

	var hypothesis string
	if w.cfg.EnableClusterHypothesis {
		hypothesis = generateHypothesis(osName, medoidDoc)
	}

	result, err := w.classifier.Classify(ctx, llm.ClassifyInput{
		OS:         osName,
		ClusterID:  clusterID,
		MedoidDoc:  medoidDoc,
		Neighbors:  neighborDocs,
		Evidence:   evidence,
		Hypothesis: hypothesis,
	})
	if err != nil {
		w.logger.Info().Err(err).Str("cluster_id", clusterID).Msg("cluster classification failed")
		return
	}

	w.publishAlert(ctx, osName, clusterID, e.Fields["env_ids"], evidence, result)
	w.updatePrototype(ctx, osName, clusterID, protoMeta, result)
}

// retrieveEvidence fetches up to evidenceLimit log lines belonging to the
// cluster from the log collection, falling back to the candidate's own
// sample_logs when the collection yields nothing (per the candidate-carried
// fallback this system needs since the original's get()-by-filter path can
// legitimately return empty for a freshly created cluster).
func (w *Worker) retrieveEvidence(ctx context.Context, osName, clusterID, sampleLogsJSON string) []string {
	points, err := w.logs(osName).GetWhere(ctx, map[string]string{"cluster_id": clusterID}, evidenceLimit)
	if err != nil {
		w.logger.Info().Err(err).Str("cluster_id", clusterID).Msg("evidence lookup failed")
	}
	if len(points) > 0 {
		out := make([]string, 0, len(points))
		for _, p := range points {
			out = append(out, p.Document)
		}
		return out
	}

	var samples []map[string]string
	if err := json.Unmarshal([]byte(sampleLogsJSON), &samples); err != nil {
		return nil
	}
	out := make([]string, 0, len(samples))
	for _, s := range samples {
		if t := s["templated"]; t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (w *Worker) publishAlert(ctx context.Context, osName, clusterID, envIDsJSON string, evidence []string, result llm.Classification) {
	resultJSON, _ := json.Marshal(result)
	evidenceJSON, _ := json.Marshal(evidence)
	if envIDsJSON == "" {
		envIDsJSON = "[]"
	}

	var envID string
	var envIDs []string
	if err := json.Unmarshal([]byte(envIDsJSON), &envIDs); err == nil && len(envIDs) > 0 {
		envID = envIDs[0]
	}

	entryID, err := w.kv.XAdd(ctx, alertsStream, map[string]any{
		"type":         "cluster",
		"os":           osName,
		"cluster_id":   clusterID,
		"failure_type": result.FailureType,
		"confidence":   strconv.FormatFloat(result.Confidence, 'f', -1, 64),
		"result":       string(resultJSON),
	})
	if err != nil {
		w.logger.Warn().Err(err).Str("cluster_id", clusterID).Msg("failed to publish alert")
		return
	}

	hashFields := map[string]any{
		"type":          "cluster",
		"os":            osName,
		"cluster_id":    clusterID,
		"failure_type":  result.FailureType,
		"confidence":    strconv.FormatFloat(result.Confidence, 'f', -1, 64),
		"result":        string(resultJSON),
		"summary":       result.Summary,
		"solution":      result.Recommendation,
		"env_id":        envID,
		"env_ids":       envIDsJSON,
		"evidence_logs": string(evidenceJSON),
	}
	hashKey := "alert:" + entryID
	if err := w.kv.HSet(ctx, hashKey, hashFields); err != nil {
		w.logger.Warn().Err(err).Str("id", entryID).Msg("failed to write alert hash")
		return
	}
	// Open question (a): the TTL must be set explicitly here; nothing upstream does it.
	if err := w.kv.Expire(ctx, hashKey, w.cfg.AlertsTTL); err != nil {
		w.logger.Warn().Err(err).Str("id", entryID).Msg("failed to set alert TTL")
	}
	w.logger.Info().Str("id", entryID).Str("os", osName).Str("cluster_id", clusterID).Msg("alert published")
	w.metrics.AlertPublished(ctx, osName, result.FailureType)
}

func (w *Worker) updatePrototype(ctx context.Context, osName, clusterID string, meta map[string]string, result llm.Classification) {
	updated := make(map[string]string, len(meta)+3)
	for k, v := range meta {
		updated[k] = v
	}
	updated["label"] = result.FailureType
	updated["rationale"] = "llm_cluster"
	if result.Recommendation != "" {
		updated["solution"] = result.Recommendation
	}
	if err := w.prototypes(osName).Update(ctx, clusterID, updated); err != nil {
		w.logger.Info().Err(err).Str("cluster_id", clusterID).Msg("prototype metadata update failed")
	}
}

func isKnownCorruptedIndexError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range corruptedIndexSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// generateHypothesis builds a terse HyDE-style seed query from the cluster's
// medoid document, kept behind ENABLE_CLUSTER_HYPOTHESIS as extra context
// for the classifier rather than a retrieval query (retrieval here always
// uses the cluster_id filter, never a hypothesis-driven similarity search).
func generateHypothesis(osName, medoidDoc string) string {
	if medoidDoc == "" {
		return ""
	}
	return fmt.Sprintf("A %s system may be experiencing: %s", osName, medoidDoc)
}
