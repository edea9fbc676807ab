// Package aggregator implements the issues aggregator: it consumes the raw
// ingest stream, online-clusters each line, tracks in-memory per-issue log
// groups, and emits cluster candidates and idle issue summaries.
// Grounded on original_source/app/streams/issues_aggregator.py.
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pulsecorr/internal/cluster"
	"pulsecorr/internal/metrics"
	"pulsecorr/internal/normalize"
	"pulsecorr/internal/store"
	"pulsecorr/internal/vectorstore"
)

// KV is the subset of store.Store the aggregator needs, narrowed to an
// interface so tests can exercise the worker against a fake.
type KV interface {
	EnsureGroup(ctx context.Context, stream, group, id string) error
	ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]store.StreamEntry, error)
	Ack(ctx context.Context, stream, group string, ids []string) error
	Incr(ctx context.Context, key string) (int64, error)
	Get(ctx context.Context, key string) (string, error)
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	XAdd(ctx context.Context, stream string, fields map[string]any) (string, error)
}

const (
	logsStream       = "logs"
	consumerGroup    = "issues_aggregator"
	consumerName     = "aggregator_1"
	candidatesStream = "clusters:candidates"
	issuesStream     = "issues:candidates"
	batchSize        = 100
	blockDuration    = time.Second
	lastCandidateTTL = time.Hour
)

// logEntry is one raw log line attached to an in-memory Issue.
type logEntry struct {
	raw       string
	templated string
	component string
	pid       string
	ts        time.Time
}

// issue groups log lines sharing an (os, component, pid) key while they are
// still arriving. Owned exclusively by the worker goroutine — never shared,
// so no mutex guards it.
type issue struct {
	os         string
	key        string
	createdAt  time.Time
	lastSeenAt time.Time
	logs       []logEntry
}

func (i *issue) topLogs(limit int) []logEntry {
	if limit <= 0 || limit >= len(i.logs) {
		return i.logs
	}
	return i.logs[:limit]
}

// Config holds the tunables the worker reads from package config.
type Config struct {
	ClusterMinLogsForClassification      int
	ClusterCandidateRepublishEvery       int
	ClusterCandidateRepublishMinInterval time.Duration
	IssueInactivity                      time.Duration
	IssueMaxLogsForLLM                   int
}

// Worker is the issues aggregator's cooperative loop.
type Worker struct {
	kv       KV
	embedder vectorstore.Embedder
	assigner *cluster.Assigner
	logStore func(os string) vectorstore.Store
	cfg      Config
	logger   zerolog.Logger
	metrics  *metrics.Recorder

	issues map[string]*issue
}

// New builds a Worker. logStore resolves the per-OS log vector collection
// used for the best-effort metadata backfill in step 4.
func New(kv KV, embedder vectorstore.Embedder, assigner *cluster.Assigner, logStore func(os string) vectorstore.Store, cfg Config, logger zerolog.Logger, rec *metrics.Recorder) *Worker {
	return &Worker{
		kv:       kv,
		embedder: embedder,
		assigner: assigner,
		logStore: logStore,
		cfg:      cfg,
		logger:   logger,
		metrics:  rec,
		issues:   make(map[string]*issue),
	}
}

// Run consumes the logs stream until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.kv.EnsureGroup(ctx, logsStream, consumerGroup, "$"); err != nil {
		return err
	}
	w.logger.Info().Str("stream", logsStream).Str("group", consumerGroup).Msg("issues aggregator starting")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		entries, err := w.kv.ReadGroup(ctx, logsStream, consumerGroup, consumerName, batchSize, blockDuration)
		if err != nil {
			w.logger.Warn().Err(err).Msg("xreadgroup failed")
			time.Sleep(time.Second)
			continue
		}

		now := time.Now()
		var ackIDs []string
		for _, e := range entries {
			if w.processEntry(ctx, e, now) {
				ackIDs = append(ackIDs, e.ID)
			}
		}
		if len(ackIDs) > 0 {
			if err := w.kv.Ack(ctx, logsStream, consumerGroup, ackIDs); err != nil {
				w.logger.Warn().Err(err).Msg("xack failed")
			}
		}

		w.sweepIdleIssues(ctx, now)
	}
}

func (w *Worker) processEntry(ctx context.Context, e store.StreamEntry, now time.Time) (ok bool) {
	source := e.Fields["source"]
	raw := e.Fields["line"]
	osName := normalize.OSFromSource(source)

	templated, parsed := normalize.Normalize(source, raw)

	var clusterID string
	if vecs, err := w.embedder.Embed(ctx, []string{templated}); err == nil && len(vecs) == 1 {
		id, created, err := w.assigner.AssignOrCreate(ctx, string(osName), templated, vecs[0])
		if err != nil {
			w.logger.Debug().Err(err).Msg("assign_or_create failed, continuing without a cluster id")
		} else {
			clusterID = id
			if created {
				w.metrics.ClusterCreated(ctx, string(osName))
			} else {
				w.metrics.ClusterMatched(ctx, string(osName))
			}
		}
	} else if err != nil {
		w.logger.Debug().Err(err).Msg("embedding failed, continuing without a cluster id")
	}

	if clusterID != "" && w.logStore != nil {
		if ls := w.logStore(string(osName)); ls != nil {
			_ = ls.Update(ctx, e.ID, map[string]string{"cluster_id": clusterID})
		}
	}

	key := issueKey(string(osName), parsed.Component, parsed.PID)
	iss, exists := w.issues[key]
	if !exists {
		iss = &issue{os: string(osName), key: key, createdAt: now, lastSeenAt: now}
		w.issues[key] = iss
	}
	iss.logs = append(iss.logs, logEntry{raw: raw, templated: templated, component: parsed.Component, pid: parsed.PID, ts: now})
	iss.lastSeenAt = now

	if clusterID != "" {
		w.maybePublishCandidate(ctx, string(osName), clusterID, parsed, raw, templated, source, now)
	}

	return true
}

func issueKey(osName, component, pid string) string {
	component = strings.ToLower(strings.TrimSpace(component))
	if component == "" {
		component = "unknown"
	}
	pid = strings.TrimSpace(pid)
	if pid == "" {
		pid = "nopid"
	}
	return osName + "|" + component + "|" + pid
}

func (w *Worker) maybePublishCandidate(ctx context.Context, osName, clusterID string, parsed normalize.ParsedLog, raw, templated, source string, now time.Time) {
	counterKey := fmt.Sprintf("cluster:count:%s:%s", osName, clusterID)
	newCount, err := w.kv.Incr(ctx, counterKey)
	if err != nil {
		w.logger.Debug().Err(err).Msg("cluster counter increment failed")
		return
	}

	minCount := int64(w.cfg.ClusterMinLogsForClassification)
	shouldPublish := newCount == minCount

	republishEvery := int64(w.cfg.ClusterCandidateRepublishEvery)
	if !shouldPublish && republishEvery > 0 && newCount > minCount && newCount%republishEvery == 0 {
		lastKey := fmt.Sprintf("cluster:last_candidate_ts:%s:%s", osName, clusterID)
		lastStr, _ := w.kv.Get(ctx, lastKey)
		var lastTS float64
		if lastStr != "" {
			lastTS, _ = strconv.ParseFloat(lastStr, 64)
		}
		elapsed := float64(now.Unix()) - lastTS
		if elapsed >= w.cfg.ClusterCandidateRepublishMinInterval.Seconds() {
			shouldPublish = true
			_ = w.kv.SetWithTTL(ctx, lastKey, strconv.FormatFloat(float64(now.Unix()), 'f', -1, 64), lastCandidateTTL)
		}
	}

	if !shouldPublish {
		return
	}

	envIDs := []string{}
	if parsed.EnvID != "" {
		envIDs = append(envIDs, parsed.EnvID)
	}
	envIDsJSON, _ := json.Marshal(envIDs)
	sampleLogs, _ := json.Marshal([]map[string]string{{
		"raw":       raw,
		"templated": templated,
		"os":        osName,
		"source":    source,
		"env_id":    parsed.EnvID,
	}})

	_, err = w.kv.XAdd(ctx, candidatesStream, map[string]any{
		"os":          osName,
		"cluster_id":  clusterID,
		"env_ids":     string(envIDsJSON),
		"sample_logs": string(sampleLogs),
	})
	if err != nil {
		w.logger.Warn().Err(err).Str("cluster_id", clusterID).Msg("failed to publish cluster candidate")
		return
	}
	w.metrics.CandidatePublished(ctx, osName)
}

func (w *Worker) sweepIdleIssues(ctx context.Context, now time.Time) {
	var toClose []string
	for key, iss := range w.issues {
		if now.Sub(iss.lastSeenAt) >= w.cfg.IssueInactivity {
			w.closeAndPublish(ctx, iss)
			toClose = append(toClose, key)
		}
	}
	for _, key := range toClose {
		delete(w.issues, key)
	}
}

func (w *Worker) closeAndPublish(ctx context.Context, iss *issue) {
	logs := iss.topLogs(w.cfg.IssueMaxLogsForLLM)
	type logJSON struct {
		Templated string `json:"templated"`
		Raw       string `json:"raw"`
		Component string `json:"component"`
		PID       string `json:"pid"`
		Time      int64  `json:"time"`
	}
	logsList := make([]logJSON, 0, len(logs))
	summaries := make([]string, 0, len(logs))
	for _, l := range logs {
		logsList = append(logsList, logJSON{Templated: l.templated, Raw: l.raw, Component: l.component, PID: l.pid, Time: l.ts.Unix()})
		summaries = append(summaries, l.templated)
	}
	logsJSON, _ := json.Marshal(logsList)

	_, err := w.kv.XAdd(ctx, issuesStream, map[string]any{
		"os":                iss.os,
		"issue_key":         iss.key,
		"templated_summary": strings.Join(summaries, " \n"),
		"logs":              string(logsJSON),
	})
	if err != nil {
		w.logger.Warn().Err(err).Str("issue_key", iss.key).Msg("failed to publish issue")
		return
	}
	w.logger.Info().Str("os", iss.os).Str("issue_key", iss.key).Int("logs", len(iss.logs)).Msg("published issue")
}
