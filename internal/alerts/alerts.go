// Package alerts implements the alert store contract: listing merged
// stream/hash alert records, persisting an alert beyond its TTL, and
// recording correct/incorrect feedback. Grounded line for line on
// original_source/app/api/v1/endpoints/alerts.py.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"pulsecorr/internal/store"
)

const (
	alertsStream      = "alerts"
	persistedSetKey   = "ALERTS_PERSISTED_SET"
	feedbackCorrect   = "ALERTS_FEEDBACK_CORRECT_SET"
	feedbackIncorrect = "ALERTS_FEEDBACK_INCORRECT_SET"
)

// ErrNotFound is returned by PersistAlert/AddFeedback when the alert doesn't
// exist as a hash or, for persist, as a stream entry either.
var ErrNotFound = fmt.Errorf("alerts: not found")

// Alert is the merged, caller-facing shape returned by ListAlerts.
type Alert struct {
	ID        string
	Type      string
	OS        string
	IssueKey  string
	ClusterID string
	Summary   string
	Solution  string
	Result    map[string]any
	Persisted bool
	EnvID     string
	EnvIDs    []string
	Logs      []map[string]any
}

// KV is the subset of store.Store the alert store needs.
type KV interface {
	SMembers(ctx context.Context, key string) ([]string, error)
	RevRange(ctx context.Context, stream string, count int64) ([]store.StreamEntry, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key string, fields map[string]any) error
	Exists(ctx context.Context, key string) (bool, error)
	Persist(ctx context.Context, key string) error
	SAdd(ctx context.Context, key, member string) error
	SRem(ctx context.Context, key, member string) error
	XRangeOne(ctx context.Context, stream, id string) (store.StreamEntry, bool, error)
}

// Store is the alert store, backed by Redis streams/hashes/sets.
type Store struct {
	kv KV
}

// New builds an alert Store.
func New(kv KV) *Store {
	return &Store{kv: kv}
}

// ListAlerts returns up to limit alerts, newest first, merging hash data
// over stream fields and backfilling from the persisted set when the
// stream window yields fewer than limit. envID, if non-empty, filters to
// alerts whose env_ids contains it or whose env_id equals it.
func (s *Store) ListAlerts(ctx context.Context, limit int, envID string) ([]Alert, error) {
	if limit <= 0 {
		limit = 100
	}

	persistedIDs, err := s.kv.SMembers(ctx, persistedSetKey)
	if err != nil {
		persistedIDs = nil
	}
	persistedSet := make(map[string]bool, len(persistedIDs))
	for _, id := range persistedIDs {
		persistedSet[id] = true
	}

	entries, err := s.kv.RevRange(ctx, alertsStream, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("alerts: list recent: %w", err)
	}

	seen := make(map[string]bool, len(entries))
	out := make([]Alert, 0, limit)
	for _, e := range entries {
		seen[e.ID] = true
		hash, _ := s.kv.HGetAll(ctx, "alert:"+e.ID)
		fields := e.Fields
		if len(hash) > 0 {
			fields = hash
		}
		out = append(out, buildAlert(e.ID, fields, persistedSet[e.ID]))
	}

	remaining := limit - len(out)
	if remaining > 0 && len(persistedIDs) > 0 {
		var candidates []string
		for _, id := range persistedIDs {
			if !seen[id] {
				candidates = append(candidates, id)
			}
		}
		sort.Sort(sort.Reverse(sort.StringSlice(candidates)))
		if len(candidates) > remaining {
			candidates = candidates[:remaining]
		}
		for _, id := range candidates {
			hash, err := s.kv.HGetAll(ctx, "alert:"+id)
			if err != nil || len(hash) == 0 {
				continue
			}
			out = append(out, buildAlert(id, hash, true))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })

	if envID != "" {
		filtered := out[:0]
		for _, a := range out {
			if containsString(a.EnvIDs, envID) || a.EnvID == envID {
				filtered = append(filtered, a)
			}
		}
		out = filtered
	}

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func buildAlert(id string, fields map[string]string, persisted bool) Alert {
	result := parseResult(fields["result"])
	envIDs := parseEnvIDs(fields["env_ids"])
	logs := parseLogs(fields["evidence_logs"])

	summary := fields["summary"]
	if summary == "" {
		summary = stringField(result, "summary")
	}
	solution := fields["solution"]
	if solution == "" {
		solution = stringField(result, "recommendation")
	}
	envID := fields["env_id"]
	if envID == "" && len(envIDs) == 1 {
		envID = envIDs[0]
	}

	return Alert{
		ID:        id,
		Type:      fields["type"],
		OS:        fields["os"],
		IssueKey:  fields["issue_key"],
		ClusterID: fields["cluster_id"],
		Summary:   summary,
		Solution:  solution,
		Result:    result,
		Persisted: persisted,
		EnvID:     envID,
		EnvIDs:    envIDs,
		Logs:      logs,
	}
}

// parseResult defensively parses the JSON "result" field, repairing a
// single-quoted object before giving up and returning the raw string under
// a "raw" key — the same fallback chain as _parse_result.
func parseResult(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err == nil {
		return m
	}
	repaired := strings.ReplaceAll(raw, "'", "\"")
	if err := json.Unmarshal([]byte(repaired), &m); err == nil {
		return m
	}
	return map[string]any{"raw": raw}
}

func parseEnvIDs(raw string) []string {
	if raw == "" {
		return nil
	}
	var vals []any
	if err := json.Unmarshal([]byte(raw), &vals); err != nil {
		return nil
	}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v == nil {
			continue
		}
		out = append(out, fmt.Sprintf("%v", v))
	}
	return out
}

func parseLogs(raw string) []map[string]any {
	if raw == "" {
		return nil
	}
	var logs []map[string]any
	if err := json.Unmarshal([]byte(raw), &logs); err != nil {
		return nil
	}
	return logs
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func containsString(vals []string, v string) bool {
	for _, x := range vals {
		if x == v {
			return true
		}
	}
	return false
}

// PersistAlert removes the TTL on an alert hash (reconstructing it from the
// stream entry if the hash doesn't already exist) and adds it to the
// persisted set.
func (s *Store) PersistAlert(ctx context.Context, id string) error {
	key := "alert:" + id
	exists, err := s.kv.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		entry, found, err := s.kv.XRangeOne(ctx, alertsStream, id)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}
		fields := make(map[string]any, len(entry.Fields)+1)
		for k, v := range entry.Fields {
			fields[k] = v
		}
		fields["id"] = id
		if err := s.kv.HSet(ctx, key, fields); err != nil {
			return err
		}
	}
	if err := s.kv.Persist(ctx, key); err != nil {
		return err
	}
	return s.kv.SAdd(ctx, persistedSetKey, id)
}

// Feedback is one of the two mutually exclusive feedback kinds.
type Feedback string

const (
	FeedbackCorrect   Feedback = "correct"
	FeedbackIncorrect Feedback = "incorrect"
)

// AddFeedback records feedback on an alert, moving its id between the two
// mutually exclusive feedback sets.
func (s *Store) AddFeedback(ctx context.Context, id string, feedback Feedback) error {
	key := "alert:" + id
	exists, err := s.kv.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	if err := s.kv.HSet(ctx, key, map[string]any{"feedback": string(feedback)}); err != nil {
		return err
	}
	if feedback == FeedbackCorrect {
		if err := s.kv.SAdd(ctx, feedbackCorrect, id); err != nil {
			return err
		}
		return s.kv.SRem(ctx, feedbackIncorrect, id)
	}
	if err := s.kv.SAdd(ctx, feedbackIncorrect, id); err != nil {
		return err
	}
	return s.kv.SRem(ctx, feedbackCorrect, id)
}
