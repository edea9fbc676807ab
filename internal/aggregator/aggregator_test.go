package aggregator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pulsecorr/internal/cluster"
	"pulsecorr/internal/metrics"
	"pulsecorr/internal/store"
	"pulsecorr/internal/vectorstore"
)

type fakeKV struct {
	counters  map[string]int64
	strings   map[string]string
	streams   map[string][]map[string]any
	acked     []string
	groupName string
}

func newFakeKV() *fakeKV {
	return &fakeKV{
		counters: make(map[string]int64),
		strings:  make(map[string]string),
		streams:  make(map[string][]map[string]any),
	}
}

func (f *fakeKV) EnsureGroup(ctx context.Context, stream, group, id string) error {
	f.groupName = group
	return nil
}

func (f *fakeKV) ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]store.StreamEntry, error) {
	return nil, nil
}

func (f *fakeKV) Ack(ctx context.Context, stream, group string, ids []string) error {
	f.acked = append(f.acked, ids...)
	return nil
}

func (f *fakeKV) Incr(ctx context.Context, key string) (int64, error) {
	f.counters[key]++
	return f.counters[key], nil
}

func (f *fakeKV) Get(ctx context.Context, key string) (string, error) {
	return f.strings[key], nil
}

func (f *fakeKV) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	f.strings[key] = value
	return nil
}

func (f *fakeKV) XAdd(ctx context.Context, stream string, fields map[string]any) (string, error) {
	f.streams[stream] = append(f.streams[stream], fields)
	return "0-1", nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func newTestWorker(kv *fakeKV, cfg Config) *Worker {
	vs := vectorstore.NewMemStore()
	assigner := cluster.New(func(string) vectorstore.Store { return vs }, nil, 0.35, zerolog.Nop())
	rec := metrics.New(kv, false, zerolog.Nop())
	return New(kv, fakeEmbedder{}, assigner, func(string) vectorstore.Store { return vs }, cfg, zerolog.Nop(), rec)
}

func TestIssueKey(t *testing.T) {
	if got := issueKey("linux", "SSHD", ""); got != "linux|sshd|nopid" {
		t.Errorf("issueKey = %q", got)
	}
	if got := issueKey("linux", "sshd", "123"); got != "linux|sshd|123" {
		t.Errorf("issueKey = %q", got)
	}
}

func TestMaybePublishCandidateAtThreshold(t *testing.T) {
	kv := newFakeKV()
	cfg := Config{ClusterMinLogsForClassification: 3, IssueMaxLogsForLLM: 30, IssueInactivity: time.Minute}
	w := newTestWorker(kv, cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		w.processEntry(ctx, makeEntry(i, "/var/log/linux.log", "sshd[1]: Failed password for root"), time.Now())
	}

	entries := kv.streams[candidatesStream]
	if len(entries) != 1 {
		t.Fatalf("expected exactly one cluster candidate published, got %d", len(entries))
	}
}

func TestMaybePublishCandidateRepublishZeroMeansNever(t *testing.T) {
	kv := newFakeKV()
	cfg := Config{ClusterMinLogsForClassification: 2, ClusterCandidateRepublishEvery: 0, IssueMaxLogsForLLM: 30, IssueInactivity: time.Minute}
	w := newTestWorker(kv, cfg)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		w.processEntry(ctx, makeEntry(i, "/var/log/linux.log", "sshd[1]: Failed password for root"), time.Now())
	}

	entries := kv.streams[candidatesStream]
	if len(entries) != 1 {
		t.Fatalf("expected exactly one cluster candidate when republish_every=0, got %d", len(entries))
	}
}

func TestSweepIdleIssuesPublishesAndClears(t *testing.T) {
	kv := newFakeKV()
	cfg := Config{ClusterMinLogsForClassification: 100, IssueMaxLogsForLLM: 30, IssueInactivity: time.Minute}
	w := newTestWorker(kv, cfg)
	ctx := context.Background()

	past := time.Now().Add(-2 * time.Minute)
	w.processEntry(ctx, makeEntry(0, "/var/log/linux.log", "sshd[1]: Failed password for root"), past)

	w.sweepIdleIssues(ctx, time.Now())

	if len(w.issues) != 0 {
		t.Errorf("expected idle issue to be closed, %d remain", len(w.issues))
	}
	entries := kv.streams[issuesStream]
	if len(entries) != 1 {
		t.Fatalf("expected one issue published, got %d", len(entries))
	}
	var logs []map[string]any
	if err := json.Unmarshal([]byte(entries[0]["logs"].(string)), &logs); err != nil {
		t.Fatalf("logs field should be valid JSON: %v", err)
	}
}

func makeEntry(i int, source, line string) store.StreamEntry {
	return store.StreamEntry{
		ID:     "0-" + string(rune('a'+i)),
		Fields: map[string]string{"source": source, "line": line},
	}
}
