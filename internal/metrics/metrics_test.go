package metrics

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

type fakeIncr struct {
	counts map[string]int64
}

func (f *fakeIncr) Incr(ctx context.Context, key string) (int64, error) {
	if f.counts == nil {
		f.counts = make(map[string]int64)
	}
	f.counts[key]++
	return f.counts[key], nil
}

func TestRecorderNoOpWhenDisabled(t *testing.T) {
	kv := &fakeIncr{}
	r := New(kv, false, zerolog.Nop())
	r.ClusterCreated(context.Background(), "linux")
	if len(kv.counts) != 0 {
		t.Errorf("expected no counters touched when disabled, got %v", kv.counts)
	}
}

func TestRecorderIncrementsWhenEnabled(t *testing.T) {
	kv := &fakeIncr{}
	r := New(kv, true, zerolog.Nop())
	r.ClusterCreated(context.Background(), "linux")
	r.AlertPublished(context.Background(), "linux", "auth_failure")
	if kv.counts["metrics:clusters_created:linux"] != 1 {
		t.Errorf("expected cluster created counter incremented")
	}
	if kv.counts["metrics:alerts_published:linux:auth_failure"] != 1 {
		t.Errorf("expected alert published counter incremented")
	}
}
