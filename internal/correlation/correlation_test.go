package correlation

import (
	"context"
	"testing"
	"time"

	"pulsecorr/internal/store"
	"pulsecorr/internal/vectorstore"
)

func TestRunHDBSCANSeparatesTwoDenseGroups(t *testing.T) {
	points := [][]float32{
		{0, 0}, {0.1, 0}, {0, 0.1}, {0.1, 0.1},
		{10, 10}, {10.1, 10}, {10, 10.1}, {10.1, 10.1},
	}
	labels := runHDBSCAN(points, HDBSCANOptions{MinClusterSize: 3, MinSamples: 2})
	if len(labels) != len(points) {
		t.Fatalf("expected %d labels, got %d", len(points), len(labels))
	}
	group1 := labels[0]
	for i := 1; i < 4; i++ {
		if labels[i] != group1 {
			t.Errorf("expected points 0-3 in same cluster, label[%d]=%d vs group1=%d", i, labels[i], group1)
		}
	}
	group2 := labels[4]
	for i := 5; i < 8; i++ {
		if labels[i] != group2 {
			t.Errorf("expected points 4-7 in same cluster, label[%d]=%d vs group2=%d", i, labels[i], group2)
		}
	}
	if group1 == group2 {
		t.Errorf("expected the two dense groups to receive distinct labels")
	}
}

func TestRunHDBSCANMarksSparsePointsAsNoise(t *testing.T) {
	points := [][]float32{
		{0, 0}, {0.1, 0}, {0, 0.1}, {0.1, 0.1},
		{50, 50},
	}
	labels := runHDBSCAN(points, HDBSCANOptions{MinClusterSize: 3, MinSamples: 2})
	if labels[4] != -1 {
		t.Errorf("expected isolated point to be noise, got label %d", labels[4])
	}
}

func TestComputeGlobalClustersGroupsWithinThreshold(t *testing.T) {
	linux := vectorstore.NewMemStore()
	_ = linux.Upsert(context.Background(), "l1", []float32{1, 0, 0}, "sshd: failed login", map[string]string{"source": "auth.log", "env_id": "env-1"})
	_ = linux.Upsert(context.Background(), "l2", []float32{1, 0, 0}, "sshd: failed login again", map[string]string{"source": "auth.log", "env_id": "env-1"})
	_ = linux.Upsert(context.Background(), "l3", []float32{0, 1, 0}, "disk full", map[string]string{"source": "kern.log", "env_id": "env-1"})

	logs := func(os string) vectorstore.Store {
		if os == "linux" {
			return linux
		}
		return vectorstore.NewMemStore()
	}

	result, err := ComputeGlobalClusters(context.Background(), logs, SinglePassOptions{
		LimitPerSource:        100,
		Threshold:             0.1,
		MinSize:               2,
		IncludeLogsPerCluster: 5,
	})
	if err != nil {
		t.Fatalf("ComputeGlobalClusters: %v", err)
	}
	if len(result.Clusters) != 1 {
		t.Fatalf("expected exactly one cluster meeting min_size, got %d: %+v", len(result.Clusters), result.Clusters)
	}
	if result.Clusters[0].Size != 2 {
		t.Errorf("expected cluster size 2, got %d", result.Clusters[0].Size)
	}
	if result.Params["algorithm"] != "single_pass" {
		t.Errorf("expected algorithm=single_pass in params")
	}
}

type fakeRedisKV struct {
	entries []store.StreamEntry
}

func (f fakeRedisKV) RevRange(ctx context.Context, stream string, count int64) ([]store.StreamEntry, error) {
	return f.entries, nil
}

func TestComputeRedisGroupedClustersGroupsByLine(t *testing.T) {
	kv := fakeRedisKV{entries: []store.StreamEntry{
		{ID: "1-0", Fields: map[string]string{"source": "auth.log:linux", "line": "sshd failed 42"}},
		{ID: "2-0", Fields: map[string]string{"source": "auth.log:linux", "line": "sshd failed 99"}},
		{ID: "3-0", Fields: map[string]string{"source": "kern.log:linux", "line": "disk full"}},
	}}

	result, err := ComputeRedisGroupedClusters(context.Background(), kv, 100, 2, 5)
	if err != nil {
		t.Fatalf("ComputeRedisGroupedClusters: %v", err)
	}
	if len(result.Clusters) != 1 {
		t.Fatalf("expected one cluster (two normalized-identical sshd lines), got %d: %+v", len(result.Clusters), result.Clusters)
	}
	if result.Clusters[0].Size != 2 {
		t.Errorf("expected size 2, got %d", result.Clusters[0].Size)
	}
}

func TestBuildGraphConnectsClustersSharingHosts(t *testing.T) {
	result := Result{Clusters: []Cluster{
		{ID: "c1", MedoidDocument: "failed login", SampleLogs: []LogSample{{Raw: `{"host":"web-01"}`}}},
		{ID: "c2", MedoidDocument: "disk warning", SampleLogs: []LogSample{{Raw: `{"host":"web-01"}`}}},
		{ID: "c3", MedoidDocument: "ok", SampleLogs: []LogSample{{Raw: `{"host":"db-02"}`}}},
	}}
	graph := BuildGraph(result)
	if len(graph.Nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(graph.Nodes))
	}
	if len(graph.Edges) != 1 {
		t.Fatalf("expected exactly one edge (c1-c2 share web-01), got %d: %+v", len(graph.Edges), graph.Edges)
	}
	if graph.Nodes[0].Severity != "critical" {
		t.Errorf("expected c1 severity critical (medoid contains 'failed'), got %q", graph.Nodes[0].Severity)
	}
}

func TestTTLCacheExpiresEntries(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	cache := NewTTLCache(30*time.Second, clock)

	cache.Set("k", 42)
	if v, ok := cache.Get("k"); !ok || v != 42 {
		t.Fatalf("expected cached value, got %v, %v", v, ok)
	}

	now = now.Add(31 * time.Second)
	if _, ok := cache.Get("k"); ok {
		t.Errorf("expected entry to be expired after TTL")
	}
}
