package query

import (
	"context"
	"testing"

	"pulsecorr/internal/vectorstore"
)

func TestDiscoverEnvironmentsFromMetadata(t *testing.T) {
	linux := vectorstore.NewMemStore()
	_ = linux.Upsert(context.Background(), "1", []float32{1}, "x", map[string]string{"env_id": "env-prod"})
	e := &Environments{Logs: func(os string) vectorstore.Store {
		if os == "linux" {
			return linux
		}
		return vectorstore.NewMemStore()
	}}

	ids := e.DiscoverEnvironments(context.Background())
	if len(ids) != 1 || ids[0] != "env-prod" {
		t.Fatalf("expected [env-prod], got %v", ids)
	}
}

func TestDiscoverEnvironmentsFallsBackWhenEmpty(t *testing.T) {
	e := &Environments{
		Logs:           func(string) vectorstore.Store { return vectorstore.NewMemStore() },
		FallbackEnvIDs: []string{"env-001", "env-002"},
	}
	ids := e.DiscoverEnvironments(context.Background())
	if len(ids) != 2 {
		t.Fatalf("expected fallback ids, got %v", ids)
	}
}

func TestDiscoverEnvironmentsDisabledUsesFallback(t *testing.T) {
	e := &Environments{
		Logs:                    func(string) vectorstore.Store { return vectorstore.NewMemStore() },
		DisableGlobalClustering: true,
		FallbackEnvIDs:          []string{"env-009"},
	}
	ids := e.DiscoverEnvironments(context.Background())
	if len(ids) != 1 || ids[0] != "env-009" {
		t.Fatalf("expected [env-009], got %v", ids)
	}
}

func TestRegionCoordinatesGenericEnvIDsRoundRobin(t *testing.T) {
	lat1, lng1 := RegionCoordinates("env-001")
	lat2, lng2 := RegionCoordinates("env-002")
	if lat1 == lat2 && lng1 == lng2 {
		t.Errorf("expected distinct coordinates for env-001 and env-002")
	}
}

func TestRegionCoordinatesKnownRegionHint(t *testing.T) {
	lat, lng := RegionCoordinates("us-west-2-prod")
	if lat != 45.5152 || lng != -122.6784 {
		t.Errorf("expected Oregon coordinates, got %v,%v", lat, lng)
	}
}

func TestRegionCoordinatesDefaultsToVirginia(t *testing.T) {
	lat, lng := RegionCoordinates("totally-unknown")
	if lat != 39.0438 || lng != -77.4878 {
		t.Errorf("expected default Ashburn coordinates, got %v,%v", lat, lng)
	}
}

func TestBuildTopologyExtractsHostsAndEdges(t *testing.T) {
	linux := vectorstore.NewMemStore()
	_ = linux.Upsert(context.Background(), "1", []float32{1}, `{"host":"web-01","from":"web-01","to":"db-01"}`, map[string]string{"env_id": "env-1"})
	e := &Environments{Logs: func(os string) vectorstore.Store {
		if os == "linux" {
			return linux
		}
		return vectorstore.NewMemStore()
	}}

	nodes, edges := e.BuildTopology(context.Background(), "env-1")
	if len(nodes) != 1 || nodes[0].ID != "web-01" {
		t.Fatalf("expected web-01 node, got %+v", nodes)
	}
	if len(edges) != 1 || edges[0].From != "web-01" || edges[0].To != "db-01" {
		t.Fatalf("expected web-01->db-01 edge, got %+v", edges)
	}
}

func TestListIncidentsDisabledReturnsEmpty(t *testing.T) {
	got := ListIncidents(context.Background(), func(string) vectorstore.Store { return vectorstore.NewMemStore() }, true, IncidentsOptions{})
	if len(got) != 0 {
		t.Errorf("expected empty incidents when disabled, got %v", got)
	}
}

func TestListIncidentsProjectsClusters(t *testing.T) {
	linux := vectorstore.NewMemStore()
	_ = linux.Upsert(context.Background(), "1", []float32{1, 0}, "auth failed for root", map[string]string{"env_id": "env-1"})
	_ = linux.Upsert(context.Background(), "2", []float32{1, 0}, "auth failed for root again", map[string]string{"env_id": "env-1"})
	_ = linux.Upsert(context.Background(), "3", []float32{1, 0}, "auth failed for admin", map[string]string{"env_id": "env-1"})
	_ = linux.Upsert(context.Background(), "4", []float32{1, 0}, "auth failed for admin again", map[string]string{"env_id": "env-1"})
	_ = linux.Upsert(context.Background(), "5", []float32{1, 0}, "auth failed for guest", map[string]string{"env_id": "env-1"})

	got := ListIncidents(context.Background(), func(os string) vectorstore.Store {
		if os == "linux" {
			return linux
		}
		return vectorstore.NewMemStore()
	}, false, IncidentsOptions{LimitPerSource: 50, IncludeLogs: 5})

	if len(got) != 1 {
		t.Fatalf("expected one incident, got %d: %+v", len(got), got)
	}
	if got[0].Severity != "critical" {
		t.Errorf("expected critical severity (medoid contains 'failed'), got %q", got[0].Severity)
	}
	if got[0].EnvID != "env-1" {
		t.Errorf("expected env_id derived from single env, got %q", got[0].EnvID)
	}
}

func TestBuildEnvironmentCorrelationDisabled(t *testing.T) {
	overlays, impacts, params := BuildEnvironmentCorrelation(context.Background(), func(string) vectorstore.Store { return vectorstore.NewMemStore() }, true, "env-1")
	if overlays != nil || len(impacts) != 0 || params["disabled"] != true {
		t.Errorf("expected disabled degraded response, got %v %v %v", overlays, impacts, params)
	}
}
