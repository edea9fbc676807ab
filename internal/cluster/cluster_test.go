package cluster

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"pulsecorr/internal/vectorstore"
)

func newTestAssigner(t *testing.T, store vectorstore.Store, threshold float64) *Assigner {
	t.Helper()
	return New(func(os string) vectorstore.Store { return store }, nil, threshold, zerolog.Nop())
}

func TestAssignOrCreateFreshCluster(t *testing.T) {
	store := vectorstore.NewMemStore()
	a := newTestAssigner(t, store, 0.35)

	id, created, err := a.AssignOrCreate(context.Background(), "linux", "nic eth0 link down", []float32{1, 0, 0})
	if err != nil {
		t.Fatalf("AssignOrCreate: %v", err)
	}
	if !created {
		t.Errorf("expected a newly created cluster for an empty store")
	}
	if id == "" {
		t.Errorf("expected a non-empty cluster id")
	}

	pts, err := store.Get(context.Background(), []string{id})
	if err != nil || len(pts) != 1 {
		t.Fatalf("expected the new prototype to be persisted: pts=%v err=%v", pts, err)
	}
	if pts[0].Metadata["rationale"] != "online" {
		t.Errorf("expected rationale=online, got %q", pts[0].Metadata["rationale"])
	}
}

func TestAssignOrCreateMatchesExisting(t *testing.T) {
	store := vectorstore.NewMemStore()
	a := newTestAssigner(t, store, 0.35)
	ctx := context.Background()

	first, _, err := a.AssignOrCreate(ctx, "linux", "nic eth0 link down", []float32{1, 0, 0})
	if err != nil {
		t.Fatalf("AssignOrCreate: %v", err)
	}

	second, created, err := a.AssignOrCreate(ctx, "linux", "nic eth0 link down", []float32{1, 0, 0})
	if err != nil {
		t.Fatalf("AssignOrCreate: %v", err)
	}
	if created {
		t.Errorf("expected the identical embedding to match the existing prototype")
	}
	if second != first {
		t.Errorf("expected the same cluster id, got %q and %q", first, second)
	}
}

func TestAssignOrCreateDistinctEmbeddingsSplit(t *testing.T) {
	store := vectorstore.NewMemStore()
	a := newTestAssigner(t, store, 0.05)
	ctx := context.Background()

	first, _, _ := a.AssignOrCreate(ctx, "linux", "nic eth0 link down", []float32{1, 0, 0})
	second, created, _ := a.AssignOrCreate(ctx, "linux", "disk i/o error on sda", []float32{0, 1, 0})

	if !created {
		t.Errorf("expected a dissimilar embedding to create a new cluster")
	}
	if first == second {
		t.Errorf("expected distinct cluster ids for dissimilar embeddings")
	}
}
