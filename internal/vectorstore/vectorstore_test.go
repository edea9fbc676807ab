package vectorstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"pulsecorr/internal/config"
)

func TestCollectionsName(t *testing.T) {
	c := NewCollections(config.CollectionPrefixes{
		Log:       "logs_",
		Prototype: "prototypes_",
		Template:  "templates_",
	}, "v1")

	if got := c.Name(KindLog, "linux"); got != "logs_linux__v1" {
		t.Errorf("Name(log, linux) = %q", got)
	}
	if got := c.Name(KindPrototype, "macos"); got != "prototypes_macos__v1" {
		t.Errorf("Name(prototype, macos) = %q", got)
	}
	if got := c.Name(KindTemplate, "windows"); got != "templates_windows__v1" {
		t.Errorf("Name(template, windows) = %q", got)
	}
}

func TestCollectionsNameDefaultsEmbedID(t *testing.T) {
	c := NewCollections(config.CollectionPrefixes{Log: "logs_"}, "")
	if got := c.Name(KindLog, "linux"); got != "logs_linux__default" {
		t.Errorf("Name() with empty embed id = %q, want default suffix", got)
	}
}

func TestMemStoreUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	if err := s.Upsert(ctx, "cluster_abc", []float32{1, 0, 0}, "sshd: failed login", map[string]string{"os": "linux"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	pts, err := s.Get(ctx, []string{"cluster_abc"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(pts) != 1 || pts[0].Document != "sshd: failed login" {
		t.Fatalf("unexpected Get result: %+v", pts)
	}
}

func TestMemStoreQueryRanksBySimilarity(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	_ = s.Upsert(ctx, "close", []float32{1, 0}, "", nil)
	_ = s.Upsert(ctx, "far", []float32{0, 1}, "", nil)

	neighbors, err := s.Query(ctx, []float32{0.9, 0.1}, 2, nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(neighbors) != 2 || neighbors[0].ID != "close" {
		t.Fatalf("expected 'close' ranked first, got %+v", neighbors)
	}
}

func TestMemStoreGetWhereFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	_ = s.Upsert(ctx, "a", []float32{1}, "", map[string]string{"cluster_id": "c1"})
	_ = s.Upsert(ctx, "b", []float32{1}, "", map[string]string{"cluster_id": "c2"})

	pts, err := s.GetWhere(ctx, map[string]string{"cluster_id": "c1"}, 10)
	if err != nil {
		t.Fatalf("GetWhere: %v", err)
	}
	if len(pts) != 1 || pts[0].ID != "a" {
		t.Fatalf("expected only point a, got %+v", pts)
	}
}

func TestHTTPEmbedderEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedReq
		_ = json.NewDecoder(r.Body).Decode(&req)
		resp := embedResp{}
		for range req.Input {
			resp.Data = append(resp.Data, struct {
				Embedding []float32 `json:"embedding"`
			}{Embedding: []float32{0.1, 0.2, 0.3}})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(config.EmbeddingConfig{BaseURL: srv.URL, Path: "/v1/embeddings", APIHeader: "Authorization"})
	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 || len(vecs[0]) != 3 {
		t.Fatalf("unexpected embed result: %+v", vecs)
	}
}

func TestHTTPEmbedderCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(embedResp{})
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(config.EmbeddingConfig{BaseURL: srv.URL, Path: "/v1/embeddings"})
	_, err := e.Embed(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatalf("expected error on embedding count mismatch")
	}
}
