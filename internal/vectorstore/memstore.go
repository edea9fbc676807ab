package vectorstore

import (
	"context"
	"math"
)

// MemStore is an in-memory Store used by tests and local development. It
// implements the same similarity-search contract as qdrantStore, scoring by
// cosine similarity, so callers can exercise pipeline code without a real
// Qdrant instance.
type MemStore struct {
	points map[string]Point
}

// NewMemStore returns an empty in-memory Store.
func NewMemStore() *MemStore {
	return &MemStore{points: make(map[string]Point)}
}

func (m *MemStore) Upsert(_ context.Context, id string, vector []float32, document string, metadata map[string]string) error {
	vec := make([]float32, len(vector))
	copy(vec, vector)
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	m.points[id] = Point{ID: id, Vector: vec, Document: document, Metadata: md}
	return nil
}

func (m *MemStore) Get(_ context.Context, ids []string) ([]Point, error) {
	out := make([]Point, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.points[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemStore) GetWhere(_ context.Context, filter map[string]string, limit int) ([]Point, error) {
	var out []Point
	for _, p := range m.points {
		if matchesFilter(p.Metadata, filter) {
			out = append(out, p)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemStore) Update(_ context.Context, id string, metadata map[string]string) error {
	p, ok := m.points[id]
	if !ok {
		return nil
	}
	for k, v := range metadata {
		if p.Metadata == nil {
			p.Metadata = make(map[string]string)
		}
		p.Metadata[k] = v
	}
	m.points[id] = p
	return nil
}

func (m *MemStore) Query(_ context.Context, vector []float32, k int, filter map[string]string) ([]Neighbor, error) {
	if k <= 0 {
		k = 10
	}
	var candidates []Neighbor
	for _, p := range m.points {
		if !matchesFilter(p.Metadata, filter) {
			continue
		}
		candidates = append(candidates, Neighbor{
			ID:       p.ID,
			Score:    cosineSimilarity(vector, p.Vector),
			Document: p.Document,
			Metadata: p.Metadata,
		})
	}
	// simple selection sort by descending score, good enough for test sizes
	for i := 0; i < len(candidates); i++ {
		best := i
		for j := i + 1; j < len(candidates); j++ {
			if candidates[j].Score > candidates[best].Score {
				best = j
			}
		}
		candidates[i], candidates[best] = candidates[best], candidates[i]
	}
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

func (m *MemStore) Count(_ context.Context) (int, error) {
	return len(m.points), nil
}

func matchesFilter(metadata map[string]string, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
