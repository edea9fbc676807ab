package vectorstore

import "context"

// Point is a stored vector record as returned by Get/GetWhere.
type Point struct {
	ID       string
	Vector   []float32
	Document string
	Metadata map[string]string
}

// Neighbor is a single nearest-neighbor hit from Query.
type Neighbor struct {
	ID       string
	Score    float64
	Document string
	Metadata map[string]string
}

// Store is the vector-store facade used across the log, prototype, and
// template collection families. One Store is bound to a single collection.
type Store interface {
	Upsert(ctx context.Context, id string, vector []float32, document string, metadata map[string]string) error
	Get(ctx context.Context, ids []string) ([]Point, error)
	GetWhere(ctx context.Context, filter map[string]string, limit int) ([]Point, error)
	Update(ctx context.Context, id string, metadata map[string]string) error
	Query(ctx context.Context, vector []float32, k int, filter map[string]string) ([]Neighbor, error)
	Count(ctx context.Context) (int, error)
}
