// Package vector defines the contract consumed from the semantic index.
// The index is derived state: every point can be regenerated from the
// relational reports at any time.
package vector

import "context"

// Point is one upserted entry: id mirrors the report id, the payload
// carries flattened metadata plus the serialized document blob.
type Point struct {
	ID      string
	Values  []float32
	Payload map[string]any
}

// Match is a scored search hit. Higher scores are better.
type Match struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// Store is the upsert/query contract of the vector index. Implementations
// own a single fixed collection.
type Store interface {
	// EnsureCollection creates the collection if it does not exist yet.
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, points []Point) error
	// Search returns the topK closest points, optionally narrowed by a
	// mongo-style filter ($eq/$ne/$in/$and/$or/$not).
	Search(ctx context.Context, query []float32, topK int, filter map[string]any) ([]Match, error)
	// Scroll returns up to limit points matching the filter without
	// scoring. Serves payload lookups that have no query vector.
	Scroll(ctx context.Context, filter map[string]any, limit int) ([]Match, error)
	Delete(ctx context.Context, ids []string) error
}
