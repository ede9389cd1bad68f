package semantic

import (
	"context"
	"time"
)

// Payload is the metadata stored next to each vector.
type Payload struct {
	Project  string
	Path     string
	Source   Source
	Title    string
	Language string
	Chunk    int
	Text     string
}

// Point is one vector keyed by its content fingerprint.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// VectorQuery filters and bounds a similarity query. Empty Project or Source
// match everything.
type VectorQuery struct {
	Vector         []float32
	Project        string
	Source         Source
	ScoreThreshold float64
	Limit          int
}

// ScoredPoint is a query result.
type ScoredPoint struct {
	ID      string
	Score   float64
	Payload Payload
}

// VectorBackend stores and ranks embedded chunks.
type VectorBackend interface {
	// Ready reports whether the backend can serve requests.
	Ready() bool
	// Upsert inserts or replaces points by ID.
	Upsert(ctx context.Context, points []Point) error
	// Existing returns the subset of ids already stored.
	Existing(ctx context.Context, ids []string) (map[string]bool, error)
	// Query ranks stored points by cosine similarity, descending.
	Query(ctx context.Context, q VectorQuery) ([]ScoredPoint, error)
	// Prune deletes the project's points of the given sources whose id is
	// not in keep, returning how many were removed.
	Prune(ctx context.Context, project string, sources []Source, keep map[string]bool) (int, error)
	// Projects summarises every indexed project.
	Projects(ctx context.Context) ([]ProjectInfo, error)
	Close() error
}

// now is swapped in tests.
var now = time.Now
