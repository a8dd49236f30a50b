// Package storage provides the vector index holding embedded document chunks.
//
// Two interchangeable implementations satisfy the Index interface: an
// in-process exact-similarity index for development and tests, and a
// Qdrant-backed index for deployments. Callers select one at construction
// time and must not depend on which is active.
package storage

import "context"

// Index stores (vector, text, metadata) points and serves similarity search.
type Index interface {
	// EnsureCollection idempotently creates the collection with the index's
	// configured dimension and cosine distance. Must succeed before any
	// Upsert or Search.
	EnsureCollection(ctx context.Context) error

	// Upsert stores points with overwrite semantics keyed by Point.ID and
	// returns the number stored. Failures are reported as *UpsertError.
	Upsert(ctx context.Context, points []*Point) (int, error)

	// Search returns at most topK hits ranked by descending cosine
	// similarity, optionally restricted by filter. An empty collection or an
	// unmatched filter yields an empty slice, not an error.
	Search(ctx context.Context, vector []float32, topK int, filter *Filter) ([]SearchHit, error)

	// DeleteByFilename removes every point whose payload filename matches.
	// Zero matches is not an error.
	DeleteByFilename(ctx context.Context, filename string) error

	// ListFilenames enumerates the distinct filenames across all stored
	// points, deduplicated and sorted.
	ListFilenames(ctx context.Context) ([]string, error)

	// Stats returns a diagnostic snapshot of the collection.
	Stats(ctx context.Context) (*CollectionStats, error)

	// Close releases backend resources.
	Close() error
}
