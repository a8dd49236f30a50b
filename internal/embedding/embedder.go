// Package embedding maps text to fixed-dimension vectors for similarity search.
package embedding

import (
	"context"
	"errors"
	"strings"
)

// DefaultDimension is the embedding size used throughout the deployment.
const DefaultDimension = 384

// ErrModelUnavailable reports that the embedding backend could not be
// initialized or could not encode the input. The failure is fatal for the
// current request only; the next call retries initialization.
var ErrModelUnavailable = errors.New("embedding model unavailable")

// Embedder converts text into a fixed-dimension vector. Implementations must
// be deterministic for identical input and safe for concurrent use.
type Embedder interface {
	// Embed returns the vector for text. Empty or whitespace-only input
	// yields the all-zero vector of the embedder's dimension, never an error.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts in order, one vector per input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension is the length of every vector this embedder produces.
	Dimension() int
}

// ZeroVector returns the all-zero sentinel for content-free input.
func ZeroVector(dim int) []float32 {
	return make([]float32, dim)
}

// isBlank reports whether text has no embeddable content.
func isBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}
