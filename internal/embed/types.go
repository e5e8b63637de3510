// Package embed turns text into fixed-length vectors for the vector index.
package embed

import (
	"context"
	"fmt"
	"math"
	"time"
)

const (
	// DefaultBatchSize is the default number of texts per provider request.
	DefaultBatchSize = 64

	// MaxBatchSize caps a single provider request.
	MaxBatchSize = 2048

	// DefaultTimeout bounds one provider request.
	DefaultTimeout = 30 * time.Second

	// StaticDimensions is the output size of the static embedder.
	StaticDimensions = 256
)

// Embedder generates vector embeddings for text. Returned vectors are
// L2-normalised and all have Dimensions() elements.
type Embedder interface {
	// Embed generates the embedding of a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for texts, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available reports whether the embedder can serve requests.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// Signature identifies the vector space an embedder produces. Stored
// vectors from a different signature must be re-embedded.
func Signature(e Embedder) string {
	return fmt.Sprintf("%s:%d", e.ModelName(), e.Dimensions())
}

// normalizeVector returns v scaled to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
