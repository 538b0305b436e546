// Package embed turns text into fixed-width vectors. The Ollama provider
// talks to a local Ollama server; the static provider is a deterministic
// hash-based fallback that needs no model at all.
package embed

import (
	"context"
	"math"
	"time"

	"github.com/docsearch-app/docsearch/internal/errors"
)

// errClosed is returned by any operation on a closed embedder.
var errClosed = errors.InternalError("embedder is closed", nil)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts. The result is
	// parallel to the input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding width.
	Dimensions() int

	// ModelName identifies the model producing the vectors. Indexes built
	// with one model must not be queried with another.
	ModelName() string

	// Available reports whether the provider can serve requests right now.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// Provider defaults.
const (
	// StaticDimensions is the vector width of the hash-based embedder.
	StaticDimensions = 256

	// DefaultBatchSize bounds texts per embedding request.
	DefaultBatchSize = 32

	// DefaultMaxRetries for transient provider failures.
	DefaultMaxRetries = 3

	// DefaultDimensions when auto-detection is skipped and unset.
	DefaultDimensions = 768

	// DefaultWarmTimeout applies once the model has served recently.
	DefaultWarmTimeout = 15 * time.Second

	// DefaultColdTimeout covers the first call, when Ollama may still be
	// loading the model from disk.
	DefaultColdTimeout = 120 * time.Second

	// ModelUnloadThreshold is how long Ollama keeps an idle model loaded.
	ModelUnloadThreshold = 5 * time.Minute
)

// normalizeVector scales v to unit length in place and returns it.
// A zero vector is returned unchanged.
func normalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}
