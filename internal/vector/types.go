// Package vector implements the in-memory vector index: an exact flat
// scan by default, with an optional trained (IVF-style) variant for
// larger corpora. Chunk payloads ride along with the vectors so a search
// hit needs no second lookup.
package vector

import (
	"time"

	"github.com/docsearch-app/docsearch/internal/chunk"
	"github.com/docsearch-app/docsearch/internal/errors"
)

// Type selects the index variant.
type Type string

const (
	// TypeFlat scans every vector exactly.
	TypeFlat Type = "Flat"
	// TypeTrained partitions vectors into nlist clusters and probes the
	// nearest nprobe lists. Requires Train before Insert.
	TypeTrained Type = "Trained"
)

// Trained-index defaults.
const (
	// DefaultNlist is the cluster count cap for trained indexes.
	DefaultNlist = 100
	// DefaultNprobe is the number of clusters probed per search.
	DefaultNprobe = 4
)

// Result is a single search hit.
type Result struct {
	Chunk    chunk.Chunk
	Position int
	// Distance is the squared L2 distance to the query.
	Distance float32
	// Score is 1 / (1 + Distance), in (0, 1].
	Score float32
}

// Stats summarizes the index contents.
type Stats struct {
	TotalDocuments int       `json:"total_documents"`
	TotalChunks    int       `json:"total_chunks"`
	Dimensions     int       `json:"embedding_dimension"`
	IndexType      Type      `json:"index_type"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"last_updated"`
}

// ErrUntrained is returned when inserting into or searching a trained
// index before Train.
var ErrUntrained = errors.New(errors.ErrCodeUntrainedIndex,
	"trained index requires Train before use", nil)
