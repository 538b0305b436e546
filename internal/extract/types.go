// Package extract turns files on disk into plain text for chunking.
//
// Extractors are registered per extension. The current registry only ships
// the plain-text extractor; richer formats plug in behind the same
// interface without touching the pipeline.
package extract

import "context"

// Extractor converts a single file into plain text.
type Extractor interface {
	// Extract reads the file at path and returns its text content.
	Extract(ctx context.Context, path string) (string, error)

	// Extensions returns the lower-case file extensions this extractor
	// handles, including the leading dot.
	Extensions() []string
}
