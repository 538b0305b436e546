// Package pipeline walks a directory tree and turns eligible files into
// chunks using a bounded worker pool.
package pipeline

import (
	"time"

	"github.com/docsearch-app/docsearch/internal/chunk"
)

// FileInfo describes a file discovered during enumeration.
type FileInfo struct {
	// Path is the absolute path to the file.
	Path    string
	Size    int64
	ModTime time.Time
}

// FileError records a per-file failure. The pipeline skips failed files
// and keeps going; only fatal errors abort the run.
type FileError struct {
	Path string
	Err  error
}

// Result aggregates the output of a pipeline run.
type Result struct {
	// Chunks from all successfully processed files, in enumeration order.
	Chunks []chunk.Chunk
	// Documents maps document IDs to their source FileInfo.
	Documents map[string]FileInfo
	// Errors holds per-file failures that were skipped.
	Errors []FileError
	// Processed is the number of files attempted.
	Processed int
	// Stopped reports whether the run ended early via the stop predicate
	// or context cancellation.
	Stopped bool
}

// ProgressFunc receives progress updates as (current, total) file counts.
// Called after each file completes; current is monotonically non-decreasing.
type ProgressFunc func(current, total int)

// StopFunc is polled between file dispatches. Returning true stops the
// run cooperatively; in-flight files finish first.
type StopFunc func() bool
