// Package store persists the metadata catalog that makes incremental
// indexing possible: which files are indexed, which document identity
// each one carries, and where each chunk's vector lives in the index.
package store

import (
	"context"
	"time"
)

// Status classifies a file against its catalog record.
type Status string

const (
	StatusNew       Status = "new"
	StatusModified  Status = "modified"
	StatusUnchanged Status = "unchanged"
	StatusDeleted   Status = "deleted"
)

// FileRecord is a catalog row for an indexed file.
type FileRecord struct {
	FilePath    string
	FileSize    int64
	ModTime     time.Time
	DocumentID  string
	ContentHash string // optional; empty when not computed
	IndexedAt   time.Time
}

// Snapshot is the current on-disk state of a file, used for classification.
type Snapshot struct {
	Path        string
	Size        int64
	ModTime     time.Time
	ContentHash string // optional
}

// ChangeSet partitions a directory scan against the catalog. Every scanned
// file lands in exactly one of New, Modified, or Unchanged; Deleted holds
// catalog paths no longer present on disk.
type ChangeSet struct {
	New       []string
	Modified  []string
	Unchanged []string
	Deleted   []string
}

// Empty reports whether the change set requires no index work.
func (c *ChangeSet) Empty() bool {
	return len(c.New) == 0 && len(c.Modified) == 0 && len(c.Deleted) == 0
}

// FolderStat summarizes one indexed folder.
type FolderStat struct {
	Path        string
	LastIndexed time.Time
	TotalFiles  int
}

// Stats aggregates catalog counters.
type Stats struct {
	TotalFiles  int
	TotalChunks int
	// TotalSize is the summed on-disk size of all cataloged files, bytes.
	TotalSize int64
	Folders   []FolderStat
}

// Catalog is the metadata store interface.
type Catalog interface {
	// Classify compares a file snapshot to its catalog record.
	// Content hash takes priority when both sides have one; otherwise
	// mtime and size decide. A cataloged file that no longer exists on
	// disk classifies as deleted.
	Classify(ctx context.Context, snap Snapshot) (Status, *FileRecord, error)

	// DiffDirectory partitions the given on-disk snapshots of a directory
	// against the catalog rows under that directory.
	DiffDirectory(ctx context.Context, dir string, current []Snapshot) (*ChangeSet, error)

	// Record replaces a file's catalog entry and chunk rows in one
	// transaction. chunkIDs and positions run parallel.
	Record(ctx context.Context, file FileRecord, chunkIDs []string, positions []int) error

	// Remove deletes a file and its chunk rows. Returns the removed
	// document ID, or empty string if the path was not cataloged.
	Remove(ctx context.Context, path string) (string, error)

	// VectorPositions returns the vector index positions for a document,
	// ascending.
	VectorPositions(ctx context.Context, documentID string) ([]int, error)

	// ShiftAfterRebuild rewrites vector positions from a rebuild mapping
	// of chunk ID to new position, in one transaction.
	ShiftAfterRebuild(ctx context.Context, mapping map[string]int) error

	// UpdateFolder records that a folder was indexed with the given file
	// count.
	UpdateFolder(ctx context.Context, folder string, totalFiles int) error

	// Stats returns catalog counters and per-folder summaries.
	Stats(ctx context.Context) (*Stats, error)

	// ClearAll removes every row from the catalog.
	ClearAll(ctx context.Context) error

	Close() error
}
