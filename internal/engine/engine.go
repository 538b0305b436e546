// Package engine orchestrates indexing and search: it owns one catalog,
// one vector index and one embedder per index directory, and keeps the
// catalog's vector positions and the index's actual layout from ever
// drifting apart.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/docsearch-app/docsearch/internal/chunk"
	"github.com/docsearch-app/docsearch/internal/config"
	"github.com/docsearch-app/docsearch/internal/embed"
	"github.com/docsearch-app/docsearch/internal/errors"
	"github.com/docsearch-app/docsearch/internal/extract"
	"github.com/docsearch-app/docsearch/internal/pipeline"
	"github.com/docsearch-app/docsearch/internal/store"
	"github.com/docsearch-app/docsearch/internal/vector"
)

// CatalogFile is the catalog database name within the index directory.
const CatalogFile = "metadata.db"

// lockFile guards the index directory against a second writer process.
const lockFile = ".lock"

// ErrIndexingInProgress rejects a second concurrent indexing request.
// Indexing is not re-entrant; callers retry after the running operation
// finishes.
var ErrIndexingInProgress = errors.New(errors.ErrCodeIndexBusy,
	"an indexing operation is already in progress", nil)

// Engine composes the pipeline, embedder, vector index and catalog.
// Mutating operations are single-writer; searches run concurrently.
type Engine struct {
	dir      string
	cfg      *config.Config
	catalog  store.Catalog
	index    *vector.Index
	embedder embed.Embedder
	pipeline *pipeline.Pipeline
	lock     *flock.Flock

	// indexMu serializes mutating operations. TryLock gives the
	// rejection (not queueing) semantics for concurrent index requests.
	indexMu sync.Mutex

	progressMu sync.Mutex
	progress   Progress
}

// Progress is a snapshot of the current indexing operation.
type Progress struct {
	Indexing bool   `json:"indexing"`
	Folder   string `json:"folder,omitempty"`
	Current  int    `json:"current"`
	Total    int    `json:"total"`
}

// Report summarizes a completed indexing operation.
type Report struct {
	TotalDocuments int
	TotalChunks    int
	Processed      int
	Failed         int
	Deleted        int
	// Skipped is true when an incremental run found no changes and did
	// no embedding, index or persistence work.
	Skipped bool
}

// Stats combines index and catalog counters.
type Stats struct {
	Index   vector.Stats
	Catalog store.Stats
}

// IndexOptions configures an indexing run.
type IndexOptions struct {
	Progress pipeline.ProgressFunc
	Stop     pipeline.StopFunc
}

// New opens (or creates) the engine for the configured index directory.
// An exclusive file lock on the directory enforces the single active
// writer process; a second process fails here rather than corrupting
// shared artifacts.
func New(cfg *config.Config, embedder embed.Embedder) (*Engine, error) {
	dir := cfg.Storage.IndexDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockFile))
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire index lock: %w", err)
	}
	if !acquired {
		return nil, errors.New(errors.ErrCodeIndexBusy,
			"index directory is locked by another process: "+dir, nil)
	}

	catalog, err := store.NewSQLiteCatalog(filepath.Join(dir, CatalogFile))
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	idx, err := vector.Load(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			_ = catalog.Close()
			_ = lock.Unlock()
			return nil, err
		}
		idx = vector.New(embedder.Dimensions(), vector.TypeFlat)
	}
	if idx.Dimensions() != embedder.Dimensions() {
		_ = catalog.Close()
		_ = lock.Unlock()
		return nil, errors.DimensionMismatch(idx.Dimensions(), embedder.Dimensions()).
			WithDetail("hint", "the index was built with a different embedding model; clear it first")
	}

	splitter := chunk.NewSplitter(cfg.Chunking.Size, cfg.Chunking.Overlap)
	pipe := pipeline.New(extract.NewRegistry(), splitter, cfg.Indexing.Workers, cfg.Indexing.Exclude)

	return &Engine{
		dir:      dir,
		cfg:      cfg,
		catalog:  catalog,
		index:    idx,
		embedder: embedder,
		pipeline: pipe,
		lock:     lock,
	}, nil
}

// IndexDirectory fully indexes a directory. Files already cataloged are
// replaced, so repeated full runs never duplicate chunks.
func (e *Engine) IndexDirectory(ctx context.Context, dir string, opts IndexOptions) (*Report, error) {
	if !e.indexMu.TryLock() {
		return nil, ErrIndexingInProgress
	}
	defer e.indexMu.Unlock()

	files, err := e.pipeline.Enumerate(dir, nil)
	if err != nil {
		return nil, err
	}

	return e.indexFiles(ctx, dir, files, nil, opts)
}

// IndexDirectoryIncremental diffs the directory against the catalog and
// processes only what changed. An empty change set is a fast no-op:
// no embedding calls, no index mutation, no persistence.
func (e *Engine) IndexDirectoryIncremental(ctx context.Context, dir string, opts IndexOptions) (*Report, error) {
	if !e.indexMu.TryLock() {
		return nil, ErrIndexingInProgress
	}
	defer e.indexMu.Unlock()

	files, err := e.pipeline.Enumerate(dir, nil)
	if err != nil {
		return nil, err
	}

	snapshots := make([]store.Snapshot, len(files))
	byPath := make(map[string]pipeline.FileInfo, len(files))
	for i, f := range files {
		snapshots[i] = store.Snapshot{Path: f.Path, Size: f.Size, ModTime: f.ModTime}
		byPath[f.Path] = f
	}

	changes, err := e.catalog.DiffDirectory(ctx, dir, snapshots)
	if err != nil {
		return nil, err
	}
	if changes.Empty() {
		slog.Debug("no changes detected", slog.String("dir", dir))
		return &Report{
			TotalDocuments: e.index.Stats().TotalDocuments,
			TotalChunks:    e.index.Count(),
			Skipped:        true,
		}, nil
	}

	slog.Info("incremental index",
		slog.String("dir", dir),
		slog.Int("new", len(changes.New)),
		slog.Int("modified", len(changes.Modified)),
		slog.Int("deleted", len(changes.Deleted)),
		slog.Int("unchanged", len(changes.Unchanged)))

	var work []pipeline.FileInfo
	for _, path := range changes.New {
		work = append(work, byPath[path])
	}
	for _, path := range changes.Modified {
		work = append(work, byPath[path])
	}

	report, err := e.indexFiles(ctx, dir, work, changes.Deleted, opts)
	if err != nil {
		return nil, err
	}
	report.Deleted = len(changes.Deleted)
	return report, nil
}

// indexFiles is the shared write path: drop stale entries, chunk, embed,
// insert, record, persist. Caller holds indexMu.
func (e *Engine) indexFiles(ctx context.Context, dir string, files []pipeline.FileInfo, deleted []string, opts IndexOptions) (*Report, error) {
	e.setProgress(Progress{Indexing: true, Folder: dir, Total: len(files)})
	defer e.setProgress(Progress{})

	// Deletions first, and stale versions of files about to be re-added.
	// All removals share one index rebuild; the catalog's positions are
	// rewritten in the same step.
	stale := make([]string, 0, len(deleted)+len(files))
	stale = append(stale, deleted...)
	for _, f := range files {
		stale = append(stale, f.Path)
	}
	if err := e.removePaths(ctx, stale); err != nil {
		return nil, err
	}

	progress := func(current, total int) {
		e.setProgress(Progress{Indexing: true, Folder: dir, Current: current, Total: total})
		if opts.Progress != nil {
			opts.Progress(current, total)
		}
	}

	result, err := e.pipeline.ProcessFiles(ctx, files, pipeline.Options{
		Workers:  e.cfg.Indexing.Workers,
		Progress: progress,
		Stop:     opts.Stop,
	})
	if err != nil {
		return nil, err
	}

	if len(result.Chunks) > 0 {
		texts := make([]string, len(result.Chunks))
		for i, c := range result.Chunks {
			texts[i] = c.Content
		}

		vectors, err := e.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}

		// Positions are assigned densely from the pre-insert count, in
		// input order. The catalog records exactly these offsets.
		base := e.index.Count()
		if err := e.index.Insert(result.Chunks, vectors); err != nil {
			return nil, err
		}

		if err := e.recordChunks(ctx, result, base); err != nil {
			return nil, err
		}
	}

	if err := e.catalog.UpdateFolder(ctx, dir, len(result.Documents)); err != nil {
		return nil, err
	}
	if err := e.index.Save(e.dir); err != nil {
		return nil, err
	}

	stats := e.index.Stats()
	return &Report{
		TotalDocuments: stats.TotalDocuments,
		TotalChunks:    stats.TotalChunks,
		Processed:      result.Processed,
		Failed:         len(result.Errors),
	}, nil
}

// recordChunks writes one catalog transaction per document, binding each
// chunk to its vector position.
func (e *Engine) recordChunks(ctx context.Context, result *pipeline.Result, base int) error {
	type docRows struct {
		chunkIDs  []string
		positions []int
	}
	perDoc := make(map[string]*docRows)

	for i, c := range result.Chunks {
		rows := perDoc[c.DocumentID]
		if rows == nil {
			rows = &docRows{}
			perDoc[c.DocumentID] = rows
		}
		rows.chunkIDs = append(rows.chunkIDs, c.ChunkID)
		rows.positions = append(rows.positions, base+i)
	}

	now := time.Now()
	for docID, rows := range perDoc {
		info, ok := result.Documents[docID]
		if !ok {
			return errors.InternalError("chunk references unknown document: "+docID, nil)
		}
		record := store.FileRecord{
			FilePath:   info.Path,
			FileSize:   info.Size,
			ModTime:    info.ModTime,
			DocumentID: docID,
			IndexedAt:  now,
		}
		if err := e.catalog.Record(ctx, record, rows.chunkIDs, rows.positions); err != nil {
			return err
		}
	}
	return nil
}

// removePaths drops files from catalog and index. All affected documents
// come out in a single index rebuild, and the rebuild's position mapping
// is applied to the catalog immediately, keeping the vector_index column
// live.
func (e *Engine) removePaths(ctx context.Context, paths []string) error {
	var docIDs []string
	for _, path := range paths {
		docID, err := e.catalog.Remove(ctx, path)
		if err != nil {
			return err
		}
		if docID != "" {
			docIDs = append(docIDs, docID)
		}
	}
	if len(docIDs) == 0 {
		return nil
	}

	mapping, removed := e.index.RemoveDocuments(docIDs)
	if !removed {
		return nil
	}
	return e.catalog.ShiftAfterRebuild(ctx, mapping)
}

// Search embeds the query once and runs a nearest-neighbor scan.
// Safe to call concurrently, including while indexing is queued.
func (e *Engine) Search(ctx context.Context, query string, k int) ([]vector.Result, error) {
	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return e.index.Search(queryVec, k)
}

// Clear resets index and catalog and deletes all persisted artifacts.
func (e *Engine) Clear(ctx context.Context) error {
	if !e.indexMu.TryLock() {
		return ErrIndexingInProgress
	}
	defer e.indexMu.Unlock()

	e.index.Clear()
	if err := vector.ClearDir(e.dir); err != nil {
		return err
	}
	return e.catalog.ClearAll(ctx)
}

// Stats returns combined index and catalog counters.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	catalogStats, err := e.catalog.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Index:   e.index.Stats(),
		Catalog: *catalogStats,
	}, nil
}

// Status returns a snapshot of the in-flight indexing operation.
func (e *Engine) Status() Progress {
	e.progressMu.Lock()
	defer e.progressMu.Unlock()
	return e.progress
}

func (e *Engine) setProgress(p Progress) {
	e.progressMu.Lock()
	e.progress = p
	e.progressMu.Unlock()
}

// Embedder exposes the engine's embedder, e.g. for availability checks.
func (e *Engine) Embedder() embed.Embedder {
	return e.embedder
}

// Close releases the catalog, the embedder and the directory lock.
func (e *Engine) Close() error {
	var firstErr error
	if err := e.catalog.Close(); err != nil {
		firstErr = err
	}
	if err := e.embedder.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.lock.Unlock(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
