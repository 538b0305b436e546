package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/docsearch-app/docsearch/internal/chunk"
	"github.com/docsearch-app/docsearch/internal/errors"
	"github.com/docsearch-app/docsearch/internal/extract"
)

// DefaultWorkers is the worker pool size when none is configured.
const DefaultWorkers = 4

// Pipeline turns a directory tree into chunks.
type Pipeline struct {
	registry *extract.Registry
	splitter *chunk.Splitter
	workers  int
	exclude  []string
}

// Options configures a pipeline run.
type Options struct {
	// Workers bounds the worker pool. Defaults to DefaultWorkers.
	Workers int
	// Exclude holds doublestar glob patterns matched against paths
	// relative to the scan root.
	Exclude []string
	// Progress, if set, receives (current, total) after each file.
	Progress ProgressFunc
	// Stop, if set, is polled between file dispatches.
	Stop StopFunc
}

// New creates a pipeline with the given extraction registry and splitter.
func New(registry *extract.Registry, splitter *chunk.Splitter, workers int, exclude []string) *Pipeline {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Pipeline{
		registry: registry,
		splitter: splitter,
		workers:  workers,
		exclude:  exclude,
	}
}

// Enumerate walks root and returns eligible files in deterministic
// (lexical walk) order. Hidden path segments and excluded globs are
// skipped; eligibility is decided by the extraction registry.
func (p *Pipeline) Enumerate(root string, extraExclude []string) ([]FileInfo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.New(errors.ErrCodeInvalidPath, "failed to resolve path: "+root, err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, errors.New(errors.ErrCodeInvalidPath, "directory does not exist: "+absRoot, err)
	}
	if !info.IsDir() {
		return nil, errors.New(errors.ErrCodeInvalidPath, "not a directory: "+absRoot, nil)
	}

	exclude := append(append([]string{}, p.exclude...), extraExclude...)

	var files []FileInfo
	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil || relPath == "." {
			return nil
		}

		if d.IsDir() {
			if isHidden(d.Name()) || matchesAny(relPath, exclude) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if isHidden(d.Name()) || matchesAny(relPath, exclude) {
			return nil
		}
		if !p.registry.Supported(path) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return nil
		}

		files = append(files, FileInfo{
			Path:    path,
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
		return nil
	})
	if walkErr != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, walkErr)
	}

	return files, nil
}

// ProcessFile extracts and chunks a single file. The document ID is
// derived from the file's current stat, so the caller sees the same
// identity the catalog will record.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) ([]chunk.Chunk, FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, FileInfo{}, errors.New(errors.ErrCodeFileNotFound, "file not found: "+path, err)
	}

	fi := FileInfo{Path: path, Size: info.Size(), ModTime: info.ModTime()}

	extractor := p.registry.For(path)
	if extractor == nil {
		return nil, fi, errors.New(errors.ErrCodeUnsupported, "unsupported format: "+path, nil)
	}

	text, err := extractor.Extract(ctx, path)
	if err != nil {
		return nil, fi, err
	}
	if text == "" {
		return nil, fi, nil
	}

	docID := chunk.DocumentID(path, fi.ModTime, fi.Size)
	return p.splitter.Split(text, path, docID), fi, nil
}

// ProcessDirectory enumerates root and processes every eligible file
// through the worker pool. Per-file failures are collected and skipped;
// the run only aborts on context cancellation.
func (p *Pipeline) ProcessDirectory(ctx context.Context, root string, opts Options) (*Result, error) {
	files, err := p.Enumerate(root, opts.Exclude)
	if err != nil {
		return nil, err
	}
	return p.ProcessFiles(ctx, files, opts)
}

// ProcessFiles processes an explicit file list through the worker pool.
// Chunk order follows the input file order regardless of which worker
// finished first.
func (p *Pipeline) ProcessFiles(ctx context.Context, files []FileInfo, opts Options) (*Result, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = p.workers
	}

	total := len(files)
	result := &Result{Documents: make(map[string]FileInfo)}
	if total == 0 {
		return result, nil
	}

	type fileOutput struct {
		chunks []chunk.Chunk
		info   FileInfo
		err    error
	}
	outputs := make([]fileOutput, total)

	var (
		mu   sync.Mutex
		done int
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	stopped := false
	for i, file := range files {
		// Cooperative stop between dispatches; in-flight work completes
		if opts.Stop != nil && opts.Stop() {
			stopped = true
			break
		}
		if ctx.Err() != nil {
			stopped = true
			break
		}

		i, file := i, file
		result.Processed++
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					outputs[i].err = errors.InternalError(
						fmt.Sprintf("worker panic processing %s: %v", file.Path, r), nil)
				}
				mu.Lock()
				done++
				current := done
				mu.Unlock()
				if opts.Progress != nil {
					opts.Progress(current, total)
				}
			}()

			chunks, info, err := p.ProcessFile(ctx, file.Path)
			outputs[i] = fileOutput{chunks: chunks, info: info, err: err}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := 0; i < result.Processed; i++ {
		out := outputs[i]
		if out.err != nil {
			if errors.IsFatal(out.err) {
				return nil, out.err
			}
			slog.Warn("skipping file",
				slog.String("path", files[i].Path),
				slog.String("error", out.err.Error()))
			result.Errors = append(result.Errors, FileError{Path: files[i].Path, Err: out.err})
			continue
		}
		if len(out.chunks) == 0 {
			continue
		}
		result.Chunks = append(result.Chunks, out.chunks...)
		result.Documents[out.chunks[0].DocumentID] = out.info
	}

	result.Stopped = stopped || ctx.Err() != nil
	return result, nil
}

// isHidden reports whether a path segment starts with a dot.
func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

// matchesAny checks relPath against doublestar patterns.
func matchesAny(relPath string, patterns []string) bool {
	slashPath := filepath.ToSlash(relPath)
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, slashPath); err == nil && ok {
			return true
		}
	}
	return false
}
