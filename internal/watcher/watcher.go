package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/docsearch-app/docsearch/internal/engine"
	"github.com/docsearch-app/docsearch/internal/errors"
)

// Watcher observes a directory tree and emits debounced event batches.
// fsnotify does not watch recursively, so every subdirectory is added
// individually and new subdirectories are picked up from create events.
type Watcher struct {
	fsw       *fsnotify.Watcher
	debouncer *Debouncer

	stopOnce sync.Once
	done     chan struct{}
}

// New creates a watcher with the given debounce window.
func New(window time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fsw:       fsw,
		debouncer: NewDebouncer(window),
		done:      make(chan struct{}),
	}, nil
}

// Start watches root recursively and begins translating events.
func (w *Watcher) Start(root string) error {
	if err := w.addRecursive(root); err != nil {
		return err
	}
	go w.loop()
	return nil
}

// addRecursive registers root and every non-hidden subdirectory.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// loop translates fsnotify events into debounced FileEvents.
func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if isHidden(filepath.Base(event.Name)) {
		return
	}

	var op Operation
	switch {
	case event.Op.Has(fsnotify.Create):
		op = OpCreate
		// New directories must be added to keep the watch recursive
		if err := w.addRecursive(event.Name); err != nil {
			slog.Debug("failed to watch new path", slog.String("path", event.Name))
		}
	case event.Op.Has(fsnotify.Write):
		op = OpModify
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return // chmod and friends never affect index state
	}

	w.debouncer.Add(FileEvent{
		Path:      event.Name,
		Operation: op,
		Timestamp: time.Now(),
	})
}

// Batches returns the channel of debounced event batches.
func (w *Watcher) Batches() <-chan []FileEvent {
	return w.debouncer.Output()
}

// Stop releases the fsnotify watcher and closes the batch channel.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
		w.debouncer.Stop()
	})
	return err
}

// Run watches root and triggers an incremental reindex on every
// debounced batch, until the context is cancelled. A batch arriving
// while an indexing operation is still running is skipped; the next
// batch re-diffs and catches up.
func Run(ctx context.Context, eng *engine.Engine, root string, window time.Duration) error {
	w, err := New(window)
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	if err := w.Start(root); err != nil {
		return err
	}
	slog.Info("watching for changes",
		slog.String("dir", root),
		slog.Duration("debounce", window))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case batch, ok := <-w.Batches():
			if !ok {
				return nil
			}
			slog.Debug("change batch", slog.Int("events", len(batch)))

			report, err := eng.IndexDirectoryIncremental(ctx, root, engine.IndexOptions{})
			if err != nil {
				if errors.Is(err, engine.ErrIndexingInProgress) {
					slog.Debug("reindex already running, deferring to next batch")
					continue
				}
				return err
			}
			if !report.Skipped {
				slog.Info("reindexed",
					slog.Int("documents", report.TotalDocuments),
					slog.Int("chunks", report.TotalChunks),
					slog.Int("deleted", report.Deleted))
			}
		}
	}
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
