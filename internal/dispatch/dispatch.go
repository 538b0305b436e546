// Package dispatch implements the line protocol a desktop host drives
// the engine with: one JSON object per line on stdin, one JSON reply per
// line on stdout, flushed immediately. stdout carries protocol replies
// only; all logging goes through slog to stderr or the log file.
package dispatch

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/docsearch-app/docsearch/internal/engine"
)

// DefaultPollInterval drives parent-liveness probing while waiting for
// input.
const DefaultPollInterval = time.Second

// previewLength bounds the content excerpt in search result rows.
const previewLength = 200

// request is the shape of every inbound line. Fields beyond Action are
// populated per action.
type request struct {
	Action      string `json:"action"`
	Query       string `json:"query"`
	Limit       int    `json:"limit"`
	Folder      string `json:"folder"`
	Incremental bool   `json:"incremental"`
}

// resultRow is one search hit on the wire. PageNumber is reserved for
// extractors that paginate; the plain-text extractor never sets it.
type resultRow struct {
	FilePath   string  `json:"file_path"`
	FileName   string  `json:"file_name"`
	Score      float32 `json:"score"`
	Preview    string  `json:"preview"`
	PageNumber *int    `json:"page_number,omitempty"`
}

// Dispatcher runs the request loop. The loop itself never blocks on
// engine work: searches and stats run on goroutines, indexing runs in
// the background and replies when it completes.
type Dispatcher struct {
	engine *engine.Engine
	in     io.Reader

	outMu sync.Mutex
	out   *bufio.Writer

	pollInterval time.Duration

	// parentAlive is probed on every poll timeout. Defaults to a real
	// parent-process check; injectable for tests.
	parentAlive func() bool

	// inflight tracks offloaded operations so Run drains them before
	// returning.
	inflight sync.WaitGroup
}

// New creates a dispatcher over the given streams.
func New(eng *engine.Engine, in io.Reader, out io.Writer) *Dispatcher {
	return &Dispatcher{
		engine:       eng,
		in:           in,
		out:          bufio.NewWriter(out),
		pollInterval: DefaultPollInterval,
		parentAlive:  parentAliveCheck(os.Getppid()),
	}
}

// parentAliveCheck captures the parent PID at startup and reports
// whether that exact process still exists. Reparenting (the original
// parent died and init adopted us) also counts as death.
func parentAliveCheck(initialPPID int) func() bool {
	return func() bool {
		if os.Getppid() != initialPPID {
			return false
		}
		proc, err := os.FindProcess(initialPPID)
		if err != nil {
			return false
		}
		// Signal 0 probes existence without delivering anything.
		return proc.Signal(syscall.Signal(0)) == nil
	}
}

// Run processes requests until exit is requested, stdin closes, the
// context is cancelled, or the parent process dies. In-flight
// operations are drained before returning.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.inflight.Wait()

	lines := make(chan string)
	go d.readLines(lines)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case line, ok := <-lines:
			if !ok {
				slog.Info("input stream closed, shutting down")
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if exit := d.handleLine(ctx, line); exit {
				return nil
			}

		case <-time.After(d.pollInterval):
			if !d.parentAlive() {
				slog.Info("parent process terminated, shutting down")
				d.write(map[string]any{
					"success": false,
					"action":  "exit",
					"error":   "parent process terminated",
				})
				return nil
			}
		}
	}
}

// readLines feeds stdin lines into the channel and closes it on EOF.
func (d *Dispatcher) readLines(lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(d.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}

// handleLine parses and dispatches one request. Returns true on exit.
func (d *Dispatcher) handleLine(ctx context.Context, line string) bool {
	var req request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		d.write(map[string]any{
			"success": false,
			"error":   "Invalid JSON: " + err.Error(),
		})
		return false
	}

	switch req.Action {
	case "search":
		d.async(func() { d.handleSearch(ctx, req) })
	case "index":
		d.async(func() { d.handleIndex(ctx, req) })
	case "stats":
		d.async(func() { d.handleStats(ctx) })
	case "status":
		d.handleStatus()
	case "clear":
		d.async(func() { d.handleClear(ctx) })
	case "exit":
		d.write(map[string]any{"success": true, "action": "exit"})
		return true
	default:
		d.write(map[string]any{
			"success": false,
			"error":   "Unknown action: " + req.Action,
		})
	}
	return false
}

// async offloads a handler so the loop keeps polling liveness.
func (d *Dispatcher) async(fn func()) {
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		fn()
	}()
}

func (d *Dispatcher) handleSearch(ctx context.Context, req request) {
	results, err := d.engine.Search(ctx, req.Query, req.Limit)
	if err != nil {
		d.writeError("search", err)
		return
	}

	rows := make([]resultRow, len(results))
	for i, r := range results {
		rows[i] = resultRow{
			FilePath: r.Chunk.Metadata.FilePath,
			FileName: r.Chunk.Metadata.FileName,
			Score:    r.Score,
			Preview:  makePreview(r.Chunk.Content),
		}
	}
	d.write(map[string]any{
		"success": true,
		"action":  "search",
		"results": rows,
	})
}

func (d *Dispatcher) handleIndex(ctx context.Context, req request) {
	var (
		report *engine.Report
		err    error
	)
	if req.Incremental {
		report, err = d.engine.IndexDirectoryIncremental(ctx, req.Folder, engine.IndexOptions{})
	} else {
		report, err = d.engine.IndexDirectory(ctx, req.Folder, engine.IndexOptions{})
	}
	if err != nil {
		d.writeError("index", err)
		return
	}
	d.write(map[string]any{
		"success":         true,
		"action":          "index",
		"total_documents": report.TotalDocuments,
		"total_chunks":    report.TotalChunks,
	})
}

func (d *Dispatcher) handleStats(ctx context.Context) {
	stats, err := d.engine.Stats(ctx)
	if err != nil {
		d.writeError("stats", err)
		return
	}
	d.write(map[string]any{
		"success": true,
		"action":  "stats",
		"stats": map[string]any{
			"total_documents":     stats.Index.TotalDocuments,
			"total_chunks":        stats.Index.TotalChunks,
			"total_files":         stats.Catalog.TotalFiles,
			"total_size":          stats.Catalog.TotalSize,
			"embedding_dimension": stats.Index.Dimensions,
			"index_type":          stats.Index.IndexType,
		},
	})
}

func (d *Dispatcher) handleStatus() {
	progress := d.engine.Status()
	d.write(map[string]any{
		"success":  true,
		"action":   "status",
		"indexing": progress.Indexing,
		"progress": progress,
	})
}

func (d *Dispatcher) handleClear(ctx context.Context) {
	if err := d.engine.Clear(ctx); err != nil {
		d.writeError("clear", err)
		return
	}
	d.write(map[string]any{"success": true, "action": "clear"})
}

// write emits one JSON line, flushed. Serialized so concurrent handlers
// never interleave bytes.
func (d *Dispatcher) write(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal response", slog.String("error", err.Error()))
		return
	}

	d.outMu.Lock()
	defer d.outMu.Unlock()
	_, _ = d.out.Write(data)
	_ = d.out.WriteByte('\n')
	_ = d.out.Flush()
}

func (d *Dispatcher) writeError(action string, err error) {
	d.write(map[string]any{
		"success": false,
		"action":  action,
		"error":   err.Error(),
	})
}

// makePreview collapses newlines and truncates to previewLength runes.
func makePreview(content string) string {
	collapsed := strings.Join(strings.FieldsFunc(content, func(r rune) bool {
		return r == '\n' || r == '\r'
	}), " ")
	runes := []rune(collapsed)
	if len(runes) <= previewLength {
		return collapsed
	}
	return string(runes[:previewLength])
}
