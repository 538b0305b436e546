package cmd

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/docsearch-app/docsearch/internal/engine"
)

func newIndexCmd() *cobra.Command {
	var incremental bool

	cmd := &cobra.Command{
		Use:   "index <folder>",
		Short: "Index a folder of documents",
		Long: `Index a folder of documents for semantic search.

With --incremental, only files that changed since the last run are
re-processed; deleted files are removed from the index.

Examples:
  docsearch index ~/Documents/notes
  docsearch index ~/Documents/notes --incremental`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd, args[0], incremental)
		},
	}

	cmd.Flags().BoolVarP(&incremental, "incremental", "i", false, "Only process changed files")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, folder string, incremental bool) error {
	eng, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Indexing %s ...\n", folder)

	// Progress bar only on a real terminal; plain logs otherwise
	var (
		barOnce sync.Once
		bar     *progressbar.ProgressBar
	)
	progress := func(current, total int) {
		if !isatty.IsTerminal(os.Stderr.Fd()) {
			return
		}
		barOnce.Do(func() {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("processing"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		})
		_ = bar.Set(current)
	}

	start := time.Now()
	var report *engine.Report
	if incremental {
		report, err = eng.IndexDirectoryIncremental(ctx, folder, engine.IndexOptions{Progress: progress})
	} else {
		report, err = eng.IndexDirectory(ctx, folder, engine.IndexOptions{Progress: progress})
	}
	if err != nil {
		return err
	}

	if report.Skipped {
		fmt.Fprintln(out, "No changes detected, index is up to date.")
		return nil
	}

	fmt.Fprintf(out, "Indexed %d documents (%d chunks) in %s\n",
		report.TotalDocuments, report.TotalChunks, time.Since(start).Round(time.Millisecond))
	if report.Deleted > 0 {
		fmt.Fprintf(out, "Removed %d deleted files\n", report.Deleted)
	}
	if report.Failed > 0 {
		fmt.Fprintf(out, "Skipped %d files with errors (see log for details)\n", report.Failed)
	}
	return nil
}
