package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/docsearch-app/docsearch/internal/engine"
	"github.com/docsearch-app/docsearch/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <folder>",
		Short: "Watch a folder and re-index incrementally as files change",
		Long: `Watch a folder and keep the index in sync.

An initial incremental pass brings the index up to date, then file
events are debounced and each batch triggers another incremental pass.
Stop with Ctrl+C.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			eng, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			folder := args[0]
			out := cmd.OutOrStdout()

			report, err := eng.IndexDirectoryIncremental(ctx, folder, engine.IndexOptions{})
			if err != nil {
				return err
			}
			if !report.Skipped {
				fmt.Fprintf(out, "Initial pass: %d documents (%d chunks)\n",
					report.TotalDocuments, report.TotalChunks)
			}
			fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", folder)

			err = watcher.Run(ctx, eng, folder, cfg.WatchDebounce())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
