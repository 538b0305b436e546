package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/docsearch-app/docsearch/internal/dispatch"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run as a JSON line-protocol sidecar for a host application",
		Long: `Serve the line protocol a desktop host drives docsearch with:
one JSON request per line on stdin, one JSON reply per line on stdout.

The loop exits when the host sends {"action":"exit"}, closes stdin, or
dies (parent-process liveness is probed every second). stdout carries
protocol replies only; logs go to the log file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			eng, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			return dispatch.New(eng, os.Stdin, os.Stdout).Run(ctx)
		},
	}
}
