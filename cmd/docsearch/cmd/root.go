// Package cmd provides the CLI commands for docsearch.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docsearch-app/docsearch/internal/config"
	"github.com/docsearch-app/docsearch/internal/embed"
	"github.com/docsearch-app/docsearch/internal/engine"
	"github.com/docsearch-app/docsearch/internal/logging"
	"github.com/docsearch-app/docsearch/pkg/version"
)

var (
	cfg            *config.Config
	loggingCleanup func()

	indexDirFlag string
	debugMode    bool
)

// NewRootCmd creates the root command for the docsearch CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docsearch",
		Short: "Local semantic search over your documents",
		Long: `docsearch indexes a folder of documents and answers semantic
queries against it. Everything runs locally: text is chunked, embedded
(via Ollama or a built-in offline embedder) and stored in an on-disk
vector index that re-indexes incrementally as files change.`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("docsearch version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&indexDirFlag, "index-dir", "", "Index directory (default ~/.docsearch/index)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setup
	cmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if loggingCleanup != nil {
			loggingCleanup()
			loggingCleanup = nil
		}
	}

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setup loads configuration and installs the process logger.
func setup(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(".")
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if indexDirFlag != "" {
		cfg.Storage.IndexDir = indexDirFlag
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Server.LogLevel
	if cfg.Server.LogFile != "" {
		logCfg.FilePath = cfg.Server.LogFile
	}
	if debugMode {
		logCfg.Level = "debug"
	}
	// serve owns stdout for the protocol; everything else may log to
	// stderr freely.
	logCfg.WriteToStderr = cmd.Name() != "serve"

	loggingCleanup, err = logging.SetupDefault(logCfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	return nil
}

// openEngine builds the embedder selected by configuration and opens the
// engine over the configured index directory.
func openEngine(ctx context.Context) (*engine.Engine, error) {
	embedder, err := embed.NewEmbedder(ctx, cfg.Embeddings)
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(cfg, embedder)
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}
	return eng, nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
