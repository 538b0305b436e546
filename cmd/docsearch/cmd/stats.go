package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			stats, err := eng.Stats(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"index":      stats.Index,
					"files":      stats.Catalog.TotalFiles,
					"total_size": stats.Catalog.TotalSize,
					"folders":    stats.Catalog.Folders,
				})
			}

			fmt.Fprintf(out, "Documents:  %d\n", stats.Index.TotalDocuments)
			fmt.Fprintf(out, "Chunks:     %d\n", stats.Index.TotalChunks)
			fmt.Fprintf(out, "Files:      %d\n", stats.Catalog.TotalFiles)
			fmt.Fprintf(out, "Total size: %d bytes\n", stats.Catalog.TotalSize)
			fmt.Fprintf(out, "Dimensions: %d\n", stats.Index.Dimensions)
			fmt.Fprintf(out, "Index type: %s\n", stats.Index.IndexType)
			for _, folder := range stats.Catalog.Folders {
				fmt.Fprintf(out, "Folder:     %s (%d files, indexed %s)\n",
					folder.Path, folder.TotalFiles, folder.LastIndexed.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output statistics as JSON")

	return cmd
}
