package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCmd() *cobra.Command {
	var limit int
	var format string

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed documents",
		Long: `Search the indexed documents semantically.

Examples:
  docsearch search "quarterly revenue projections"
  docsearch search "travel reimbursement policy" --limit 5 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), limit, format)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, limit int, format string) error {
	eng, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	results, err := eng.Search(ctx, query, limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if format == "json" {
		type row struct {
			FilePath string  `json:"file_path"`
			FileName string  `json:"file_name"`
			Score    float32 `json:"score"`
			Preview  string  `json:"preview"`
		}
		rows := make([]row, len(results))
		for i, r := range results {
			rows[i] = row{
				FilePath: r.Chunk.Metadata.FilePath,
				FileName: r.Chunk.Metadata.FileName,
				Score:    r.Score,
				Preview:  previewOf(r.Chunk.Content),
			}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(results) == 0 {
		fmt.Fprintln(out, "No results.")
		return nil
	}

	for i, r := range results {
		fmt.Fprintf(out, "%2d. [%.3f] %s\n", i+1, r.Score, r.Chunk.Metadata.FilePath)
		fmt.Fprintf(out, "    %s\n", previewOf(r.Chunk.Content))
	}
	return nil
}

// previewOf flattens a chunk's content to one short display line.
func previewOf(content string) string {
	flat := strings.Join(strings.Fields(content), " ")
	runes := []rune(flat)
	if len(runes) > 160 {
		return string(runes[:160]) + "..."
	}
	return flat
}
