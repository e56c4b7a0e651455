package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func indexCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index workspace knowledge files and session transcripts",
		Run: func(cmd *cobra.Command, args []string) {
			e := openEngine()
			defer e.Close()

			ctx := context.Background()

			if filePath != "" {
				if err := e.mgr.IndexFile(ctx, filePath); err != nil {
					fatalf("indexing %s: %v", filePath, err)
				}
				fmt.Printf("Indexed %s\n", filePath)
				return
			}

			stats, err := e.mgr.IndexAll(ctx)
			if err != nil {
				fatalf("indexing: %v", err)
			}
			fmt.Printf("Indexed %d files (%d unchanged), %d chunks total\n",
				stats.Indexed, stats.Skipped, e.mgr.ChunkCount())
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "index a single workspace-relative file")
	return cmd
}
