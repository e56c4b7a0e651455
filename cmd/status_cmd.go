package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index and backend status",
		Run: func(cmd *cobra.Command, args []string) {
			e := openEngine()
			defer e.Close()

			embState := "disabled"
			embModel := ""
			if e.backend != nil {
				embState = e.backend.State().String()
				embModel = e.backend.Model()
			}

			status := map[string]interface{}{
				"workspace":  e.cfg.Workspace,
				"dbPath":     e.cfg.Memory.DBPath,
				"files":      e.mgr.FileCount(),
				"chunks":     e.mgr.ChunkCount(),
				"embeddings": embState,
				"mode":       "file",
			}
			if embModel != "" {
				status["embeddingModel"] = embModel
			}
			if e.cfg.Postgres.DSN != "" {
				status["mode"] = "managed"
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				enc.Encode(status)
				return
			}

			fmt.Printf("Workspace:   %s\n", status["workspace"])
			fmt.Printf("Index:       %s (%d files, %d chunks)\n",
				status["dbPath"], status["files"], status["chunks"])
			fmt.Printf("Embeddings:  %s", embState)
			if embModel != "" {
				fmt.Printf(" (%s)", embModel)
			}
			fmt.Println()
			fmt.Printf("Mode:        %s\n", status["mode"])
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}
